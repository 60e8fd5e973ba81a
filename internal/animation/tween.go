package animation

import "time"

// Tween interpolates from one transform to another over d, reporting every
// intermediate value to apply.
func Tween(target string, d time.Duration, from, to Transform, apply func(Transform)) Transition {
	return Transition{
		Target: target,
		Phases: []Phase{{
			Duration: d,
			Step: func(t float64) {
				apply(LerpTransform(from, to, t))
			},
		}},
	}
}

// Bounce grows base by factor over the first half of d and shrinks it back
// over the second half.
func Bounce(target string, d time.Duration, base Transform, factor float64, apply func(Transform)) Transition {
	peak := base.Scaled(factor)
	half := d / 2
	return Transition{
		Target: target,
		Phases: []Phase{
			{Duration: half, Step: func(t float64) { apply(LerpTransform(base, peak, t)) }},
			{Duration: d - half, Step: func(t float64) { apply(LerpTransform(peak, base, t)) }},
		},
	}
}

// Wait is a transition with no visible effect that fires onDone after d.
func Wait(target string, d time.Duration, onDone func()) Transition {
	return Transition{
		Target: target,
		Phases: []Phase{{Duration: d}},
		OnDone: onDone,
	}
}
