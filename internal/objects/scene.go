package objects

import (
	"fmt"
	"time"

	"github.com/AaronLay10/SentientTrainer/internal/animation"
	"github.com/AaronLay10/SentientTrainer/internal/config"
)

// Scene is the registry of interactive objects in declaration order.
type Scene struct {
	objects map[string]Object
	order   []string
}

func NewScene() *Scene {
	return &Scene{
		objects: make(map[string]Object),
	}
}

func (s *Scene) Add(o Object) error {
	if _, exists := s.objects[o.ID()]; exists {
		return fmt.Errorf("duplicate object id: %s", o.ID())
	}
	s.objects[o.ID()] = o
	s.order = append(s.order, o.ID())
	return nil
}

func (s *Scene) Get(id string) (Object, bool) {
	o, ok := s.objects[id]
	return o, ok
}

func (s *Scene) All() []Object {
	out := make([]Object, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.objects[id])
	}
	return out
}

func (s *Scene) IDs() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

func (s *Scene) Len() int {
	return len(s.order)
}

// ResetAll resets every object with a reset capability and returns how many were reset.
func (s *Scene) ResetAll() int {
	n := 0
	for _, o := range s.All() {
		if r, ok := o.(Resettable); ok {
			r.Reset()
			n++
		}
	}
	return n
}

// ObjectStatus is the serializable view of one object.
type ObjectStatus struct {
	ID        string              `json:"id"`
	Kind      string              `json:"kind"`
	State     State               `json:"state"`
	Initial   State               `json:"initial_state"`
	Transform animation.Transform `json:"transform"`
}

func (s *Scene) Status() []ObjectStatus {
	out := make([]ObjectStatus, 0, len(s.order))
	for _, o := range s.All() {
		out = append(out, ObjectStatus{
			ID:        o.ID(),
			Kind:      o.Kind(),
			State:     o.State(),
			Initial:   o.InitialState(),
			Transform: o.Transform(),
		})
	}
	return out
}

var defaultDurations = map[string]time.Duration{
	config.KindSelector:  200 * time.Millisecond,
	config.KindButton:    100 * time.Millisecond,
	config.KindKeySwitch: 200 * time.Millisecond,
	config.KindKey:       500 * time.Millisecond,
	config.KindHandle:    500 * time.Millisecond,
	config.KindDoor:      500 * time.Millisecond,
}

// Build creates the scene from object declarations and wires static dependencies.
func Build(cfgs []config.ObjectConfig, sched *animation.Scheduler, sink TransformSink) (*Scene, error) {
	scene := NewScene()

	for _, c := range cfgs {
		rest := animation.Identity
		if c.Rest != nil {
			rest = *c.Rest
			if rest.Scale == 0 {
				rest.Scale = 1
			}
		}
		d := c.Duration
		if d <= 0 {
			d = defaultDurations[c.Kind]
		}

		var o Object
		switch c.Kind {
		case config.KindSelector:
			o = NewSelector(c.ID, c.InitialOn, rest, c.Target, d, sched, sink)
		case config.KindDoor:
			o = NewDoor(c.ID, c.InitialOn, rest, c.Target, d, sched, sink)
		case config.KindKeySwitch:
			o = NewKeySwitch(c.ID, c.InitialOn, rest, c.Target, d, sched, sink)
		case config.KindKey:
			o = NewKey(c.ID, rest, c.Target, d, sched, sink)
		case config.KindHandle:
			o = NewHandle(c.ID, c.InitialOn, rest, c.Target, d, sched, sink)
		case config.KindPadlock:
			o = NewPadlock(c.ID, rest, c.Target, c.Bounce, sched, sink)
		case config.KindButton:
			o = NewButton(c.ID, rest, c.Target, d, c.Bounce, sched, sink)
		default:
			return nil, fmt.Errorf("object %q: unknown kind %q", c.ID, c.Kind)
		}

		if err := scene.Add(o); err != nil {
			return nil, err
		}
	}

	for _, c := range cfgs {
		if c.Dependent == "" {
			continue
		}
		dep, ok := scene.Get(c.Dependent)
		if !ok {
			return nil, fmt.Errorf("object %q: dependent %q not found", c.ID, c.Dependent)
		}
		o, _ := scene.Get(c.ID)

		switch owner := o.(type) {
		case *KeySwitch:
			r, ok := dep.(Resettable)
			if !ok {
				return nil, fmt.Errorf("object %q: dependent %q cannot be reset", c.ID, c.Dependent)
			}
			owner.SetKey(c.Dependent, r)
		case *Handle:
			p, ok := dep.(*Padlock)
			if !ok {
				return nil, fmt.Errorf("object %q: dependent %q is not a padlock", c.ID, c.Dependent)
			}
			owner.SetPadlock(p)
		default:
			return nil, fmt.Errorf("object %q: kind %s has no dependents", c.ID, o.Kind())
		}
	}

	return scene, nil
}
