package objects

import (
	"testing"
	"time"

	"github.com/AaronLay10/SentientTrainer/internal/animation"
	"github.com/AaronLay10/SentientTrainer/internal/config"
	"github.com/AaronLay10/SentientTrainer/internal/events"
)

const frame = 50 * time.Millisecond

type recordingSink struct {
	transforms map[string]animation.Transform
	visible    map[string]bool
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		transforms: make(map[string]animation.Transform),
		visible:    make(map[string]bool),
	}
}

func (r *recordingSink) SetTransform(id string, t animation.Transform) { r.transforms[id] = t }
func (r *recordingSink) SetVisible(id string, v bool)                  { r.visible[id] = v }

func run(s *animation.Scheduler, d time.Duration) {
	for elapsed := time.Duration(0); elapsed < d; elapsed += frame {
		s.Tick(frame)
	}
}

func defaultScene(t *testing.T) (*Scene, *animation.Scheduler, *recordingSink) {
	t.Helper()
	sched := animation.NewScheduler()
	sink := newRecordingSink()
	scene, err := Build(config.DefaultObjects(), sched, sink)
	if err != nil {
		t.Fatalf("failed to build scene: %v", err)
	}
	return scene, sched, sink
}

func TestToggleWithoutTargetWarns(t *testing.T) {
	events.Clear()
	sched := animation.NewScheduler()
	door := NewDoor("porte", false, animation.Identity, nil, time.Second, sched, nil)

	if door.Toggle() {
		t.Error("toggle without target should report failure")
	}
	if door.State() != StateClosed {
		t.Errorf("state changed to %s", door.State())
	}
	if sched.Len() != 0 {
		t.Error("no transition should start")
	}
	if len(events.Find("object.misconfigured")) != 1 {
		t.Error("expected an object.misconfigured warning")
	}
}

func TestRotaryToggleAndReset(t *testing.T) {
	sched := animation.NewScheduler()
	sink := newRecordingSink()
	door := NewDoor("porte", false, animation.Identity, &animation.Transform{Rotation: animation.Vec3{Y: 30}}, 500*time.Millisecond, sched, sink)

	if !door.Toggle() {
		t.Fatal("toggle failed")
	}
	if door.State() != StateOpen {
		t.Errorf("expected open, got %s", door.State())
	}

	run(sched, 200*time.Millisecond)
	mid := door.Transform().Rotation.Y
	if mid <= 0 || mid >= 30 {
		t.Errorf("expected door mid-swing, got %v", mid)
	}

	door.Reset()
	if door.State() != StateClosed {
		t.Errorf("expected closed after reset, got %s", door.State())
	}
	if door.Transform() != animation.Identity {
		t.Errorf("expected rest transform, got %+v", door.Transform())
	}
	if sched.Active(TargetKey("porte")) {
		t.Error("reset must cancel the in-flight transition")
	}
	if sink.transforms["porte"] != animation.Identity {
		t.Error("sink should receive the rest transform")
	}
}

func TestResetTwiceIsIdempotent(t *testing.T) {
	scene, sched, _ := defaultScene(t)

	for _, o := range scene.All() {
		o.Toggle()
	}
	run(sched, 100*time.Millisecond)

	scene.ResetAll()
	run(sched, time.Second)
	first := scene.Status()

	scene.ResetAll()
	run(sched, time.Second)
	second := scene.Status()

	for i := range first {
		if first[i] != second[i] {
			t.Errorf("%s: second reset changed %+v to %+v", first[i].ID, first[i], second[i])
		}
		if first[i].State != first[i].Initial {
			t.Errorf("%s: state %s, want initial %s", first[i].ID, first[i].State, first[i].Initial)
		}
	}
}

func TestKeyResetSlidesBack(t *testing.T) {
	sched := animation.NewScheduler()
	key := NewKey("cle-1", animation.Identity, &animation.Transform{Position: animation.Vec3{X: -1}}, 500*time.Millisecond, sched, nil)

	key.Toggle()
	run(sched, 500*time.Millisecond)
	if key.Transform().Position.X != -1 {
		t.Fatalf("expected key removed, got %+v", key.Transform())
	}

	key.Reset()
	if key.State() != StateInserted {
		t.Errorf("state should be inserted at once, got %s", key.State())
	}
	if !key.Returning() {
		t.Error("key should be sliding back")
	}
	if key.Transform().Position.X != -1 {
		t.Error("reset of the key is animated, not a snap")
	}

	key.Reset()
	run(sched, 500*time.Millisecond)
	if key.Transform() != animation.Identity {
		t.Errorf("expected key home, got %+v", key.Transform())
	}
	if key.Returning() {
		t.Error("return should have finished")
	}
}

func TestKeyHiddenAwayFromSlot(t *testing.T) {
	sched := animation.NewScheduler()
	sink := newRecordingSink()
	key := NewKey("cle-1", animation.Identity, &animation.Transform{Position: animation.Vec3{X: -1}}, 500*time.Millisecond, sched, sink)

	if !key.Visible() {
		t.Fatal("key should start visible")
	}

	key.Toggle()
	sched.Tick(20 * time.Millisecond)
	if !key.Visible() {
		t.Error("key should stay drawn while still in its slot")
	}
	run(sched, 500*time.Millisecond)
	if key.Visible() || sink.visible["cle-1"] {
		t.Error("removed key should be hidden")
	}

	key.Reset()
	run(sched, 400*time.Millisecond)
	if key.Visible() {
		t.Error("key should stay hidden until it is back in its slot")
	}
	run(sched, 200*time.Millisecond)
	if !key.Visible() || !sink.visible["cle-1"] {
		t.Error("key back home should be visible")
	}
}

func TestKeySwitchResetsKeyWhenOff(t *testing.T) {
	scene, sched, _ := defaultScene(t)

	sw, _ := scene.Get("operateur-cle-acces-1")
	key, _ := scene.Get("cle-1")

	key.Toggle()
	run(sched, time.Second)
	if key.State() != StateRemoved {
		t.Fatalf("expected key removed, got %s", key.State())
	}

	if !sw.Toggle() {
		t.Fatal("switch toggle failed")
	}
	if key.State() != StateInserted {
		t.Errorf("switching from off should reset the key, got %s", key.State())
	}

	ks := sw.(*KeySwitch)
	if deps := ks.Dependents(); len(deps) != 1 || deps[0] != "cle-1" {
		t.Errorf("unexpected dependents %v", deps)
	}
}

func TestKeySwitchDirectionFollowsInitialState(t *testing.T) {
	sched := animation.NewScheduler()
	target := &animation.Transform{Rotation: animation.Vec3{Z: 90}}

	off := NewKeySwitch("a", false, animation.Identity, target, 100*time.Millisecond, sched, nil)
	on := NewKeySwitch("b", true, animation.Identity, target, 100*time.Millisecond, sched, nil)
	off.Toggle()
	on.Toggle()
	run(sched, 100*time.Millisecond)

	if off.Transform().Rotation.Z != 90 {
		t.Errorf("switch starting off should turn +90, got %v", off.Transform().Rotation.Z)
	}
	if on.Transform().Rotation.Z != -90 {
		t.Errorf("switch starting on should turn -90, got %v", on.Transform().Rotation.Z)
	}
}

func TestHandleRevealsPadlock(t *testing.T) {
	events.Clear()
	scene, sched, sink := defaultScene(t)

	handleObj, _ := scene.Get("poignee")
	lockObj, _ := scene.Get("Lock")
	lock := lockObj.(*Padlock)

	if lock.Toggle() {
		t.Error("hidden padlock should not toggle")
	}
	if len(events.Find("object.inactive")) != 1 {
		t.Error("expected object.inactive warning")
	}

	handleObj.Toggle()
	if !lock.Visible() {
		t.Fatal("padlock should be usable as soon as the handle is pulled")
	}

	run(sched, 400*time.Millisecond)
	if lock.Transform().Scale != 1 {
		t.Error("padlock bounce should wait for the slide to end")
	}
	run(sched, 200*time.Millisecond)
	if lock.Transform().Scale <= 1 {
		t.Error("padlock bounce should be playing after the slide")
	}
	run(sched, 300*time.Millisecond)
	if lock.Transform().Scale != 1 {
		t.Errorf("bounce should settle at scale 1, got %v", lock.Transform().Scale)
	}

	if !lock.Toggle() {
		t.Fatal("visible padlock should reveal its tag")
	}
	if lock.State() != StateShown || !sink.visible["Lock/tag"] {
		t.Error("tag should be shown")
	}
	lock.OnValidated()
	if !sched.Active("object/Lock/tag") {
		t.Error("tag bounce should be running")
	}

	handleObj.(*Handle).Reset()
	if lock.Visible() || lock.State() != StateHidden {
		t.Error("handle reset should hide the padlock and tag")
	}
	if sched.Active("object/Lock/tag") {
		t.Error("tag bounce should be cancelled")
	}
}

func TestHandlePushBackHidesPadlock(t *testing.T) {
	scene, sched, _ := defaultScene(t)
	handle, _ := scene.Get("poignee")
	lockObj, _ := scene.Get("Lock")

	handle.Toggle()
	run(sched, time.Second)
	handle.Toggle()
	if lockObj.(*Padlock).Visible() {
		t.Error("pushing the handle back should hide the padlock")
	}
	if handle.State() != handle.InitialState() {
		t.Errorf("handle should be back to %s, got %s", handle.InitialState(), handle.State())
	}
}

func TestButtonLatchesAndSpringsBack(t *testing.T) {
	sched := animation.NewScheduler()
	btn := NewButton("demande-d-acces", animation.Identity, &animation.Transform{Position: animation.Vec3{Z: -0.01}}, 100*time.Millisecond, 0, sched, nil)

	btn.Toggle()
	btn.OnValidated()
	if btn.State() != StatePressed {
		t.Errorf("expected pressed, got %s", btn.State())
	}

	run(sched, 500*time.Millisecond)
	if btn.Transform() != animation.Identity {
		t.Errorf("button should spring back to rest, got %+v", btn.Transform())
	}
	if btn.State() != StatePressed {
		t.Error("request should stay latched")
	}

	btn.Reset()
	if btn.State() != StateReleased {
		t.Errorf("expected released after reset, got %s", btn.State())
	}
}

func TestBuildErrors(t *testing.T) {
	sched := animation.NewScheduler()
	tests := []struct {
		name string
		cfgs []config.ObjectConfig
	}{
		{"duplicate", []config.ObjectConfig{{ID: "a", Kind: "door"}, {ID: "a", Kind: "door"}}},
		{"unknown kind", []config.ObjectConfig{{ID: "a", Kind: "lever"}}},
		{"missing dependent", []config.ObjectConfig{{ID: "a", Kind: "handle", Dependent: "b"}}},
		{"handle needs padlock", []config.ObjectConfig{{ID: "a", Kind: "handle", Dependent: "b"}, {ID: "b", Kind: "door"}}},
		{"door has no dependents", []config.ObjectConfig{{ID: "a", Kind: "door", Dependent: "b"}, {ID: "b", Kind: "key"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Build(tt.cfgs, sched, nil); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSceneOrderAndCapabilities(t *testing.T) {
	scene, _, _ := defaultScene(t)

	want := []string{"commutateur", "demande-d-acces", "operateur-cle-acces-1", "cle-1", "poignee", "Lock", "porte"}
	ids := scene.IDs()
	if len(ids) != len(want) {
		t.Fatalf("expected %d objects, got %d", len(want), len(ids))
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %s, want %s", i, ids[i], want[i])
		}
	}

	hooks := 0
	for _, o := range scene.All() {
		if _, ok := o.(PostValidationHook); ok {
			hooks++
		}
	}
	if hooks != 2 {
		t.Errorf("expected button and padlock to have post-validation hooks, got %d", hooks)
	}
}
