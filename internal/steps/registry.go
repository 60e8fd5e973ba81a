package steps

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/AaronLay10/SentientTrainer/internal/events"
)

// ErrNoSteps means the registry is empty and no sequence can start.
var ErrNoSteps = errors.New("step registry is empty")

var errNoUsableEntries = errors.New("metadata has no usable entries")

// SourceBuiltin names the hard-coded fallback sequence.
const SourceBuiltin = "builtin"

// Step is one expected interaction of the sequence.
type Step struct {
	Index       int       `json:"index"`
	TargetID    string    `json:"target_id"`
	Title       string    `json:"title"`
	Instruction string    `json:"instruction"`
	Completed   bool      `json:"completed"`
	Question    *Question `json:"question,omitempty"`
}

// Options bound the metadata retry window.
type Options struct {
	Attempts int
	Delay    time.Duration
	Timeout  time.Duration
	// Filter drops entries whose id it rejects, typically ids missing from the scene.
	Filter func(id string) bool
}

func (o Options) withDefaults() Options {
	if o.Attempts <= 0 {
		o.Attempts = 3
	}
	if o.Delay <= 0 {
		o.Delay = 2 * time.Second
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	return o
}

// LoadResult is the outcome of a metadata load. Err holds the cause of a
// fallback and is informational only.
type LoadResult struct {
	Steps    []Step
	Source   string
	Fallback bool
	Err      error
}

// Registry is the ordered list of steps for one training.
// It is owned by the session loop; only Fetch may run elsewhere.
type Registry struct {
	opts   Options
	steps  []Step
	source string
}

// NewRegistry returns a registry holding the built-in sequence until a load applies.
func NewRegistry(opts Options) *Registry {
	return &Registry{
		opts:   opts.withDefaults(),
		steps:  Builtin(),
		source: SourceBuiltin,
	}
}

// Fetch asks the provider for metadata within one bounded retry window and
// builds the step list. It never fails: every error ends in the built-in
// sequence. Fetch does not touch the registry state.
func (r *Registry) Fetch(ctx context.Context, p Provider) LoadResult {
	if p == nil {
		return r.fallback("", errors.New("no metadata provider"))
	}

	attempt := 0
	md, err := backoff.Retry(ctx, func() (*Metadata, error) {
		attempt++
		actx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
		return p.Fetch(actx)
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(r.opts.Delay)),
		backoff.WithMaxTries(uint(r.opts.Attempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			events.Emit("warn", "metadata.retry", err.Error(), map[string]interface{}{
				"provider": p.Name(),
				"attempt":  attempt,
				"next_in":  next.String(),
			})
		}),
	)
	if err != nil {
		return r.fallback(p.Name(), err)
	}

	steps := BuildSteps(md, r.opts.Filter)
	if len(steps) == 0 {
		return r.fallback(p.Name(), errNoUsableEntries)
	}

	return LoadResult{Steps: steps, Source: p.Name()}
}

func (r *Registry) fallback(provider string, cause error) LoadResult {
	events.Emit("warn", "metadata.fallback", "using built-in steps", map[string]interface{}{
		"provider": provider,
		"reason":   cause.Error(),
		"count":    len(builtinSteps),
	})
	return LoadResult{
		Steps:    Builtin(),
		Source:   SourceBuiltin,
		Fallback: true,
		Err:      cause,
	}
}

// Apply replaces the step list with a fetched result.
func (r *Registry) Apply(res LoadResult) {
	r.steps = cloneSteps(res.Steps)
	r.source = res.Source
	for i := range r.steps {
		r.steps[i].Index = i
		r.steps[i].Completed = false
	}

	events.Emit("info", "metadata.loaded", "", map[string]interface{}{
		"source":   res.Source,
		"count":    len(r.steps),
		"fallback": res.Fallback,
	})
}

// Load fetches and applies in one call.
func (r *Registry) Load(ctx context.Context, p Provider) LoadResult {
	res := r.Fetch(ctx, p)
	r.Apply(res)
	return res
}

// LoadAsync runs Fetch on its own goroutine. The channel yields exactly one
// result and is then closed; the receiver applies it on the owning goroutine.
func (r *Registry) LoadAsync(ctx context.Context, p Provider) <-chan LoadResult {
	ch := make(chan LoadResult, 1)
	go func() {
		defer close(ch)
		ch <- r.Fetch(ctx, p)
	}()
	return ch
}

func (r *Registry) Source() string {
	return r.source
}

func (r *Registry) Len() int {
	return len(r.steps)
}

// Steps returns a copy of the step list.
func (r *Registry) Steps() []Step {
	return cloneSteps(r.steps)
}

func (r *Registry) At(i int) (Step, bool) {
	if i < 0 || i >= len(r.steps) {
		return Step{}, false
	}
	return r.steps[i], true
}

func (r *Registry) IndexOf(targetID string) int {
	for i, s := range r.steps {
		if s.TargetID == targetID {
			return i
		}
	}
	return -1
}

func (r *Registry) Contains(targetID string) bool {
	return r.IndexOf(targetID) >= 0
}

// TargetIDs lists the step targets in sequence order.
func (r *Registry) TargetIDs() []string {
	out := make([]string, len(r.steps))
	for i, s := range r.steps {
		out[i] = s.TargetID
	}
	return out
}

func (r *Registry) MarkCompleted(i int) bool {
	if i < 0 || i >= len(r.steps) {
		return false
	}
	r.steps[i].Completed = true
	return true
}

// Reset clears every completed flag.
func (r *Registry) Reset() {
	for i := range r.steps {
		r.steps[i].Completed = false
	}
}

func (r *Registry) Validate() error {
	if len(r.steps) == 0 {
		return ErrNoSteps
	}
	return nil
}

// BuildSteps orders metadata entries by ascending order value. Entries
// without a usable order sort last and keep their encounter order.
func BuildSteps(md *Metadata, filter func(id string) bool) []Step {
	if md == nil {
		return nil
	}

	var entries []Entry
	for _, e := range md.Entries {
		if e.ID == "" {
			continue
		}
		if filter != nil && !filter(e.ID) {
			continue
		}
		entries = append(entries, e)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].Order, entries[j].Order
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a < *b
		}
	})

	steps := make([]Step, len(entries))
	for i, e := range entries {
		title := e.Title
		if title == "" {
			title = fmt.Sprintf("Étape %d", i+1)
		}
		instruction := e.Description
		if instruction == "" {
			instruction = e.Title
		}
		steps[i] = Step{
			Index:       i,
			TargetID:    e.ID,
			Title:       title,
			Instruction: instruction,
			Question:    e.Question,
		}
	}
	return steps
}

var builtinSteps = []struct {
	target      string
	instruction string
}{
	{"commutateur", "Je mets le commutateur en manuel"},
	{"demande-d-acces", "Je fais une demande d'accès et j'active le mode réglage"},
	{"operateur-cle-acces-1", "Je tourne la clé opérateur et la mets en position 0"},
	{"cle-1", "J'enlève la clé et la garde avec moi"},
	{"poignee", "Je fais glisser la poignée de la porte pour l'ouvrir et la bloquer"},
	{"Lock", "J'identifie que j'entre dans la zone avec mon badge"},
	{"porte", "J'ouvre la porte et j'entre dans la zone"},
}

// Builtin returns the fixed seven-step LOTO sequence.
func Builtin() []Step {
	out := make([]Step, len(builtinSteps))
	for i, b := range builtinSteps {
		out[i] = Step{
			Index:       i,
			TargetID:    b.target,
			Title:       fmt.Sprintf("Étape %d", i+1),
			Instruction: b.instruction,
		}
	}
	return out
}

func cloneSteps(in []Step) []Step {
	out := make([]Step, len(in))
	copy(out, in)
	return out
}
