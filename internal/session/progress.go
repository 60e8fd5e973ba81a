package session

import (
	"fmt"
	"time"

	"github.com/AaronLay10/SentientTrainer/internal/steps"
)

type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepCurrent StepStatus = "current"
	StepDone    StepStatus = "done"
)

// Text shown once the procedure is complete.
const (
	completedTitle   = "Formation Terminée !"
	completedText    = "Félicitations ! Vous avez terminé la formation avec succès."
	completedCounter = "TERMINÉ"
)

type StepView struct {
	Index       int        `json:"index"`
	TargetID    string     `json:"target_id"`
	Title       string     `json:"title"`
	Instruction string     `json:"instruction"`
	Status      StepStatus `json:"status"`
}

// Progress is the read model behind the trainee's step panel.
// Notification is the delivery state of the completion record.
type Progress struct {
	SessionID    string     `json:"session_id,omitempty"`
	TrainingID   string     `json:"training_id"`
	Status       Status     `json:"status"`
	Source       string     `json:"source"`
	Run          int        `json:"run"`
	Rejections   int        `json:"rejections"`
	Notification string     `json:"notification,omitempty"`
	Index        int        `json:"index"`
	Total        int        `json:"total"`
	Ratio        float64    `json:"ratio"`
	Counter      string     `json:"counter"`
	Title        string     `json:"title"`
	Current      string     `json:"current"`
	Steps        []StepView `json:"steps"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// buildProgress derives the view from the registry and the current index.
func buildProgress(list []steps.Step, index int, status Status) Progress {
	p := Progress{
		Status: status,
		Index:  index,
		Total:  len(list),
		Steps:  make([]StepView, 0, len(list)),
	}

	for i, s := range list {
		st := StepPending
		switch {
		case s.Completed || (status == StatusCompleted):
			st = StepDone
		case i == index && status == StatusActive:
			st = StepCurrent
		}
		p.Steps = append(p.Steps, StepView{
			Index:       i,
			TargetID:    s.TargetID,
			Title:       s.Title,
			Instruction: s.Instruction,
			Status:      st,
		})
	}

	if p.Total > 0 {
		done := index
		if status == StatusCompleted {
			done = p.Total
		}
		p.Ratio = float64(done) / float64(p.Total)
	}

	switch {
	case status == StatusCompleted:
		p.Title = completedTitle
		p.Current = completedText
		p.Counter = completedCounter
	case index < len(list):
		p.Title = list[index].Title
		p.Current = list[index].Instruction
		p.Counter = Counter(index, len(list))
	}
	return p
}

// Counter formats the step counter, one-based.
func Counter(index, total int) string {
	n := index + 1
	if n > total {
		n = total
	}
	return fmt.Sprintf("Étape %d / %d", n, total)
}
