package state

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	contractx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/skill/contract"
)

// RunRecord is the persisted trail of one orchestrator run.
type RunRecord struct {
	ID         string            `json:"id"`
	Skill      string            `json:"skill"`
	ConfigPath string            `json:"config_path,omitempty"`
	Outcome    contractx.Outcome `json:"outcome,omitempty"`
	Error      string            `json:"error,omitempty"`
	Steps      []StepRecord      `json:"steps,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// StepRecord is one executed state and where its outcome led. Repeats counts
// further consecutive runs of the same self-loop folded into this entry.
type StepRecord struct {
	Step    int                       `json:"step"`
	State   string                    `json:"state"`
	Outcome contractx.Outcome         `json:"outcome"`
	Next    string                    `json:"next"`
	Goal    *contractx.NavigationGoal `json:"goal,omitempty"`
	Repeats int                       `json:"repeats,omitempty"`
	At      time.Time                 `json:"at"`
}

func NewRunRecord(skill, configPath string, now time.Time) *RunRecord {
	now = now.UTC()
	return &RunRecord{
		ID:         uuid.NewString(),
		Skill:      skill,
		ConfigPath: configPath,
		StartedAt:  now,
		UpdatedAt:  now,
	}
}

// AddStep appends step with the next trail number. A self-loop identical to
// the previous entry only bumps that entry's Repeats, so a state polling
// itself for a long time keeps the trail bounded.
func (r *RunRecord) AddStep(step StepRecord) {
	step.At = step.At.UTC()
	r.UpdatedAt = step.At
	if n := len(r.Steps); n > 0 && step.Goal == nil && step.State == step.Next {
		last := &r.Steps[n-1]
		if last.State == step.State && last.Outcome == step.Outcome && last.Next == step.Next {
			last.Repeats++
			return
		}
	}
	if step.Goal != nil {
		g := *step.Goal
		step.Goal = &g
	}
	step.Step = len(r.Steps) + 1
	step.Repeats = 0
	r.Steps = append(r.Steps, step)
}

// Finish stamps the terminal outcome, or the error that stopped the run.
func (r *RunRecord) Finish(outcome contractx.Outcome, err error, now time.Time) {
	r.Outcome = outcome
	if err != nil {
		r.Error = err.Error()
	}
	r.FinishedAt = now.UTC()
	r.UpdatedAt = r.FinishedAt
}

func (r *RunRecord) Finished() bool {
	return !r.FinishedAt.IsZero()
}

func (r *RunRecord) Validate() error {
	if r == nil {
		return ErrNilRunRecord
	}
	if strings.TrimSpace(r.ID) == "" {
		return ErrInvalidRunID
	}
	if _, err := uuid.Parse(r.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRunID, err)
	}
	if strings.TrimSpace(r.Skill) == "" {
		return errors.New("run record skill is empty")
	}
	for i, s := range r.Steps {
		if s.Step != i+1 {
			return fmt.Errorf("run record step %d has number %d", i+1, s.Step)
		}
		if s.Repeats < 0 {
			return fmt.Errorf("run record step %d has negative repeats %d", s.Step, s.Repeats)
		}
	}
	return nil
}
