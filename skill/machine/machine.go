// Package machine runs finite state machines whose transitions are declared
// as a (state, outcome) -> target table and checked when the machine is built.
package machine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/skill/contract"
)

var ErrMaxStepsExceeded = errors.New("state machine exceeded max steps")

type State string

// Target is where an outcome leads: another state, or a terminal outcome of
// the machine itself. Exactly one field is set.
type Target struct {
	State   State
	Outcome contractx.Outcome
}

func To(s State) Target { return Target{State: s} }

func Finish(o contractx.Outcome) Target { return Target{Outcome: o} }

func (t Target) Terminal() bool { return t.State == "" }

func (t Target) String() string {
	if t.Terminal() {
		return string(t.Outcome)
	}
	return string(t.State)
}

type StateFunc[S any] func(ctx context.Context, data *S) (contractx.Outcome, error)

// StateSpec declares one state: its body, its outcome set and where each
// outcome goes. Outcomes and the keys of Transitions must be the same set.
type StateSpec[S any] struct {
	Name        State
	Run         StateFunc[S]
	Outcomes    []contractx.Outcome
	Transitions map[contractx.Outcome]Target
}

// Transition is reported to observers after every state execution.
type Transition struct {
	Machine string
	Step    int
	From    State
	Outcome contractx.Outcome
	To      Target
	At      time.Time
}

type Option func(*options)

type options struct {
	observers []func(Transition)
	maxSteps  int
	now       func() time.Time
}

func WithObserver(fn func(Transition)) Option {
	return func(o *options) {
		if fn != nil {
			o.observers = append(o.observers, fn)
		}
	}
}

// WithMaxSteps bounds the number of executed states. Zero means unbounded.
func WithMaxSteps(n int) Option {
	return func(o *options) {
		o.maxSteps = n
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

type Machine[S any] struct {
	name     string
	initial  State
	terminal map[contractx.Outcome]struct{}
	states   map[State]StateSpec[S]
	order    []State
	opts     options
}

// New validates the transition table exhaustively: every state has a body,
// every declared outcome leads somewhere, and every target exists.
func New[S any](
	name string,
	initial State,
	terminal []contractx.Outcome,
	states []StateSpec[S],
	opts ...Option,
) (*Machine[S], error) {
	m := &Machine[S]{
		name:     strings.TrimSpace(name),
		initial:  initial,
		terminal: make(map[contractx.Outcome]struct{}, len(terminal)),
		states:   make(map[State]StateSpec[S], len(states)),
		opts:     options{now: time.Now},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&m.opts)
		}
	}

	if m.name == "" {
		return nil, fmt.Errorf("%w: machine name is empty", contractx.ErrInvalidTransitionTable)
	}
	if len(states) == 0 {
		return nil, fmt.Errorf("%w: machine=%s has no states", contractx.ErrInvalidTransitionTable, m.name)
	}
	if len(terminal) == 0 {
		return nil, fmt.Errorf("%w: machine=%s has no terminal outcomes", contractx.ErrInvalidTransitionTable, m.name)
	}
	for _, o := range terminal {
		m.terminal[o] = struct{}{}
	}

	for _, st := range states {
		if strings.TrimSpace(string(st.Name)) == "" {
			return nil, fmt.Errorf("%w: machine=%s has a state without name", contractx.ErrInvalidTransitionTable, m.name)
		}
		if _, dup := m.states[st.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate state=%s", contractx.ErrInvalidTransitionTable, st.Name)
		}
		if st.Run == nil {
			return nil, fmt.Errorf("%w: state=%s has no body", contractx.ErrInvalidTransitionTable, st.Name)
		}
		if len(st.Outcomes) == 0 {
			return nil, fmt.Errorf("%w: state=%s declares no outcomes", contractx.ErrInvalidTransitionTable, st.Name)
		}
		if err := checkOutcomes(st); err != nil {
			return nil, err
		}
		m.states[st.Name] = st
		m.order = append(m.order, st.Name)
	}

	if _, ok := m.states[initial]; !ok {
		return nil, fmt.Errorf("%w: initial state=%s is not registered", contractx.ErrInvalidTransitionTable, initial)
	}

	for _, name := range m.order {
		st := m.states[name]
		for outcome, target := range st.Transitions {
			if outcome == "" {
				return nil, fmt.Errorf("%w: state=%s has an empty outcome", contractx.ErrInvalidTransitionTable, name)
			}
			switch {
			case target.State != "" && target.Outcome != "":
				return nil, fmt.Errorf("%w: state=%s outcome=%s targets both a state and an outcome", contractx.ErrInvalidTransitionTable, name, outcome)
			case target.Terminal():
				if _, ok := m.terminal[target.Outcome]; !ok {
					return nil, fmt.Errorf("%w: state=%s outcome=%s targets unknown machine outcome=%q", contractx.ErrInvalidTransitionTable, name, outcome, target.Outcome)
				}
			default:
				if _, ok := m.states[target.State]; !ok {
					return nil, fmt.Errorf("%w: state=%s outcome=%s targets unknown state=%s", contractx.ErrInvalidTransitionTable, name, outcome, target.State)
				}
			}
		}
	}

	return m, nil
}

// checkOutcomes requires a transition for every declared outcome and no
// transition for an outcome the state never yields.
func checkOutcomes[S any](st StateSpec[S]) error {
	declared := make(map[contractx.Outcome]struct{}, len(st.Outcomes))
	for _, o := range st.Outcomes {
		if o == "" {
			return fmt.Errorf("%w: state=%s declares an empty outcome", contractx.ErrInvalidTransitionTable, st.Name)
		}
		if _, ok := st.Transitions[o]; !ok {
			return fmt.Errorf("%w: state=%s outcome=%s has no transition", contractx.ErrInvalidTransitionTable, st.Name, o)
		}
		declared[o] = struct{}{}
	}
	for o := range st.Transitions {
		if _, ok := declared[o]; !ok {
			return fmt.Errorf("%w: state=%s maps undeclared outcome=%q", contractx.ErrInvalidTransitionTable, st.Name, o)
		}
	}
	return nil
}

func (m *Machine[S]) Name() string { return m.name }

func (m *Machine[S]) Initial() State { return m.initial }

// Outcomes returns the terminal outcomes in sorted order.
func (m *Machine[S]) Outcomes() []contractx.Outcome {
	out := make([]contractx.Outcome, 0, len(m.terminal))
	for o := range m.terminal {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Next resolves a single transition without running anything.
func (m *Machine[S]) Next(from State, outcome contractx.Outcome) (Target, error) {
	st, ok := m.states[from]
	if !ok {
		return Target{}, fmt.Errorf("%w: unknown state=%s", contractx.ErrInvalidTransitionTable, from)
	}
	target, ok := st.Transitions[outcome]
	if !ok {
		return Target{}, fmt.Errorf("%w: state=%s outcome=%q", contractx.ErrUndeclaredOutcome, from, outcome)
	}
	return target, nil
}

// Run executes states starting at the initial state until a terminal outcome
// is reached. Exactly one state runs at a time. The context is checked
// between states only; a running state is never interrupted by the machine.
// observers are called after the ones given to New, for this run only.
func (m *Machine[S]) Run(ctx context.Context, data *S, observers ...func(Transition)) (contractx.Outcome, error) {
	current := m.initial
	for step := 1; ; step++ {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("machine=%s before state=%s: %w", m.name, current, err)
		}
		if m.opts.maxSteps > 0 && step > m.opts.maxSteps {
			return "", fmt.Errorf("%w: machine=%s limit=%d", ErrMaxStepsExceeded, m.name, m.opts.maxSteps)
		}

		st := m.states[current]
		outcome, err := st.Run(ctx, data)
		if err != nil {
			return "", fmt.Errorf("machine=%s state=%s: %w", m.name, current, err)
		}

		target, err := m.Next(current, outcome)
		if err != nil {
			return "", err
		}

		tr := Transition{
			Machine: m.name,
			Step:    step,
			From:    current,
			Outcome: outcome,
			To:      target,
			At:      m.opts.now(),
		}
		for _, obs := range m.opts.observers {
			obs(tr)
		}
		for _, obs := range observers {
			if obs != nil {
				obs(tr)
			}
		}

		if target.Terminal() {
			return target.Outcome, nil
		}
		current = target.State
	}
}
