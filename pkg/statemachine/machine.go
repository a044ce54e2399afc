package statemachine

import (
	"context"
	"fmt"
)

// Machine is an immutable transition table. It holds no current state: callers
// pass the state they loaded and persist the state Fire returns, which lets the
// same Machine serve any number of independently stored state machines
// concurrently.
type Machine struct {
	// [fromState][event][]Transition
	transitions map[string]map[string][]Transition
}

func (m *Machine) add(from, to State, event Event, guards []Guard, actions []Action) error {
	if from == nil || to == nil || event == nil {
		return ErrInvalidTransition
	}

	fromName := from.Name()
	if _, ok := m.transitions[fromName]; !ok {
		m.transitions[fromName] = make(map[string][]Transition)
	}

	// Multiple transitions per from/event pair enable guard-based branching;
	// registration order is evaluation order.
	m.transitions[fromName][event.Name()] = append(m.transitions[fromName][event.Name()], Transition{
		From:    from,
		To:      to,
		Event:   event,
		Guards:  guards,
		Actions: actions,
	})
	return nil
}

// candidates returns Any transitions followed by the current state's transitions.
func (m *Machine) candidates(current State, event Event) []Transition {
	var out []Transition
	if byEvent, ok := m.transitions[Any.Name()]; ok {
		out = append(out, byEvent[event.Name()]...)
	}
	if current.Name() != Any.Name() {
		if byEvent, ok := m.transitions[current.Name()]; ok {
			out = append(out, byEvent[event.Name()]...)
		}
	}
	return out
}

func (m *Machine) match(ctx context.Context, current State, event Event, data any) (*Transition, error) {
	candidates := m.candidates(current, event)
	if len(candidates) == 0 {
		return nil, NewErrNoTransitionAvailable(current.Name(), event.Name())
	}

	// First transition with passing guards wins.
	for i, t := range candidates {
		passed := true
		for _, guard := range t.Guards {
			if guard != nil && !guard(ctx, current, event, data) {
				passed = false
				break
			}
		}
		if passed {
			return &candidates[i], nil
		}
	}

	return nil, NewErrTransitionRejected(current.Name(), event.Name())
}

// Fire evaluates event against current and returns the next state.
// Actions of the selected transition run in order; the first failing action aborts
// the transition and its error is returned together with current.
func (m *Machine) Fire(ctx context.Context, current State, event Event, data any) (State, error) {
	if current == nil {
		return nil, ErrInvalidState
	}
	if event == nil {
		return current, ErrInvalidEvent
	}

	t, err := m.match(ctx, current, event, data)
	if err != nil {
		return current, err
	}

	to := t.To
	if to.Name() == Self.Name() {
		to = current
	}

	for _, action := range t.Actions {
		if action == nil {
			continue
		}
		if err := action(ctx, current, to, event, data); err != nil {
			return current, fmt.Errorf("action failed: %w", err)
		}
	}

	return to, nil
}

// CanFire reports whether some transition would accept event from current.
func (m *Machine) CanFire(ctx context.Context, current State, event Event, data any) bool {
	if current == nil || event == nil {
		return false
	}
	_, err := m.match(ctx, current, event, data)
	return err == nil
}
