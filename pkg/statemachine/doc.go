// Package statemachine provides a finite-state-machine transition table with
// guards, actions and priority ordering.
//
// Unlike an in-memory state machine object, a Machine never stores the current
// state. The caller loads the state from durable storage, calls Fire and saves
// the returned state, typically with an optimistic version check. One Machine
// value is therefore shared by every chat user of the bot.
//
// # Priority
//
// For a given (state, event) pair transitions are evaluated in registration
// order and the first one whose guards all pass wins. Transitions registered
// from the Any wildcard are evaluated before the concrete state's transitions,
// which models global navigation commands that apply in every state.
//
// # Usage
//
//	const (
//	    Idle    = statemachine.StringState("idle")
//	    Asking  = statemachine.StringState("asking")
//	    Menu    = statemachine.StringEvent("menu")
//	    Number  = statemachine.StringEvent("number")
//	)
//
//	m := statemachine.MustNew(
//	    statemachine.WithTransition(statemachine.Any, Idle, Menu),
//	    statemachine.WithTransition(Idle, Asking, Number,
//	        statemachine.WithGuard(inRange),
//	        statemachine.WithAction(render),
//	    ),
//	    statemachine.WithTransition(Idle, statemachine.Self, Number),
//	)
//
//	next, err := m.Fire(ctx, loaded, Number, turn)
//
// Self as a target returns the current state value unchanged, which is how a
// re-prompt keeps data embedded in the state.
//
// # Errors
//
//	if statemachine.IsNoTransitionAvailableError(err) { /* ... */ }
//	if statemachine.IsTransitionRejectedError(err)   { /* ... */ }
package statemachine
