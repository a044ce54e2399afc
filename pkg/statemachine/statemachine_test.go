package statemachine_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/linebilling/pkg/statemachine"
)

const (
	Welcome = statemachine.StringState("welcome_sent")
	Select  = statemachine.StringState("add_select")
	Confirm = statemachine.StringState("add_confirm")

	MenuCmd = statemachine.StringEvent("menu")
	AddCmd  = statemachine.StringEvent("add")
	Number  = statemachine.StringEvent("number")
	Yes     = statemachine.StringEvent("yes")
)

// selection carries a data-bearing state value through Self transitions.
type selection struct {
	kind string
	n    int
}

func (s selection) Name() string { return s.kind }

func inRange(max int) statemachine.Guard {
	return func(_ context.Context, _ statemachine.State, _ statemachine.Event, data any) bool {
		n, ok := data.(int)
		return ok && n >= 1 && n <= max
	}
}

func newMachine(t *testing.T, opts ...statemachine.Option) *statemachine.Machine {
	t.Helper()
	base := []statemachine.Option{
		statemachine.WithTransition(statemachine.Any, Welcome, MenuCmd),
		statemachine.WithTransition(statemachine.Any, Select, AddCmd),
		statemachine.WithTransition(Select, Confirm, Number, statemachine.WithGuard(inRange(3))),
		statemachine.WithTransition(Select, statemachine.Self, Number),
		statemachine.WithTransition(Confirm, Welcome, Yes),
	}
	m, err := statemachine.New(append(base, opts...)...)
	require.NoError(t, err)
	return m
}

func TestFire(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("basic transitions", func(t *testing.T) {
		t.Parallel()
		m := newMachine(t)

		next, err := m.Fire(ctx, Welcome, AddCmd, nil)
		require.NoError(t, err)
		assert.Equal(t, Select, next)

		next, err = m.Fire(ctx, next, Number, 2)
		require.NoError(t, err)
		assert.Equal(t, Confirm, next)

		next, err = m.Fire(ctx, next, Yes, nil)
		require.NoError(t, err)
		assert.Equal(t, Welcome, next)
	})

	t.Run("guard falls through to self", func(t *testing.T) {
		t.Parallel()
		m := newMachine(t)

		current := selection{kind: Select.Name(), n: 7}
		next, err := m.Fire(ctx, current, Number, 9)
		require.NoError(t, err)
		assert.Equal(t, current, next, "self keeps the data-bearing value")
	})

	t.Run("wildcard wins over state transitions", func(t *testing.T) {
		t.Parallel()
		var stateSpecificRan bool
		m := newMachine(t, statemachine.WithTransition(Confirm, Confirm, MenuCmd,
			statemachine.WithAction(func(context.Context, statemachine.State, statemachine.State, statemachine.Event, any) error {
				stateSpecificRan = true
				return nil
			}),
		))

		next, err := m.Fire(ctx, selection{kind: Confirm.Name(), n: 2}, MenuCmd, nil)
		require.NoError(t, err)
		assert.Equal(t, Welcome, next)
		assert.False(t, stateSpecificRan)
	})

	t.Run("no transition", func(t *testing.T) {
		t.Parallel()
		m := newMachine(t)

		next, err := m.Fire(ctx, Welcome, Yes, nil)
		require.Error(t, err)
		assert.True(t, statemachine.IsNoTransitionAvailableError(err))
		assert.Equal(t, Welcome, next)
	})

	t.Run("rejected by guards", func(t *testing.T) {
		t.Parallel()
		m, err := statemachine.New(
			statemachine.WithTransition(Select, Confirm, Number, statemachine.WithGuard(inRange(3))),
		)
		require.NoError(t, err)

		_, err = m.Fire(ctx, Select, Number, 4)
		assert.True(t, statemachine.IsTransitionRejectedError(err))
		assert.False(t, m.CanFire(ctx, Select, Number, 4))
		assert.True(t, m.CanFire(ctx, Select, Number, 3))
	})

	t.Run("failing action aborts", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("boom")
		m, err := statemachine.New(
			statemachine.WithTransition(Welcome, Select, AddCmd,
				statemachine.WithAction(func(context.Context, statemachine.State, statemachine.State, statemachine.Event, any) error {
					return boom
				}),
			),
		)
		require.NoError(t, err)

		next, err := m.Fire(ctx, Welcome, AddCmd, nil)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, Welcome, next)
	})

	t.Run("actions receive resolved target", func(t *testing.T) {
		t.Parallel()
		var got statemachine.State
		m, err := statemachine.New(
			statemachine.WithTransition(Select, statemachine.Self, Number,
				statemachine.WithAction(func(_ context.Context, _, to statemachine.State, _ statemachine.Event, _ any) error {
					got = to
					return nil
				}),
			),
		)
		require.NoError(t, err)

		_, err = m.Fire(ctx, Select, Number, 1)
		require.NoError(t, err)
		assert.Equal(t, Select, got)
	})

	t.Run("nil inputs", func(t *testing.T) {
		t.Parallel()
		m := newMachine(t)

		_, err := m.Fire(ctx, nil, AddCmd, nil)
		assert.ErrorIs(t, err, statemachine.ErrInvalidState)
		_, err = m.Fire(ctx, Welcome, nil, nil)
		assert.ErrorIs(t, err, statemachine.ErrInvalidEvent)
		assert.False(t, m.CanFire(ctx, Welcome, nil, nil))
	})
}

func TestNew(t *testing.T) {
	t.Parallel()

	_, err := statemachine.New(statemachine.WithTransition(nil, Welcome, MenuCmd))
	assert.ErrorIs(t, err, statemachine.ErrInvalidTransition)

	assert.Panics(t, func() {
		statemachine.MustNew(statemachine.WithTransition(Welcome, nil, MenuCmd))
	})
}

func TestConcurrentFire(t *testing.T) {
	t.Parallel()
	m := newMachine(t)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			next, err := m.Fire(context.Background(), Select, Number, n%5)
			assert.NoError(t, err)
			assert.NotNil(t, next)
		}(i)
	}
	wg.Wait()
}
