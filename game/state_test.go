package game_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/finpath/business"
	"github.com/warp/finpath/game"
	"github.com/warp/finpath/generic"
	"github.com/warp/finpath/jobsaving"
)

type fixed float64

func (f fixed) Float64() float64 { return float64(f) }

var clock = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func opts() game.Options {
	return game.Options{Now: clock, RNG: fixed(0.5), Holding: generic.HoldingGameMonths}
}

func jobSavingGame() game.GameState {
	return game.GameState{
		CurrentPath: game.PathJobSaving,
		JobSaving: &jobsaving.State{
			Salary: generic.DI(50000),
			Expenses: []generic.Expense{
				{ID: "rent", Category: "Rent", Amount: generic.DI(15000), Recurring: true},
			},
		},
	}
}

func TestParsePath(t *testing.T) {
	for _, p := range game.Paths {
		got, err := game.ParsePath(string(p))
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}

	_, err := game.ParsePath("lottery")
	assert.True(t, errors.Is(err, generic.ErrInvalidPath))
	_, err = game.ParsePath("")
	assert.True(t, errors.Is(err, generic.ErrInvalidPath))
}

func TestActions_PerPath(t *testing.T) {
	for _, p := range game.Paths {
		actions, err := game.Actions(p)
		require.NoError(t, err)
		assert.Contains(t, actions, generic.AdvanceMonth, "every path ticks")
	}
	_, err := game.Actions(game.PathNone)
	assert.True(t, errors.Is(err, generic.ErrInvalidPath))
}

func TestApplyAction_AdvanceMonthBumpsProgress(t *testing.T) {
	// GIVEN: a job-saving game at month 0
	state := jobSavingGame()

	// WHEN: two months pass
	next, err := game.ApplyAction(state, generic.AdvanceMonth, nil, opts())
	require.NoError(t, err)
	next, err = game.ApplyAction(next, generic.AdvanceMonth, nil, opts())
	require.NoError(t, err)

	// THEN: progress is 2 and savings hold two months of surplus
	assert.Equal(t, 2, next.Progress)
	assert.True(t, next.JobSaving.Savings.Equal(generic.DI(70000)), "got %s", next.JobSaving.Savings)

	// AND: the input was not touched
	assert.Equal(t, 0, state.Progress)
	assert.True(t, state.JobSaving.Savings.IsZero())
}

func TestApplyAction_OtherActionsKeepProgress(t *testing.T) {
	state := jobSavingGame()

	next, err := game.ApplyAction(state, jobsaving.ActionAddSavings,
		generic.EncodePayload(jobsaving.AmountInput{Amount: generic.DI(500)}), opts())
	require.NoError(t, err)

	assert.Equal(t, 0, next.Progress)
	assert.True(t, next.JobSaving.Savings.Equal(generic.DI(500)))
}

func TestApplyAction_FailureReturnsInput(t *testing.T) {
	state := jobSavingGame()

	next, err := game.ApplyAction(state, jobsaving.ActionAddSavings,
		generic.EncodePayload(jobsaving.AmountInput{Amount: generic.DI(-1)}), opts())

	assert.True(t, errors.Is(err, generic.ErrInsufficientFunds))
	assert.Equal(t, state, next)
}

func TestApplyAction_NoActivePath(t *testing.T) {
	_, err := game.ApplyAction(game.GameState{}, generic.AdvanceMonth, nil, opts())
	assert.True(t, errors.Is(err, generic.ErrNoActivePath))
}

func TestApplyAction_UnknownActionForPath(t *testing.T) {
	// A business action sent to a job-saving game is unknown there.
	_, err := game.ApplyAction(jobSavingGame(), business.ActionHireEmployees, nil, opts())
	assert.True(t, errors.Is(err, generic.ErrInvalidAction))
}

func TestApplyAction_MissingSubtree(t *testing.T) {
	state := game.GameState{CurrentPath: game.PathBusiness}

	_, err := game.ApplyAction(state, generic.AdvanceMonth, nil, opts())
	assert.Error(t, err)
	_, err = game.ComputeMetrics(state)
	assert.Error(t, err)
}

func TestComputeMetrics_ActivePathOnly(t *testing.T) {
	m, err := game.ComputeMetrics(jobSavingGame())
	require.NoError(t, err)

	assert.Equal(t, game.PathJobSaving, m.Path)
	require.NotNil(t, m.JobSaving)
	assert.Nil(t, m.Business)
	assert.Nil(t, m.Retirement)
	assert.True(t, m.JobSaving.MonthlySurplus.Equal(generic.DI(35000)))

	_, err = game.ComputeMetrics(game.GameState{})
	assert.True(t, errors.Is(err, generic.ErrNoActivePath))
}
