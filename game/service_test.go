package game_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/warp/finpath/business"
	"github.com/warp/finpath/factory"
	"github.com/warp/finpath/game"
	"github.com/warp/finpath/game/store"
	"github.com/warp/finpath/generic"
	"github.com/warp/finpath/jobsaving"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newService(t *testing.T, cfg game.Config) (*game.Service, *store.Memory, *testClock) {
	t.Helper()
	clk := &testClock{now: clock}
	cfg.Clock = clk.Now
	mem := store.NewMemory()
	svc := game.NewService(mem, factory.DefaultPresets(), zaptest.NewLogger(t), cfg)
	return svc, mem, clk
}

func TestService_SelectPath(t *testing.T) {
	svc, _, _ := newService(t, game.Config{})
	ctx := context.Background()

	// WHEN: alice picks business
	res, err := svc.SelectPath(ctx, "alice", game.PathBusiness)
	require.NoError(t, err)

	// THEN: a fresh business game is persisted with metrics attached
	assert.Equal(t, game.PathBusiness, res.State.CurrentPath)
	assert.Equal(t, clock, res.State.LastPlayed)
	require.NotNil(t, res.Metrics.Business)

	state, err := svc.State(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, game.PathBusiness, state.CurrentPath)
	assert.True(t, state.Business.Details.Capital.Equal(generic.DI(10_000_000)))

	// AND: picking again is a conflict
	_, err = svc.SelectPath(ctx, "alice", game.PathRetirement)
	assert.True(t, errors.Is(err, generic.ErrPathAlreadySelected))
	assert.True(t, generic.IsConflict(err))
}

func TestService_SelectUnknownPath(t *testing.T) {
	svc, _, _ := newService(t, game.Config{})

	_, err := svc.SelectPath(context.Background(), "alice", "moon-base")
	assert.True(t, errors.Is(err, generic.ErrInvalidPath))

	state, err := svc.State(context.Background(), "alice")
	require.NoError(t, err)
	assert.False(t, state.Started())
}

func TestService_ActRequiresActivePath(t *testing.T) {
	svc, _, _ := newService(t, game.Config{})

	_, err := svc.Act(context.Background(), "alice", game.PathJobSaving, generic.AdvanceMonth, nil)
	assert.True(t, errors.Is(err, generic.ErrNoActivePath))

	_, err = svc.Metrics(context.Background(), "alice")
	assert.True(t, errors.Is(err, generic.ErrNoActivePath))
}

func TestService_ActPathMismatch(t *testing.T) {
	svc, _, _ := newService(t, game.Config{})
	ctx := context.Background()
	_, err := svc.SelectPath(ctx, "alice", game.PathRetirement)
	require.NoError(t, err)

	_, err = svc.Act(ctx, "alice", game.PathBusiness, business.ActionHireEmployees, nil)
	assert.True(t, errors.Is(err, generic.ErrPathMismatch))
}

func TestService_ActPersistsAndRecordsHistory(t *testing.T) {
	// GIVEN: a business game
	svc, _, clk := newService(t, game.Config{})
	ctx := context.Background()
	_, err := svc.SelectPath(ctx, "alice", game.PathBusiness)
	require.NoError(t, err)

	// WHEN: she hires and then lets a month pass
	clk.Advance(time.Hour)
	hire := generic.EncodePayload(business.HireInput{Count: 2, Salary: generic.DI(1000), HiringCost: generic.DI(500)})
	res, err := svc.Act(ctx, "alice", game.PathBusiness, business.ActionHireEmployees, hire)
	require.NoError(t, err)
	assert.Equal(t, 7, res.State.Business.Details.Employees)

	clk.Advance(time.Hour)
	res, err = svc.Act(ctx, "alice", game.PathBusiness, generic.AdvanceMonth, nil)
	require.NoError(t, err)

	// THEN: the stored game reflects both actions
	assert.Equal(t, 1, res.State.Progress)
	assert.Equal(t, clock.Add(2*time.Hour), res.State.LastPlayed)
	require.NotNil(t, res.Metrics.Business)

	state, err := svc.State(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, state.Progress)
	assert.Equal(t, 7, state.Business.Details.Employees)

	// AND: history lists them newest first
	entries, err := svc.History(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, generic.AdvanceMonth, entries[0].Action)
	assert.Equal(t, 1, entries[0].Progress)
	assert.Equal(t, business.ActionHireEmployees, entries[1].Action)
	assert.JSONEq(t, string(hire), string(entries[1].Payload))

	limited, err := svc.History(ctx, "alice", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestService_RejectedActionLeavesNoTrace(t *testing.T) {
	svc, _, _ := newService(t, game.Config{})
	ctx := context.Background()
	_, err := svc.SelectPath(ctx, "alice", game.PathJobSaving)
	require.NoError(t, err)
	before, err := svc.State(ctx, "alice")
	require.NoError(t, err)

	_, err = svc.Act(ctx, "alice", game.PathJobSaving, jobsaving.ActionAddSavings,
		generic.EncodePayload(jobsaving.AmountInput{Amount: generic.DI(-1)}))
	assert.True(t, errors.Is(err, generic.ErrInsufficientFunds))

	after, err := svc.State(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, before, after)

	entries, err := svc.History(ctx, "alice", 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestService_ConcurrentActionsAreSerialized(t *testing.T) {
	// GIVEN: one game and many concurrent ticks
	svc, _, _ := newService(t, game.Config{})
	ctx := context.Background()
	_, err := svc.SelectPath(ctx, "alice", game.PathRetirement)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Act(ctx, "alice", game.PathRetirement, generic.AdvanceMonth, nil); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	// THEN: no update was lost
	state, err := svc.State(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 10, state.Progress)
}

func TestService_SeedMakesGamesReplayable(t *testing.T) {
	seed := uint64(7)
	play := func() game.GameState {
		svc, _, _ := newService(t, game.Config{Seed: &seed})
		ctx := context.Background()
		_, err := svc.SelectPath(ctx, "alice", game.PathJobSaving)
		require.NoError(t, err)
		for range 3 {
			_, err = svc.Act(ctx, "alice", game.PathJobSaving, generic.AdvanceMonth, nil)
			require.NoError(t, err)
		}
		state, err := svc.State(ctx, "alice")
		require.NoError(t, err)
		return state
	}

	a, b := play(), play()
	assert.True(t, a.JobSaving.Salary.Equal(b.JobSaving.Salary))
	assert.True(t, a.JobSaving.Savings.Equal(b.JobSaving.Savings))
}

func TestService_Prune(t *testing.T) {
	// GIVEN: an old action, a recent one and an expired session
	svc, mem, clk := newService(t, game.Config{})
	ctx := context.Background()
	_, err := svc.SelectPath(ctx, "alice", game.PathBusiness)
	require.NoError(t, err)
	_, err = svc.Act(ctx, "alice", game.PathBusiness, generic.AdvanceMonth, nil)
	require.NoError(t, err)

	require.NoError(t, mem.CreateSession(ctx, game.Session{
		Token: "stale", PlayerID: "alice", CreatedAt: clock, ExpiresAt: clock.Add(time.Hour),
	}))

	clk.Advance(48 * time.Hour)
	_, err = svc.Act(ctx, "alice", game.PathBusiness, generic.AdvanceMonth, nil)
	require.NoError(t, err)

	// WHEN: pruning with a one-day retention
	require.NoError(t, svc.Prune(ctx, 24*time.Hour))

	// THEN: only the recent entry and no session remain
	entries, err := svc.History(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].Progress)

	_, err = mem.GetSession(ctx, "stale")
	assert.True(t, errors.Is(err, generic.ErrUnauthorized))
}
