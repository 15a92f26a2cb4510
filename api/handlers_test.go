/*
handlers_test.go - HTTP tests for the API

Tests run the full router against the in-memory store:
- Auth: signup, login, logout, bearer token checks
- Game: path selection, actions, views, history, error mapping
- Tools: allocation, projection, EMI quote
*/
package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/warp/finpath/auth"
	"github.com/warp/finpath/business"
	"github.com/warp/finpath/factory"
	"github.com/warp/finpath/game"
	"github.com/warp/finpath/game/store"
	"github.com/warp/finpath/generic"
	"github.com/warp/finpath/retirement"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := zaptest.NewLogger(t)
	mem := store.NewMemory()
	seed := uint64(99)
	games := game.NewService(mem, factory.DefaultPresets(), logger, game.Config{
		Seed:    &seed,
		Holding: generic.HoldingGameMonths,
	})
	authSvc := auth.NewService(mem, logger, auth.Config{BcryptCost: bcrypt.MinCost})
	return NewRouter(NewHandler(games, authSvc, logger), RouterConfig{RequestTimeout: 5 * time.Second})
}

func do(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func signup(t *testing.T, h http.Handler, email string) string {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/auth/signup", "", auth.Credentials{Email: email, Password: "correct horse"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[auth.Session](t, rec).Token
}

func act(t *testing.T, h http.Handler, token string, p game.Path, action generic.Action, payload any) *httptest.ResponseRecorder {
	t.Helper()
	req := ActionRequest{Action: action}
	if payload != nil {
		req.Payload = generic.EncodePayload(payload)
	}
	return do(t, h, http.MethodPost, "/api/game/"+string(p)+"/actions", token, req)
}

// =============================================================================
// AUTH
// =============================================================================

func TestHealthz(t *testing.T) {
	h := newTestRouter(t)
	rec := do(t, h, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[HealthResponse](t, rec).OK)
}

func TestAuthFlow(t *testing.T) {
	h := newTestRouter(t)

	// GIVEN: a signed-up player
	token := signup(t, h, "ada@example.com")

	// THEN: the same email cannot sign up again
	rec := do(t, h, http.MethodPost, "/api/auth/signup", "", auth.Credentials{Email: "ada@example.com", Password: "another one"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// AND: login checks the password
	rec = do(t, h, http.MethodPost, "/api/auth/login", "", auth.Credentials{Email: "ada@example.com", Password: "wrong password"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/auth/login", "", auth.Credentials{Email: "ada@example.com", Password: "correct horse"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode[auth.Session](t, rec).Token)

	// AND: logout revokes the token
	rec = do(t, h, http.MethodPost, "/api/auth/logout", token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/game", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_RejectsBadRequests(t *testing.T) {
	h := newTestRouter(t)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		want   int
	}{
		{"no token", http.MethodGet, "/api/game", "", nil, http.StatusUnauthorized},
		{"unknown token", http.MethodGet, "/api/game", "nope", nil, http.StatusUnauthorized},
		{"weak password", http.MethodPost, "/api/auth/signup", "", auth.Credentials{Email: "bob@example.com", Password: "123"}, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/auth/login", "", map[string]string{"user": "bob"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode[ErrorResponse](t, rec).Error)
		})
	}
}

// =============================================================================
// GAME
// =============================================================================

func TestListPaths(t *testing.T) {
	h := newTestRouter(t)
	rec := do(t, h, http.MethodGet, "/api/paths", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	paths := decode[[]PathDTO](t, rec)
	require.Len(t, paths, 3)
	for _, p := range paths {
		assert.Contains(t, p.Actions, generic.AdvanceMonth, "%s", p.Path)
	}
}

func TestGameBeforePathSelection(t *testing.T) {
	h := newTestRouter(t)
	token := signup(t, h, "ada@example.com")

	rec := do(t, h, http.MethodGet, "/api/game", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[game.GameState](t, rec).Started())

	rec = do(t, h, http.MethodGet, "/api/game/metrics", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = act(t, h, token, game.PathBusiness, generic.AdvanceMonth, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/game/path", token, SelectPathRequest{Path: "moon-base"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBusinessGame(t *testing.T) {
	// GIVEN: a player on the business path
	h := newTestRouter(t)
	token := signup(t, h, "ada@example.com")

	rec := do(t, h, http.MethodPost, "/api/game/path", token, SelectPathRequest{Path: business.Path})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	started := decode[game.Result](t, rec)
	assert.Equal(t, game.PathBusiness, started.State.CurrentPath)
	require.NotNil(t, started.Metrics.Business)

	rec = do(t, h, http.MethodPost, "/api/game/path", token, SelectPathRequest{Path: retirement.Path})
	assert.Equal(t, http.StatusConflict, rec.Code, "path is chosen once")

	// WHEN: hiring two employees and advancing a month
	rec = act(t, h, token, game.PathBusiness, business.ActionHireEmployees,
		business.HireInput{Count: 2, Salary: generic.DI(1000), HiringCost: generic.DI(500)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 7, decode[game.Result](t, rec).State.Business.Details.Employees)

	rec = act(t, h, token, game.PathBusiness, generic.AdvanceMonth, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, decode[game.Result](t, rec).State.Progress)

	// THEN: the path view and history reflect it
	rec = do(t, h, http.MethodGet, "/api/game/"+business.Path, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[game.Result](t, rec)
	assert.Equal(t, 1, view.State.Progress)
	require.NotNil(t, view.Metrics.Business)

	rec = do(t, h, http.MethodGet, "/api/game/history?limit=10", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[HistoryResponse](t, rec)
	require.Len(t, history.Entries, 2)
	assert.Equal(t, generic.AdvanceMonth, history.Entries[0].Action)

	rec = do(t, h, http.MethodGet, "/api/game/history?limit=0", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestActionErrorsMapToStatus(t *testing.T) {
	h := newTestRouter(t)
	token := signup(t, h, "ada@example.com")
	rec := do(t, h, http.MethodPost, "/api/game/path", token, SelectPathRequest{Path: business.Path})
	require.Equal(t, http.StatusCreated, rec.Code)

	tests := []struct {
		name    string
		path    game.Path
		action  generic.Action
		payload any
	}{
		{"overdraw capital", game.PathBusiness, business.ActionInvestMarketing, business.AmountInput{Amount: generic.DI(20_000_000)}},
		{"unknown action", game.PathBusiness, "buy-island", nil},
		{"wrong path", game.PathRetirement, generic.AdvanceMonth, nil},
		{"unknown path", "moon-base", generic.AdvanceMonth, nil},
		{"bad payload", game.PathBusiness, business.ActionHireEmployees, map[string]any{"count": "many"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := act(t, h, token, tt.path, tt.action, tt.payload)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}

	// The failed actions left the game untouched.
	rec = do(t, h, http.MethodGet, "/api/game", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	state := decode[game.GameState](t, rec)
	assert.True(t, state.Business.Details.Capital.Equal(generic.DI(10_000_000)))

	rec = do(t, h, http.MethodGet, "/api/game/"+retirement.Path, token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// TOOLS
// =============================================================================

func TestRetirementTools(t *testing.T) {
	// GIVEN: a retirement game with one stock investment
	h := newTestRouter(t)
	token := signup(t, h, "ada@example.com")
	rec := do(t, h, http.MethodPost, "/api/game/path", token, SelectPathRequest{Path: retirement.Path})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = act(t, h, token, game.PathRetirement, retirement.ActionMakeInvestment,
		map[string]any{"type": "stocks", "amount": 10000})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	invs := decode[game.Result](t, rec).State.Retirement.Investments
	require.Len(t, invs, 1)

	// WHEN/THEN: allocation follows the risk level
	rec = do(t, h, http.MethodGet, "/api/retirement/allocation?risk=5", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	alloc := decode[retirement.Allocation](t, rec)
	assert.Equal(t, 40, alloc.Stocks.Percentage)
	assert.Equal(t, 10, alloc.Alternatives.Percentage)

	rec = do(t, h, http.MethodGet, "/api/retirement/allocation?risk=11", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// AND: the investment can be projected
	rec = do(t, h, http.MethodGet, "/api/retirement/investments/"+string(invs[0].ID)+"/projection?years=1", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	proj := decode[retirement.Projection](t, rec)
	assert.True(t, proj.FinalAmount.Equal(generic.DI(10800)), "got %s", proj.FinalAmount)

	rec = do(t, h, http.MethodGet, "/api/retirement/investments/missing/projection", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQuoteEMI(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/api/loans/emi?principal=100000&rate=12&term=1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	q := decode[EMIQuoteDTO](t, rec)
	assert.True(t, q.MonthlyPayment.Equal(generic.D(8884.88)), "got %s", q.MonthlyPayment)
	assert.True(t, q.TotalPayable.Equal(generic.D(106618.56)), "got %s", q.TotalPayable)
	assert.True(t, q.TotalInterest.Equal(generic.D(6618.56)), "got %s", q.TotalInterest)

	for _, bad := range []string{
		"principal=100000&rate=12&term=0",
		"principal=-5&rate=12&term=1",
		"principal=abc&rate=12&term=1",
	} {
		rec := do(t, h, http.MethodGet, "/api/loans/emi?"+bad, "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}
}
