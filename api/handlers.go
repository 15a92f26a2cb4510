/*
handlers.go - HTTP API handlers for the simulation game

PURPOSE:
  Exposes the game service via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the auth and game services.

ENDPOINTS:
  Public:
    GET    /healthz                      Liveness (and store ping)
    POST   /api/auth/signup              Create account, returns session
    POST   /api/auth/login               Returns session
    GET    /api/paths                    Selectable paths and their actions
    GET    /api/loans/emi                Installment quote

  Authenticated (Authorization: Bearer <token>):
    POST   /api/auth/logout              Revoke the token
    GET    /api/game                     Raw game state
    POST   /api/game/path                Select a path (once per game)
    GET    /api/game/metrics             Metrics of the active path
    GET    /api/game/history             Applied actions, newest first
    GET    /api/game/{path}              State + metrics of the active path
    POST   /api/game/{path}/actions      Apply one action
    GET    /api/retirement/allocation    Recommended split for ?risk=1..10
    GET    /api/retirement/investments/{id}/projection
                                         Compounded value after ?years=

REQUEST FLOW:
  1. Parse HTTP request
  2. Resolve the player from the bearer token (middleware)
  3. Call the service; the engine validates the payload
  4. Serialize response
  5. Map errors to a status

ERROR HANDLING:
  Errors are returned as JSON {error, details} with the status picked from
  the error's class:
  - 400: Invalid action, payload, index, path or insufficient funds
  - 401: Missing, unknown or expired token; wrong password
  - 404: No active game, unknown player
  - 409: Lost optimistic-lock race, taken email, path already selected
  - 500: Internal errors (details are logged, not returned)

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/finpath/auth"
	"github.com/warp/finpath/game"
	"github.com/warp/finpath/generic"
	"github.com/warp/finpath/retirement"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Games *game.Service
	Auth  *auth.Service
	Log   *zap.Logger
	// Ping reports store health on /healthz. Nil skips the check.
	Ping func(ctx context.Context) error
}

// NewHandler creates a new handler.
func NewHandler(games *game.Service, authSvc *auth.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Games: games, Auth: authSvc, Log: logger}
}

type contextKey string

const playerContextKey contextKey = "player"

// RequireAuth resolves the bearer token to a player and stores it in the
// request context.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "Missing bearer token", nil)
			return
		}
		id, err := h.Auth.Authenticate(r.Context(), token)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), playerContextKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func playerFrom(ctx context.Context) game.PlayerID {
	id, _ := ctx.Value(playerContextKey).(game.PlayerID)
	return id
}

// =============================================================================
// HEALTH AND CATALOG
// =============================================================================

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.Ping != nil {
		if err := h.Ping(r.Context()); err != nil {
			h.Log.Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, HealthResponse{OK: false})
			return
		}
	}
	writeJSON(w, http.StatusOK, HealthResponse{OK: true})
}

// ListPaths returns every selectable path with its actions.
func (h *Handler) ListPaths(w http.ResponseWriter, r *http.Request) {
	out := make([]PathDTO, 0, len(game.Paths))
	for _, p := range game.Paths {
		actions, err := game.Actions(p)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		out = append(out, PathDTO{Path: p, Actions: actions})
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// AUTH HANDLERS
// =============================================================================

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var in auth.Credentials
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	sess, err := h.Auth.Signup(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var in auth.Credentials
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	sess, err := h.Auth.Login(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.Auth.Logout(r.Context(), bearerToken(r.Header.Get("Authorization"))); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// GAME HANDLERS
// =============================================================================

// GetGame returns the raw game state. A player without a game gets an empty
// state with no path.
func (h *Handler) GetGame(w http.ResponseWriter, r *http.Request) {
	state, err := h.Games.State(r.Context(), playerFrom(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *Handler) SelectPath(w http.ResponseWriter, r *http.Request) {
	var in SelectPathRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	p, err := game.ParsePath(in.Path)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.Games.SelectPath(r.Context(), playerFrom(r.Context()), p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := h.Games.Metrics(r.Context(), playerFrom(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit", game.DefaultHistoryLimit)
	if err != nil || limit < 1 || limit > 500 {
		writeError(w, http.StatusBadRequest, "limit must be between 1 and 500", err)
		return
	}
	entries, err := h.Games.History(r.Context(), playerFrom(r.Context()), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Entries: entries})
}

// GetPathView returns state and metrics when {path} is the active path.
func (h *Handler) GetPathView(w http.ResponseWriter, r *http.Request) {
	p, err := game.ParsePath(chi.URLParam(r, "path"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	state, err := h.activeState(r.Context(), p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	m, err := game.ComputeMetrics(state)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, game.Result{State: state, Metrics: m})
}

func (h *Handler) ApplyAction(w http.ResponseWriter, r *http.Request) {
	p, err := game.ParsePath(chi.URLParam(r, "path"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var in ActionRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if in.Action == "" {
		writeError(w, http.StatusBadRequest, "action is required", nil)
		return
	}
	res, err := h.Games.Act(r.Context(), playerFrom(r.Context()), p, in.Action, in.Payload)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// =============================================================================
// RETIREMENT TOOLS
// =============================================================================

func (h *Handler) GetAllocation(w http.ResponseWriter, r *http.Request) {
	risk, err := intQuery(r, "risk", 5)
	if err != nil {
		writeError(w, http.StatusBadRequest, "risk must be an integer", err)
		return
	}
	state, err := h.activeState(r.Context(), game.PathRetirement)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	alloc, err := retirement.RecommendAllocation(state.Retirement.Investments, risk)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alloc)
}

func (h *Handler) GetProjection(w http.ResponseWriter, r *http.Request) {
	years, err := intQuery(r, "years", 10)
	if err != nil || years < 1 || years > retirement.MaxProjectionYears {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("years must be between 1 and %d", retirement.MaxProjectionYears), err)
		return
	}
	monthly, err := moneyQuery(r, "monthly", decimal.Zero)
	if err != nil || monthly.IsNegative() {
		writeError(w, http.StatusBadRequest, "monthly must be a non-negative amount", err)
		return
	}

	state, err := h.activeState(r.Context(), game.PathRetirement)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ref := generic.ItemRef{ID: generic.ItemID(chi.URLParam(r, "id"))}
	invs := state.Retirement.Investments
	i, err := generic.Resolve("investments", invs, func(inv generic.Investment) generic.ItemID { return inv.ID }, ref)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, retirement.ProjectInvestment(invs[i], years, monthly))
}

// =============================================================================
// LOAN CALCULATOR
// =============================================================================

// QuoteEMI prices a loan with the same rules apply-for-loan and take-loan use.
func (h *Handler) QuoteEMI(w http.ResponseWriter, r *http.Request) {
	principal, perr := moneyQuery(r, "principal", decimal.Zero)
	rate, rerr := moneyQuery(r, "rate", decimal.Zero)
	term, terr := intQuery(r, "term", 0)
	if err := errors.Join(perr, rerr, terr); err != nil {
		writeError(w, http.StatusBadRequest, "principal, rate and term must be numbers", err)
		return
	}

	loan, err := generic.OpenLoan(generic.LoanApplication{
		Amount:       principal,
		InterestRate: rate,
		Term:         term,
	}, "", time.Now())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	total := loan.MonthlyPayment.Mul(decimal.NewFromInt(int64(term) * 12))
	writeJSON(w, http.StatusOK, EMIQuoteDTO{
		Principal:      principal,
		InterestRate:   rate,
		Term:           term,
		MonthlyPayment: loan.MonthlyPayment,
		TotalPayable:   total,
		TotalInterest:  total.Sub(principal),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

// activeState loads the player's game and checks p is its current path.
func (h *Handler) activeState(ctx context.Context, p game.Path) (game.GameState, error) {
	state, err := h.Games.State(ctx, playerFrom(ctx))
	if err != nil {
		return game.GameState{}, err
	}
	if !state.Started() {
		return game.GameState{}, generic.ErrNoActivePath
	}
	if state.CurrentPath != p {
		return game.GameState{}, fmt.Errorf("%w: playing %s, got %s", generic.ErrPathMismatch, state.CurrentPath, p)
	}
	return state, nil
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, generic.ErrUnauthorized):
		return http.StatusUnauthorized
	case generic.IsNotFound(err):
		return http.StatusNotFound
	case generic.IsConflict(err):
		return http.StatusConflict
	case generic.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with its mapped status. Internal errors are logged and
// their details withheld.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.Log.Error("request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeError(w, status, "Internal error", nil)
		return
	}
	writeError(w, status, http.StatusText(status), err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func intQuery(r *http.Request, key string, fallback int) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func moneyQuery(r *http.Request, key string, fallback generic.Money) (generic.Money, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return fallback, nil
	}
	return decimal.NewFromString(v)
}
