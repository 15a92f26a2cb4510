/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures the HTTP layer adds on top of the domain
  types. Game state, metrics and history entries are already JSON-shaped
  and are returned as they are.

NAMING CONVENTION:
  - *Request: Request body types from clients
  - *Response / *DTO: Response types returned to clients

VALIDATION:
  Validation is done in handlers and the domain packages, not in DTOs.
  DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - game/service.go: Result, the state + metrics pair
*/
package api

import (
	"encoding/json"

	"github.com/warp/finpath/game"
	"github.com/warp/finpath/generic"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// SelectPathRequest starts a game.
type SelectPathRequest struct {
	Path string `json:"path"`
}

// ActionRequest applies one action to the current path.
type ActionRequest struct {
	Action  generic.Action  `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// PathDTO describes a selectable path.
type PathDTO struct {
	Path    game.Path        `json:"path"`
	Actions []generic.Action `json:"actions"`
}

// HistoryResponse wraps a page of history, newest first.
type HistoryResponse struct {
	Entries []game.HistoryEntry `json:"entries"`
}

// EMIQuoteDTO is the installment schedule for a prospective loan.
type EMIQuoteDTO struct {
	Principal      generic.Money `json:"principal"`
	InterestRate   generic.Money `json:"interest_rate"`
	Term           int           `json:"term"`
	MonthlyPayment generic.Money `json:"monthly_payment"`
	TotalPayable   generic.Money `json:"total_payable"`
	TotalInterest  generic.Money `json:"total_interest"`
}

// HealthResponse is returned by /healthz.
type HealthResponse struct {
	OK bool `json:"ok"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}
