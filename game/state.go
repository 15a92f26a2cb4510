/*
Package game ties the three path engines into one game per player.

PURPOSE:
  A GameState holds the player's chosen path, the month counter and the
  subtree of the active path. ApplyAction routes an action to the engine of
  the current path and advances the month counter on ticks; ComputeMetrics
  returns the active path's projection. Both are pure.

  Service is the stateful shell around them: it serializes actions per
  player, loads and saves through a Store with an optimistic version check,
  and records every applied action in the player's history.

OWNERSHIP:
  Each engine reads and writes only its own subtree. Subtrees of inactive
  paths stay nil.

SEE ALSO:
  - generic/action.go: Action table and funds guard
  - service.go: Locking and persistence
  - store.go: Persistence interfaces
*/
package game

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/warp/finpath/business"
	"github.com/warp/finpath/generic"
	"github.com/warp/finpath/jobsaving"
	"github.com/warp/finpath/retirement"
)

// =============================================================================
// PATHS
// =============================================================================

// Path identifies one of the game modes.
type Path string

const (
	PathNone       Path = ""
	PathJobSaving  Path = jobsaving.Path
	PathBusiness   Path = business.Path
	PathRetirement Path = retirement.Path
)

// Paths lists the selectable paths.
var Paths = []Path{PathJobSaving, PathBusiness, PathRetirement}

// ParsePath validates a path id against the closed set.
func ParsePath(s string) (Path, error) {
	for _, p := range Paths {
		if string(p) == s {
			return p, nil
		}
	}
	return PathNone, fmt.Errorf("%w: %q", generic.ErrInvalidPath, s)
}

// Actions lists the actions path accepts.
func Actions(p Path) ([]generic.Action, error) {
	switch p {
	case PathJobSaving:
		return jobsaving.Actions(), nil
	case PathBusiness:
		return business.Actions(), nil
	case PathRetirement:
		return retirement.Actions(), nil
	}
	return nil, fmt.Errorf("%w: %q", generic.ErrInvalidPath, p)
}

// =============================================================================
// GAME STATE
// =============================================================================

// GameState is everything persisted for one player.
type GameState struct {
	CurrentPath Path              `json:"current_path"`
	Progress    int               `json:"progress"`
	LastPlayed  time.Time         `json:"last_played"`
	JobSaving   *jobsaving.State  `json:"job_saving,omitempty"`
	Business    *business.State   `json:"business,omitempty"`
	Retirement  *retirement.State `json:"retirement,omitempty"`
}

// Started reports whether a path has been selected.
func (g GameState) Started() bool { return g.CurrentPath != PathNone }

// Options supplies what ApplyAction needs besides the state.
type Options struct {
	Now     time.Time
	RNG     generic.Rand
	Holding generic.HoldingMode
	NewID   func() generic.ItemID
}

func (o Options) turn(month int) generic.Turn {
	return generic.Turn{
		Month:   month,
		Now:     o.Now,
		RNG:     o.RNG,
		Holding: o.Holding,
		NewID:   o.NewID,
	}
}

// ApplyAction applies action to the active path and returns the new state.
// state is left untouched; on error the returned state equals state.
func ApplyAction(state GameState, action generic.Action, payload json.RawMessage, opts Options) (GameState, error) {
	if !state.Started() {
		return state, generic.ErrNoActivePath
	}

	next := state
	t := opts.turn(state.Progress)
	var err error

	switch state.CurrentPath {
	case PathJobSaving:
		if state.JobSaving == nil {
			return state, missingSubtree(state.CurrentPath)
		}
		next.JobSaving, err = jobsaving.Apply(state.JobSaving, t, action, payload)
	case PathBusiness:
		if state.Business == nil {
			return state, missingSubtree(state.CurrentPath)
		}
		next.Business, err = business.Apply(state.Business, t, action, payload)
	case PathRetirement:
		if state.Retirement == nil {
			return state, missingSubtree(state.CurrentPath)
		}
		next.Retirement, err = retirement.Apply(state.Retirement, t, action, payload)
	default:
		return state, fmt.Errorf("%w: %q", generic.ErrInvalidPath, state.CurrentPath)
	}
	if err != nil {
		return state, err
	}

	if action == generic.AdvanceMonth {
		next.Progress++
	}
	return next, nil
}

func missingSubtree(p Path) error {
	return fmt.Errorf("game: %s state is missing", p)
}

// =============================================================================
// METRICS
// =============================================================================

// Metrics is the projection of the active path. Exactly one field besides
// Path is set.
type Metrics struct {
	Path       Path                `json:"path"`
	Progress   int                 `json:"progress"`
	JobSaving  *jobsaving.Metrics  `json:"job_saving,omitempty"`
	Business   *business.Metrics   `json:"business,omitempty"`
	Retirement *retirement.Metrics `json:"retirement,omitempty"`
}

// ComputeMetrics projects the active path's indicators. It does not modify
// state.
func ComputeMetrics(state GameState) (Metrics, error) {
	m := Metrics{Path: state.CurrentPath, Progress: state.Progress}

	switch state.CurrentPath {
	case PathNone:
		return m, generic.ErrNoActivePath
	case PathJobSaving:
		if state.JobSaving == nil {
			return m, missingSubtree(state.CurrentPath)
		}
		js := jobsaving.ComputeMetrics(state.JobSaving)
		m.JobSaving = &js
	case PathBusiness:
		if state.Business == nil {
			return m, missingSubtree(state.CurrentPath)
		}
		b := business.ComputeMetrics(state.Business)
		m.Business = &b
	case PathRetirement:
		if state.Retirement == nil {
			return m, missingSubtree(state.CurrentPath)
		}
		r := retirement.ComputeMetrics(state.Retirement)
		m.Retirement = &r
	default:
		return m, fmt.Errorf("%w: %q", generic.ErrInvalidPath, state.CurrentPath)
	}
	return m, nil
}
