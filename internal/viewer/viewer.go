// Package viewer holds the page/zoom/retry state of an in-browser magazine viewer.
// All transitions clamp instead of failing, so a stale client can never push the
// state outside its bounds.
package viewer

import (
	"errors"
	"math"
	"strings"

	"github.com/Sibusisongondo/Tdone/pkg/domain"
)

// Zoom bounds and step. A reset returns to DefaultScale.
const (
	MinScale     = 0.5
	MaxScale     = 3.0
	DefaultScale = 1.0
	ScaleStep    = 0.25
)

// MaxRetries is how many times one viewing session may reload a file that
// failed to render.
const MaxRetries = 3

// Action is a viewer control, named as the client sends it.
type Action string

const (
	ActionNext      Action = "next"
	ActionPrev      Action = "prev"
	ActionGoto      Action = "goto"
	ActionZoomIn    Action = "zoom_in"
	ActionZoomOut   Action = "zoom_out"
	ActionResetZoom Action = "reset_zoom"
	ActionRetry     Action = "retry"
)

var (
	// ErrUnknownAction is the only input the viewer rejects instead of clamping.
	ErrUnknownAction = errors.New("unknown viewer action")
	// ErrRetriesExhausted is returned by a retry once MaxRetries were used.
	ErrRetriesExhausted = errors.New("viewer retries exhausted")
)

// State is the persisted viewer position for one reader and one magazine.
type State struct {
	Page     int     `json:"page"`
	NumPages int     `json:"num_pages"`
	Scale    float64 `json:"scale"`
	Retries  int     `json:"retries"`
}

// New returns the initial state for a document with numPages pages.
func New(numPages int) State {
	return State{Page: 1, NumPages: numPages, Scale: DefaultScale}.Normalize()
}

// ParseAction accepts the wire names plus a few camelCase aliases.
func ParseAction(raw string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "next":
		return ActionNext, nil
	case "prev", "previous":
		return ActionPrev, nil
	case "goto", "go_to":
		return ActionGoto, nil
	case "zoom_in", "zoomin":
		return ActionZoomIn, nil
	case "zoom_out", "zoomout":
		return ActionZoomOut, nil
	case "reset_zoom", "resetzoom", "reset":
		return ActionResetZoom, nil
	case "retry":
		return ActionRetry, nil
	default:
		return "", ErrUnknownAction
	}
}

// ClampPage bounds page to [1, numPages]. numPages below 1 is treated as 1.
func ClampPage(page, numPages int) int {
	if numPages < 1 {
		numPages = 1
	}
	return min(max(page, 1), numPages)
}

// ClampScale bounds scale to [MinScale, MaxScale] and rounds to hundredths.
// NaN, having no position, falls back to DefaultScale.
func ClampScale(scale float64) float64 {
	if math.IsNaN(scale) {
		return DefaultScale
	}
	scale = math.Min(math.Max(scale, MinScale), MaxScale)
	return math.Round(scale*100) / 100
}

// Normalize clamps every field into range.
func (s State) Normalize() State {
	if s.NumPages < 1 {
		s.NumPages = 1
	}
	s.Page = ClampPage(s.Page, s.NumPages)
	s.Scale = ClampScale(s.Scale)
	s.Retries = min(max(s.Retries, 0), MaxRetries)
	return s
}

// Reopen starts a new viewing session from a saved state. Page and zoom carry
// over; the retry budget does not.
func (s State) Reopen() State {
	s.Retries = 0
	return s.Normalize()
}

// Apply returns the state after action. page is only read by ActionGoto.
func (s State) Apply(action Action, page int) (State, error) {
	s = s.Normalize()
	switch action {
	case ActionNext:
		s.Page = ClampPage(s.Page+1, s.NumPages)
	case ActionPrev:
		s.Page = ClampPage(s.Page-1, s.NumPages)
	case ActionGoto:
		s.Page = ClampPage(page, s.NumPages)
	case ActionZoomIn:
		s.Scale = ClampScale(s.Scale + ScaleStep)
	case ActionZoomOut:
		s.Scale = ClampScale(s.Scale - ScaleStep)
	case ActionResetZoom:
		s.Scale = DefaultScale
	case ActionRetry:
		if s.Retries >= MaxRetries {
			return s, ErrRetriesExhausted
		}
		s.Retries++
	default:
		return s, ErrUnknownAction
	}
	return s, nil
}

// View converts the state into the response shape.
func (s State) View() domain.ViewerState {
	s = s.Normalize()
	return domain.ViewerState{
		Page:     s.Page,
		NumPages: s.NumPages,
		Scale:    s.Scale,
		MinScale: MinScale,
		MaxScale: MaxScale,
		Retries:  s.Retries,
		CanPrev:  s.Page > 1,
		CanNext:  s.Page < s.NumPages,
	}
}
