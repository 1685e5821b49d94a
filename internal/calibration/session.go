package calibration

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sitewalk/sitewalk/internal/geometry"
)

// State is a step of the two-click calibration flow.
type State string

const (
	StateIdle          State = "idle"
	StateAwaitingStart State = "awaiting_start"
	StateAwaitingEnd   State = "awaiting_end"
	StateAwaitingInput State = "awaiting_distance_input"
	StateCommitted     State = "committed"
)

// ErrWrongState is returned when an action does not apply to the current step.
var ErrWrongState = errors.New("calibration action not valid in current state")

// Saver persists a finished calibration. The REST client implements it.
type Saver interface {
	SaveCalibration(ctx context.Context, c Calibration) (*Calibration, error)
}

// Session walks one user through measuring a reference segment on a page.
// Points are PDF-space; the caller converts pointer positions first.
type Session struct {
	mu          sync.Mutex
	saver       Saver
	floorplanID string
	page        int
	state       State
	start, end  geometry.Point
	saved       *Calibration
}

// NewSession creates an idle session for the given floorplan page.
func NewSession(saver Saver, floorplanID string, page int) *Session {
	return &Session{saver: saver, floorplanID: floorplanID, page: page, state: StateIdle}
}

// State returns the current step.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Points returns the recorded reference points so far.
func (s *Session) Points() (start, end geometry.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.start, s.end
}

// Saved returns the persisted calibration once committed.
func (s *Session) Saved() *Calibration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved
}

// SetPage retargets an idle or committed session at another page.
func (s *Session) SetPage(page int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.page = page
	if s.state != StateCommitted {
		s.resetLocked()
	}
}

// Begin enters calibration mode. Starting over from committed is allowed so
// a page can be recalibrated.
func (s *Session) Begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle && s.state != StateCommitted {
		return fmt.Errorf("%w: begin from %s", ErrWrongState, s.state)
	}
	s.resetLocked()
	s.state = StateAwaitingStart
	return nil
}

// Click records the next reference point.
func (s *Session) Click(p geometry.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateAwaitingStart:
		s.start = p
		s.state = StateAwaitingEnd
	case StateAwaitingEnd:
		s.end = p
		s.state = StateAwaitingInput
	default:
		return fmt.Errorf("%w: click in %s", ErrWrongState, s.state)
	}
	return nil
}

// SubmitDistance validates the reference against the real-world distance
// and persists it. Validation failures and save failures leave the session
// in awaiting_distance_input with its points intact so the user can retry.
func (s *Session) SubmitDistance(ctx context.Context, distance float64, unit string) (*Calibration, error) {
	s.mu.Lock()
	if s.state != StateAwaitingInput {
		st := s.state
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: submit in %s", ErrWrongState, st)
	}
	c := Calibration{
		FloorplanID:       s.floorplanID,
		Page:              s.page,
		Start:             s.start,
		End:               s.end,
		RealWorldDistance: distance,
		Unit:              unit,
	}
	s.mu.Unlock()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	scale, _ := ComputeScaleFactor(c)
	c.ScaleFactor = scale

	saved, err := s.saver.SaveCalibration(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("saving calibration: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// A cancel that raced the save wins; the server copy still exists.
	if s.state != StateAwaitingInput {
		return saved, nil
	}
	s.saved = saved
	s.state = StateCommitted
	return saved, nil
}

// Cancel abandons an in-progress calibration and discards its points.
func (s *Session) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateAwaitingStart, StateAwaitingEnd, StateAwaitingInput:
		s.resetLocked()
		return nil
	default:
		return fmt.Errorf("%w: cancel in %s", ErrWrongState, s.state)
	}
}

func (s *Session) resetLocked() {
	s.state = StateIdle
	s.start = geometry.Point{}
	s.end = geometry.Point{}
	s.saved = nil
}
