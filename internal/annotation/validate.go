package annotation

import (
	"errors"
	"fmt"
	"math"
)

// Validation failures. Each is distinct so callers can map them to a
// specific user message; wrap-checks use errors.Is.
var (
	ErrMissingGeometry = errors.New("missing geometry")
	ErrPageOutOfRange  = errors.New("page out of range")
	ErrInvalidOpacity  = errors.New("invalid opacity")
	ErrUnknownType     = errors.New("unknown marker type")
	ErrTypeMismatch    = errors.New("marker type cannot change")
)

// Validate checks that m is well-formed for its type and that its page lies
// within [1, pageCount].
func Validate(m Marker, pageCount int) error {
	info, ok := Lookup(m.Type)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}
	if m.Page < 1 || m.Page > pageCount {
		return fmt.Errorf("%w: page %d not in [1, %d]", ErrPageOutOfRange, m.Page, pageCount)
	}
	if m.Opacity != nil {
		if o := *m.Opacity; math.IsNaN(o) || o < 0 || o > 1 {
			return fmt.Errorf("%w: %v not in [0, 1]", ErrInvalidOpacity, o)
		}
	}
	return validateGeometry(m, info.Kind)
}

func validateGeometry(m Marker, kind GeometryKind) error {
	switch kind {
	case KindPoint, KindText:
		if _, ok := m.Position(); !ok {
			return fmt.Errorf("%w: %s marker needs a position", ErrMissingGeometry, m.Type)
		}
	case KindShape:
		if _, ok := m.Position(); !ok {
			return fmt.Errorf("%w: %s marker needs a position", ErrMissingGeometry, m.Type)
		}
		hasEnd := m.EndX != nil && m.EndY != nil
		hasSize := m.Width != nil && m.Height != nil
		if !hasEnd && !hasSize {
			return fmt.Errorf("%w: %s marker needs an end position or width and height", ErrMissingGeometry, m.Type)
		}
	case KindPath:
		if len(m.Points) < 2 {
			return fmt.Errorf("%w: %s marker needs at least 2 points, got %d", ErrMissingGeometry, m.Type, len(m.Points))
		}
	}
	return nil
}
