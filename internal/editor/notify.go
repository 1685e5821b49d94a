package editor

import (
	"errors"

	"github.com/sitewalk/sitewalk/internal/annotation"
	"github.com/sitewalk/sitewalk/internal/calibration"
	"github.com/sitewalk/sitewalk/internal/drawing"
)

// Severity tells the UI how to present a notice.
type Severity int

const (
	// SeverityTransient is a dismissable toast; local state is kept for retry.
	SeverityTransient Severity = iota
	// SeverityBlocking aborts the operation until the user acknowledges it.
	SeverityBlocking
	// SeverityNeutral accompanies the empty page state after a render failure.
	SeverityNeutral
)

func (s Severity) String() string {
	switch s {
	case SeverityBlocking:
		return "blocking"
	case SeverityNeutral:
		return "neutral"
	default:
		return "transient"
	}
}

// Notice is a user-facing message about a failed operation.
type Notice struct {
	Severity Severity
	Message  string
	Err      error
}

// Notifier receives notices from a session.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

// Notify calls f.
func (f NotifierFunc) Notify(n Notice) { f(n) }

var blockingErrors = []struct {
	err error
	msg string
}{
	{annotation.ErrMissingGeometry, "The annotation is missing its geometry."},
	{annotation.ErrPageOutOfRange, "The page does not exist on this floorplan."},
	{annotation.ErrInvalidOpacity, "Opacity must be between 0 and 1."},
	{annotation.ErrUnknownType, "Unknown annotation type."},
	{annotation.ErrTypeMismatch, "An annotation cannot change its type."},
	{calibration.ErrInvalidCalibration, "Calibration points must differ and the distance must be positive."},
	{calibration.ErrUnknownUnit, "Unknown unit of measure."},
	{calibration.ErrWrongState, "Calibration is not waiting for that step."},
	{drawing.ErrUnknownTool, "Unknown drawing tool."},
	{drawing.ErrNothingPending, "There is nothing to retry."},
}

// Classify maps an error to a notice. Input errors raised before any
// network call are blocking; everything else is transient.
func Classify(err error) Notice {
	for _, b := range blockingErrors {
		if errors.Is(err, b.err) {
			return Notice{Severity: SeverityBlocking, Message: b.msg, Err: err}
		}
	}
	return Notice{
		Severity: SeverityTransient,
		Message:  "The change could not be saved. Try again.",
		Err:      err,
	}
}
