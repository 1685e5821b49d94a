// Package calibration turns a user-drawn reference segment on a floorplan page
// into a scale factor (real-world units per PDF point) and uses it to convert
// PDF-space lengths and areas into real-world measurements.
package calibration

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/sitewalk/sitewalk/internal/geometry"
)

// ErrInvalidCalibration is returned when a reference segment cannot produce
// a usable scale: coincident endpoints or a non-positive distance.
var ErrInvalidCalibration = errors.New("invalid calibration")

// ErrUnknownUnit is returned for units outside SupportedUnits.
var ErrUnknownUnit = errors.New("unknown unit")

// SupportedUnits maps each accepted unit to its length in meters.
var SupportedUnits = map[string]float64{
	"ft": 0.3048,
	"in": 0.0254,
	"yd": 0.9144,
	"m":  1,
	"cm": 0.01,
	"mm": 0.001,
}

// Calibration is the authoritative reference measurement for one floorplan
// page. At most one exists per (FloorplanID, Page).
type Calibration struct {
	ID                string         `json:"id,omitempty"`
	FloorplanID       string         `json:"floorplan_id"`
	Page              int            `json:"page"`
	Start             geometry.Point `json:"start"`
	End               geometry.Point `json:"end"`
	RealWorldDistance float64        `json:"real_world_distance"`
	Unit              string         `json:"unit"`
	ScaleFactor       float64        `json:"scale_factor,omitempty"`
	CreatedBy         *string        `json:"created_by,omitempty"`
	CreatedAt         time.Time      `json:"created_at,omitzero"`
	UpdatedAt         time.Time      `json:"updated_at,omitzero"`
}

// PDFDistance is the length of the reference segment in PDF points.
func (c Calibration) PDFDistance() float64 {
	return geometry.Distance(c.Start, c.End)
}

// Validate checks the unit and that a scale factor can be derived.
func (c Calibration) Validate() error {
	if _, ok := SupportedUnits[c.Unit]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownUnit, c.Unit)
	}
	_, err := ComputeScaleFactor(c)
	return err
}

// ComputeScaleFactor returns real-world units per PDF point:
// real_world_distance / |end - start|.
func ComputeScaleFactor(c Calibration) (float64, error) {
	if math.IsNaN(c.RealWorldDistance) || c.RealWorldDistance <= 0 {
		return 0, fmt.Errorf("%w: real-world distance must be positive", ErrInvalidCalibration)
	}
	d := c.PDFDistance()
	if d == 0 {
		return 0, fmt.Errorf("%w: reference points are coincident", ErrInvalidCalibration)
	}
	return c.RealWorldDistance / d, nil
}

// Measurement is a length or area expressed in calibrated units.
type Measurement struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// String formats the measurement with two decimals, e.g. "12.50 ft".
func (m Measurement) String() string {
	return strconv.FormatFloat(m.Value, 'f', 2, 64) + " " + m.Unit
}

// Measure converts the PDF-space segment a-b into calibrated units.
func Measure(a, b geometry.Point, c Calibration) (Measurement, error) {
	scale, err := ComputeScaleFactor(c)
	if err != nil {
		return Measurement{}, err
	}
	return Measurement{Value: geometry.Distance(a, b) * scale, Unit: c.Unit}, nil
}

// MeasurePath converts the length of an open PDF-space path.
func MeasurePath(pts []geometry.Point, c Calibration) (Measurement, error) {
	scale, err := ComputeScaleFactor(c)
	if err != nil {
		return Measurement{}, err
	}
	return Measurement{Value: geometry.PathLength(pts) * scale, Unit: c.Unit}, nil
}

// MeasureArea converts the area of a closed PDF-space polygon into square
// calibrated units. Area scales with the square of the linear factor.
func MeasureArea(pts []geometry.Point, c Calibration) (Measurement, error) {
	scale, err := ComputeScaleFactor(c)
	if err != nil {
		return Measurement{}, err
	}
	return Measurement{Value: geometry.PolygonArea(pts) * scale * scale, Unit: "sq " + c.Unit}, nil
}

// Convert re-expresses m (a length) in another supported unit.
func Convert(m Measurement, to string) (Measurement, error) {
	from, ok := SupportedUnits[m.Unit]
	if !ok {
		return Measurement{}, fmt.Errorf("%w: %q", ErrUnknownUnit, m.Unit)
	}
	target, ok := SupportedUnits[to]
	if !ok {
		return Measurement{}, fmt.Errorf("%w: %q", ErrUnknownUnit, to)
	}
	return Measurement{Value: m.Value * from / target, Unit: to}, nil
}
