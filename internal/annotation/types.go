// Package annotation defines markers placed on floorplan pages: the enumerated
// marker types, their geometry rules, validation, and the version-chain rule
// that turns an edit into a new immutable record.
package annotation

import "sort"

// MarkerType is the kind of annotation or equipment placement.
type MarkerType string

const (
	TypeAccessPoint MarkerType = "access_point"
	TypeCamera      MarkerType = "camera"
	TypeElevator    MarkerType = "elevator"
	TypeIntercom    MarkerType = "intercom"
	TypeNote        MarkerType = "note"
	TypeMeasurement MarkerType = "measurement"
	TypeArea        MarkerType = "area"
	TypeCircle      MarkerType = "circle"
	TypeRectangle   MarkerType = "rectangle"
	TypeText        MarkerType = "text"
	TypeCallout     MarkerType = "callout"
	TypeArrow       MarkerType = "arrow"
	TypeCloud       MarkerType = "cloud"
	TypePolygon     MarkerType = "polygon"
	TypeStamp       MarkerType = "stamp"
	TypePolyline    MarkerType = "polyline"
)

// GeometryKind says which geometry fields a marker type needs.
type GeometryKind int

const (
	// KindPoint needs only a position.
	KindPoint GeometryKind = iota
	// KindShape needs a position plus an end position or width and height.
	KindShape
	// KindPath needs at least two points.
	KindPath
	// KindText is anchored at a position and carries text content.
	KindText
)

func (k GeometryKind) String() string {
	switch k {
	case KindPoint:
		return "point"
	case KindShape:
		return "shape"
	case KindPath:
		return "path"
	case KindText:
		return "text"
	}
	return "unknown"
}

// Style is the default look applied to a new marker of a type.
type Style struct {
	Color     string
	FillColor string
	Opacity   float64
	LineWidth float64
	FontSize  float64
}

// TypeInfo describes one marker type.
type TypeInfo struct {
	Kind      GeometryKind
	Label     string
	Equipment bool
	Closed    bool // path types that close back to the first point
	Style     Style
}

var registry = map[MarkerType]TypeInfo{
	TypeAccessPoint: {Kind: KindPoint, Label: "Access Point", Equipment: true, Style: Style{Color: "#2563eb", Opacity: 1, LineWidth: 2}},
	TypeCamera:      {Kind: KindPoint, Label: "Camera", Equipment: true, Style: Style{Color: "#dc2626", Opacity: 1, LineWidth: 2}},
	TypeElevator:    {Kind: KindPoint, Label: "Elevator", Equipment: true, Style: Style{Color: "#7c3aed", Opacity: 1, LineWidth: 2}},
	TypeIntercom:    {Kind: KindPoint, Label: "Intercom", Equipment: true, Style: Style{Color: "#059669", Opacity: 1, LineWidth: 2}},
	TypeNote:        {Kind: KindPoint, Label: "Note", Style: Style{Color: "#f59e0b", Opacity: 1, LineWidth: 1}},
	TypeStamp:       {Kind: KindPoint, Label: "Stamp", Style: Style{Color: "#be123c", Opacity: 1, LineWidth: 2, FontSize: 14}},
	TypeText:        {Kind: KindText, Label: "Text", Style: Style{Color: "#111827", Opacity: 1, LineWidth: 1, FontSize: 12}},
	TypeMeasurement: {Kind: KindShape, Label: "Measurement", Style: Style{Color: "#0891b2", Opacity: 1, LineWidth: 2, FontSize: 11}},
	TypeArrow:       {Kind: KindShape, Label: "Arrow", Style: Style{Color: "#ef4444", Opacity: 1, LineWidth: 2}},
	TypeRectangle:   {Kind: KindShape, Label: "Rectangle", Style: Style{Color: "#ef4444", Opacity: 1, LineWidth: 2}},
	TypeCircle:      {Kind: KindShape, Label: "Circle", Style: Style{Color: "#ef4444", Opacity: 1, LineWidth: 2}},
	TypeCloud:       {Kind: KindShape, Label: "Cloud", Style: Style{Color: "#ef4444", Opacity: 1, LineWidth: 2}},
	TypeCallout:     {Kind: KindShape, Label: "Callout", Style: Style{Color: "#111827", FillColor: "#fef9c3", Opacity: 1, LineWidth: 1, FontSize: 12}},
	TypeArea:        {Kind: KindPath, Label: "Area", Closed: true, Style: Style{Color: "#16a34a", FillColor: "#16a34a", Opacity: 0.35, LineWidth: 2, FontSize: 11}},
	TypePolygon:     {Kind: KindPath, Label: "Polygon", Closed: true, Style: Style{Color: "#ef4444", Opacity: 1, LineWidth: 2}},
	TypePolyline:    {Kind: KindPath, Label: "Polyline", Style: Style{Color: "#ef4444", Opacity: 1, LineWidth: 2}},
}

// Lookup returns the registry entry for t.
func Lookup(t MarkerType) (TypeInfo, bool) {
	info, ok := registry[t]
	return info, ok
}

// Valid reports whether t is a known marker type.
func (t MarkerType) Valid() bool {
	_, ok := registry[t]
	return ok
}

// Kind returns the geometry kind of t. Unknown types report KindPoint.
func (t MarkerType) Kind() GeometryKind {
	return registry[t].Kind
}

// AllTypes returns every registered marker type in a stable order.
func AllTypes() []MarkerType {
	out := make([]MarkerType, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
