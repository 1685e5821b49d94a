// Package drawing is the authoring state machine for one floorplan view: it
// turns screen-space pointer and keyboard input into committed markers,
// selections, moves, and viewport pans.
package drawing

import "github.com/sitewalk/sitewalk/internal/annotation"

// State is the machine's current authoring phase.
type State string

const (
	StateIdle    State = "idle"
	StateSizing  State = "sizing"  // drag-to-size shape in progress
	StatePathing State = "pathing" // multi-vertex path in progress
	StatePlaced  State = "placed"  // point marker commit in flight
)

// Tool is the active entry of the dispatch table. Marker tools are named
// after their marker type.
type Tool string

const (
	ToolSelect Tool = "select"
	ToolPan    Tool = "pan"
)

// handler is how a tool reacts to pointer input.
type handler int

const (
	handleSelect handler = iota
	handlePan
	handlePoint
	handleSizing
	handlePath
)

// toolAliases are alternative tool names for marker types.
var toolAliases = map[Tool]annotation.MarkerType{
	"ellipse": annotation.TypeCircle,
	"line":    annotation.TypeMeasurement,
}

// lineLike shapes are defined by two endpoints instead of a box.
var lineLike = map[annotation.MarkerType]bool{
	annotation.TypeArrow:       true,
	annotation.TypeMeasurement: true,
}

var kindHandlers = map[annotation.GeometryKind]handler{
	annotation.KindPoint: handlePoint,
	annotation.KindText:  handlePoint,
	annotation.KindShape: handleSizing,
	annotation.KindPath:  handlePath,
}

// dispatch resolves a tool to its handler and, for marker tools, the marker
// type it creates.
func dispatch(t Tool) (handler, annotation.MarkerType, bool) {
	switch t {
	case ToolSelect:
		return handleSelect, "", true
	case ToolPan:
		return handlePan, "", true
	}
	typ := annotation.MarkerType(t)
	if alias, ok := toolAliases[t]; ok {
		typ = alias
	}
	info, ok := annotation.Lookup(typ)
	if !ok {
		return 0, "", false
	}
	return kindHandlers[info.Kind], typ, true
}

// ValidTool reports whether t is in the dispatch table.
func ValidTool(t Tool) bool {
	_, _, ok := dispatch(t)
	return ok
}
