package floorplans

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sitewalk/sitewalk/internal/annotation"
	"github.com/sitewalk/sitewalk/internal/calibration"
)

// --- In-memory repositories ---

// memRepo implements FloorplanRepository and MarkerRepository in memory.
// Setting failWith makes every call return that error.
type memRepo struct {
	mu sync.Mutex

	floorplans   map[string]*annotation.Floorplan
	layers       map[int64]*annotation.Layer
	calibrations map[string]*calibration.Calibration
	markers      map[int64]*StoredMarker
	comments     []annotation.Comment

	nextLayerID   int64
	nextMarkerID  int64
	nextCommentID int64
	listCalls     int
	failWith      error
}

func newMemRepo() *memRepo {
	return &memRepo{
		floorplans:   map[string]*annotation.Floorplan{},
		layers:       map[int64]*annotation.Layer{},
		calibrations: map[string]*calibration.Calibration{},
		markers:      map[int64]*StoredMarker{},
		nextLayerID:  1,
		nextMarkerID: 1,
	}
}

// seedFloorplan stores a PNG floorplan with pages of 600x400.
func (r *memRepo) seedFloorplan(id string, pages int) *annotation.Floorplan {
	fp := &annotation.Floorplan{
		ID:          id,
		ProjectID:   "proj-1",
		Name:        "Level " + id,
		ContentType: annotation.ContentPNG,
		PageCount:   pages,
	}
	for i := 0; i < pages; i++ {
		fp.Pages = append(fp.Pages, annotation.PageSize{Width: 600, Height: 400})
	}
	r.floorplans[id] = fp
	return fp
}

func calKey(fpID string, page int) string {
	return fmt.Sprintf("%s#%d", fpID, page)
}

func (r *memRepo) CreateFloorplan(_ context.Context, fp *annotation.Floorplan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	cp := *fp
	r.floorplans[fp.ID] = &cp
	return nil
}

func (r *memRepo) GetFloorplan(_ context.Context, id string) (*annotation.Floorplan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	fp, ok := r.floorplans[id]
	if !ok {
		return nil, nil
	}
	cp := *fp
	return &cp, nil
}

func (r *memRepo) UpdateFloorplan(_ context.Context, fp *annotation.Floorplan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.floorplans[fp.ID].Name = fp.Name
	return nil
}

func (r *memRepo) DeleteFloorplan(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.floorplans, id)
	for lid, l := range r.layers {
		if l.FloorplanID == id {
			delete(r.layers, lid)
		}
	}
	for mid, m := range r.markers {
		if m.FloorplanID == id {
			delete(r.markers, mid)
		}
	}
	return nil
}

func (r *memRepo) ListFloorplans(_ context.Context, projectID string) ([]annotation.Floorplan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []annotation.Floorplan
	for _, fp := range r.floorplans {
		if fp.ProjectID == projectID {
			cp := *fp
			cp.PDFData = nil
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRepo) CreateLayer(_ context.Context, l *annotation.Layer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	maxOrder := -1
	for _, other := range r.layers {
		if other.FloorplanID == l.FloorplanID && other.SortOrder > maxOrder {
			maxOrder = other.SortOrder
		}
	}
	l.ID = r.nextLayerID
	r.nextLayerID++
	l.SortOrder = maxOrder + 1
	cp := *l
	r.layers[l.ID] = &cp
	return nil
}

func (r *memRepo) GetLayer(_ context.Context, id int64) (*annotation.Layer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.layers[id]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (r *memRepo) UpdateLayer(_ context.Context, l *annotation.Layer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *l
	r.layers[l.ID] = &cp
	return nil
}

func (r *memRepo) DeleteLayer(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.layers, id)
	for _, m := range r.markers {
		if m.LayerID != nil && *m.LayerID == id {
			m.LayerID = nil
		}
	}
	return nil
}

func (r *memRepo) ListLayers(_ context.Context, floorplanID string) ([]annotation.Layer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []annotation.Layer{}
	for _, l := range r.layers {
		if l.FloorplanID == floorplanID {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out, nil
}

func (r *memRepo) ReorderLayers(_ context.Context, _ string, ids []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, id := range ids {
		r.layers[id].SortOrder = i
	}
	return nil
}

func (r *memRepo) GetCalibration(_ context.Context, floorplanID string, page int) (*calibration.Calibration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calibrations[calKey(floorplanID, page)]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *memRepo) UpsertCalibration(_ context.Context, c *calibration.Calibration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.calibrations[calKey(c.FloorplanID, c.Page)] = &cp
	return nil
}

func (r *memRepo) CreateMarker(_ context.Context, m *annotation.Marker) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	for _, sm := range r.markers {
		if m.UniqueID != "" && sm.UniqueID == m.UniqueID && sm.Version == m.Version {
			return ErrDuplicateUniqueID
		}
	}
	m.ID = r.nextMarkerID
	r.nextMarkerID++
	r.markers[m.ID] = &StoredMarker{Marker: m.Clone()}
	return nil
}

func (r *memRepo) GetMarker(_ context.Context, id int64) (*StoredMarker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sm, ok := r.markers[id]
	if !ok {
		return nil, nil
	}
	return &StoredMarker{Marker: sm.Marker.Clone(), Superseded: sm.Superseded}, nil
}

func (r *memRepo) ListMarkers(_ context.Context, floorplanID string, page int) ([]annotation.Marker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCalls++
	out := []annotation.Marker{}
	for _, sm := range r.markers {
		if sm.FloorplanID == floorplanID && sm.Page == page && !sm.Superseded {
			out = append(out, sm.Marker.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRepo) CreateVersion(_ context.Context, prevID int64, next *annotation.Marker) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.markers[prevID]
	if !ok || prev.Superseded {
		return ErrSuperseded
	}
	prev.Superseded = true
	next.ID = r.nextMarkerID
	r.nextMarkerID++
	r.markers[next.ID] = &StoredMarker{Marker: next.Clone()}
	return nil
}

func (r *memRepo) DeleteChain(_ context.Context, uniqueID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, sm := range r.markers {
		if sm.UniqueID == uniqueID {
			delete(r.markers, id)
		}
	}
	kept := r.comments[:0]
	for _, c := range r.comments {
		if c.MarkerUniqueID != uniqueID {
			kept = append(kept, c)
		}
	}
	r.comments = kept
	return nil
}

func (r *memRepo) History(_ context.Context, uniqueID string) ([]annotation.Marker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []annotation.Marker
	for _, sm := range r.markers {
		if sm.UniqueID == uniqueID {
			out = append(out, sm.Marker.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (r *memRepo) CreateComment(_ context.Context, c *annotation.Comment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextCommentID++
	c.ID = r.nextCommentID
	r.comments = append(r.comments, *c)
	return nil
}

func (r *memRepo) ListComments(_ context.Context, uniqueID string) ([]annotation.Comment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []annotation.Comment
	for _, c := range r.comments {
		if c.MarkerUniqueID == uniqueID {
			out = append(out, c)
		}
	}
	return out, nil
}

// --- Recording event bus ---

type recordingBus struct {
	mu     sync.Mutex
	events []annotation.ChangeEvent
}

func (b *recordingBus) Publish(_ context.Context, ev annotation.ChangeEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
}

func (b *recordingBus) Subscribe(context.Context, string) (<-chan annotation.ChangeEvent, error) {
	return nil, ErrStreamUnavailable
}

func (b *recordingBus) kinds() []annotation.ChangeKind {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []annotation.ChangeKind
	for _, ev := range b.events {
		out = append(out, ev.Kind)
	}
	return out
}

func (b *recordingBus) pages(kind annotation.ChangeKind) []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []int
	for _, ev := range b.events {
		if ev.Kind == kind {
			out = append(out, ev.Page)
		}
	}
	return out
}

// --- Recording cache ---

// recordingCache keeps lists per generation like the Redis cache and
// records invalidated pages.
type recordingCache struct {
	mu          sync.Mutex
	data        map[string][]annotation.Marker
	gens        map[string]int64
	invalidated []int
}

func newRecordingCache() *recordingCache {
	return &recordingCache{data: map[string][]annotation.Marker{}, gens: map[string]int64{}}
}

func (c *recordingCache) Get(_ context.Context, fpID string, page int) ([]annotation.Marker, int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	gen := c.gens[markerGenKey(fpID, page)]
	m, ok := c.data[markerCacheKey(fpID, page, gen)]
	return m, gen, ok
}

func (c *recordingCache) Set(_ context.Context, fpID string, page int, gen int64, markers []annotation.Marker) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[markerCacheKey(fpID, page, gen)] = markers
}

func (c *recordingCache) Invalidate(_ context.Context, fpID string, page int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[markerGenKey(fpID, page)]++
	c.invalidated = append(c.invalidated, page)
}
