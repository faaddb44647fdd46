package topology

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RaufunNazin/bnetdiag/internal/auth"
)

func TestGeneralView(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	sw := auth.Int64Ptr(1)

	router := addDevice(t, db, "R1", "Router", testArea, nil)
	sw1 := addDevice(t, db, "SW1", "Managed Switch", testArea, nil)
	plainOLT := addDevice(t, db, "OLT-plain", "OLT", testArea, nil)
	underPlainOLT := addDevice(t, db, "SW2", "Unmanaged Switch", testArea, nil)
	groupedOLT := addDevice(t, db, "OLT-1", "OLT", testArea, sw)
	pon := addDevice(t, db, "PON-1", "PON", testArea, nil)
	onu := addDevice(t, db, "ONU-1", "ONU", testArea, nil)
	subsumed := addDevice(t, db, "R-under-olt", "Router", testArea, nil)
	addDevice(t, db, "R-elsewhere", "Router", testArea+1, nil)

	addEdge(t, db, router, sw1)
	addEdge(t, db, router, plainOLT)
	addEdge(t, db, plainOLT, underPlainOLT)
	addEdge(t, db, router, groupedOLT)
	addEdge(t, db, groupedOLT, pon)
	addEdge(t, db, pon, onu)
	addEdge(t, db, groupedOLT, subsumed)

	view, err := svc.GeneralView(ctx, operator(testArea))
	require.NoError(t, err)
	assert.Equal(t, []int64{router, sw1, plainOLT, underPlainOLT}, ids(view))

	for _, n := range view {
		assert.Nil(t, n.SwID)
		assert.NotContains(t, []string{NodeTypePON, NodeTypeONU}, n.NodeType)
	}
	assert.Equal(t, router, *view[1].ParentID)
	assert.Nil(t, view[0].ParentID)

	// nil root selects the general view.
	same, err := svc.View(ctx, operator(testArea), nil)
	require.NoError(t, err)
	assert.Equal(t, ids(view), ids(same))
}

func TestGeneralView_EmptyArea(t *testing.T) {
	svc, _ := newTestService(t)

	view, err := svc.GeneralView(context.Background(), operator(testArea))
	require.NoError(t, err)
	assert.NotNil(t, view)
	assert.Empty(t, view)
}

func TestSubtreeView(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	olt := addDevice(t, db, "OLT-1", "OLT", testArea, nil)
	sw := &olt
	pon1 := addDevice(t, db, "PON-1", "PON", testArea, sw)
	onu1 := addDevice(t, db, "ONU-1", "ONU", testArea, sw)
	orphanPon := addDevice(t, db, "PON-2", "PON", testArea, sw)
	orphanOnu := addDevice(t, db, "ONU-2", "ONU", testArea, sw)
	foreignOnu := addDevice(t, db, "ONU-X", "ONU", testArea+1, sw)
	foreignChild := addDevice(t, db, "ONU-Y", "ONU", testArea, sw)
	otherGroup := addDevice(t, db, "PON-9", "PON", testArea, auth.Int64Ptr(999))

	addEdge(t, db, olt, pon1)
	addEdge(t, db, pon1, onu1)
	addEdge(t, db, orphanPon, orphanOnu)
	addEdge(t, db, pon1, foreignOnu)
	addEdge(t, db, foreignOnu, foreignChild)

	view, err := svc.SubtreeView(ctx, operator(testArea), olt)
	require.NoError(t, err)
	// foreignChild hangs under a device of another area and is not reachable.
	assert.Equal(t, []int64{olt, pon1, onu1, orphanPon, orphanOnu}, ids(view))
	assert.NotContains(t, ids(view), otherGroup)

	byID := map[int64]Node{}
	for _, n := range view {
		byID[n.ID] = n
	}
	assert.Equal(t, pon1, *byID[onu1].ParentID)
	assert.Nil(t, byID[orphanPon].ParentID)

	_, err = svc.View(ctx, operator(testArea), &foreignOnu)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.SubtreeView(ctx, operator(testArea), 12345)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestViews_RequireReadPermission(t *testing.T) {
	svc, db := newTestService(t)
	root := addDevice(t, db, "R", "Router", testArea, nil)

	support := operator(testArea)
	support.Role = auth.RoleSupport
	_, err := svc.GeneralView(context.Background(), support)
	assert.ErrorIs(t, err, ErrForbidden)

	noArea := operator(testArea)
	noArea.AreaID = nil
	_, err = svc.SubtreeView(context.Background(), noArea, root)
	assert.ErrorIs(t, err, ErrForbidden)

	admin := operator(testArea)
	admin.Role = auth.RoleAdmin
	_, err = svc.SubtreeView(context.Background(), admin, root)
	assert.NoError(t, err)
}

func TestListOLTs(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	for _, row := range []struct {
		name, swType string
		area         int64
	}{
		{"olt-b", "OLT", testArea},
		{"olt-a", "OLT", testArea},
		{"core", "Switch", testArea},
		{"olt-c", "OLT", testArea + 1},
	} {
		_, err := db.ExecContext(ctx,
			"INSERT INTO switches (name, sw_type, olt_type, area_id) VALUES (?, ?, 'EPON', ?)",
			row.name, row.swType, row.area)
		require.NoError(t, err)
	}

	olts, err := svc.ListOLTs(ctx, operator(testArea))
	require.NoError(t, err)
	require.Len(t, olts, 2)
	assert.Equal(t, "olt-a", olts[0].Name)
	assert.Equal(t, "olt-b", olts[1].Name)
	assert.Equal(t, "EPON", *olts[0].OLTType)
	assert.Nil(t, olts[0].IP)
}

type recordingCache struct {
	mu          sync.Mutex
	views       map[[2]int64][]Node
	gens        map[int64]uint64
	gets, hits  int
	invalidated []int64
	// beforeSet runs once at the start of the next SetView.
	beforeSet func()
}

func newRecordingCache() *recordingCache {
	return &recordingCache{views: map[[2]int64][]Node{}, gens: map[int64]uint64{}}
}

func (c *recordingCache) GetView(_ context.Context, areaID, rootID int64) ([]Node, uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	v, ok := c.views[[2]int64{areaID, rootID}]
	if ok {
		c.hits++
	}
	return v, c.gens[areaID], ok
}

func (c *recordingCache) SetView(_ context.Context, areaID, rootID int64, gen uint64, nodes []Node) {
	c.mu.Lock()
	hook := c.beforeSet
	c.beforeSet = nil
	c.mu.Unlock()
	if hook != nil {
		hook()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gens[areaID] {
		return
	}
	c.views[[2]int64{areaID, rootID}] = nodes
}

func (c *recordingCache) InvalidateArea(_ context.Context, areaID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.views {
		if k[0] == areaID {
			delete(c.views, k)
		}
	}
	c.gens[areaID]++
	c.invalidated = append(c.invalidated, areaID)
	return nil
}

func TestViewCache(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	cache := newRecordingCache()
	svc.SetCache(cache)

	root := addDevice(t, db, "R", "Router", testArea, nil)

	first, err := svc.GeneralView(ctx, operator(testArea))
	require.NoError(t, err)
	second, err := svc.GeneralView(ctx, operator(testArea))
	require.NoError(t, err)
	assert.Equal(t, ids(first), ids(second))
	assert.Equal(t, 1, cache.hits)

	_, err = svc.SubtreeView(ctx, operator(testArea), root)
	require.NoError(t, err)
	assert.Contains(t, cache.views, [2]int64{testArea, root})

	_, err = svc.Create(ctx, operator(testArea), DeviceInput{Name: "R2", NodeType: "Router"})
	require.NoError(t, err)
	assert.Equal(t, []int64{testArea}, cache.invalidated)
	assert.Empty(t, cache.views)

	after, err := svc.GeneralView(ctx, operator(testArea))
	require.NoError(t, err)
	assert.Len(t, after, 2)
}

func TestViewCache_MutationDuringReadIsNotMasked(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	cache := newRecordingCache()
	svc.SetCache(cache)

	addDevice(t, db, "R", "Router", testArea, nil)

	// R2 commits after the view was read but before it is cached.
	cache.beforeSet = func() {
		_, err := svc.Create(ctx, operator(testArea), DeviceInput{Name: "R2", NodeType: "Router"})
		require.NoError(t, err)
	}
	stale, err := svc.GeneralView(ctx, operator(testArea))
	require.NoError(t, err)
	assert.Len(t, stale, 1)
	assert.Empty(t, cache.views)

	fresh, err := svc.GeneralView(ctx, operator(testArea))
	require.NoError(t, err)
	assert.Len(t, fresh, 2)
}

func TestViewCache_AuthorizesBeforeLookup(t *testing.T) {
	svc, db := newTestService(t)
	cache := newRecordingCache()
	svc.SetCache(cache)

	foreign := addDevice(t, db, "R", "Router", testArea+1, nil)
	cache.views[[2]int64{testArea, foreign}] = []Node{{Device: Device{ID: foreign}}}

	_, err := svc.SubtreeView(context.Background(), operator(testArea), foreign)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Zero(t, cache.gets)
}
