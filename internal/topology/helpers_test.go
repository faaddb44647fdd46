package topology

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/RaufunNazin/bnetdiag/internal/auth"
	"github.com/RaufunNazin/bnetdiag/internal/infrastructure/database"
	"github.com/RaufunNazin/bnetdiag/internal/infrastructure/logging"
	_ "github.com/RaufunNazin/bnetdiag/migrations"
)

const testArea = 5

var fixedNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *database.DB) {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "netdiag.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(ctx))

	svc := NewService(db, logging.Discard())
	svc.now = func() time.Time { return fixedNow }
	return svc, db
}

func operator(area int64) auth.Principal {
	return auth.Principal{
		UserID:   "user-1",
		Username: "operator",
		Role:     auth.RoleReseller,
		AreaID:   auth.Int64Ptr(area),
	}
}

func addDevice(t *testing.T, db *database.DB, name, nodeType string, area int64, swID *int64) int64 {
	t.Helper()
	res, err := db.ExecContext(context.Background(),
		"INSERT INTO devices (name, node_type, area_id, sw_id) VALUES (?, ?, ?, ?)",
		name, nodeType, area, swID)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func addEdge(t *testing.T, db *database.DB, source, target int64) {
	t.Helper()
	_, err := db.ExecContext(context.Background(),
		"INSERT INTO edges (source_id, target_id, cable_color) VALUES (?, ?, 'blue')", source, target)
	require.NoError(t, err)
}

// place gives a device auto-layout coordinates.
func place(t *testing.T, db *database.DB, ids ...int64) {
	t.Helper()
	for _, id := range ids {
		_, err := db.ExecContext(context.Background(),
			"UPDATE devices SET position_x = 10, position_y = 20, position_mode = 0 WHERE id = ?", id)
		require.NoError(t, err)
	}
}

func pin(t *testing.T, db *database.DB, id int64) {
	t.Helper()
	_, err := db.ExecContext(context.Background(),
		"UPDATE devices SET position_x = 1, position_y = 2, position_mode = 1 WHERE id = ?", id)
	require.NoError(t, err)
}

type position struct {
	X, Y *float64
	Mode int
}

func (p position) cleared() bool { return p.X == nil && p.Y == nil }

func positionOf(t *testing.T, db *database.DB, id int64) position {
	t.Helper()
	var p position
	err := db.QueryRowContext(context.Background(),
		"SELECT position_x, position_y, position_mode FROM devices WHERE id = ?", id).
		Scan(&p.X, &p.Y, &p.Mode)
	require.NoError(t, err)
	return p
}

func parentOf(t *testing.T, db *database.DB, id int64) *int64 {
	t.Helper()
	p, err := parentID(context.Background(), db, id)
	require.NoError(t, err)
	return p
}

func deviceExists(t *testing.T, db *database.DB, id int64) bool {
	t.Helper()
	var n int
	err := db.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM devices WHERE id = ?", id).Scan(&n)
	require.NoError(t, err)
	return n == 1
}

// snapshot serialises both tables so tests can assert nothing changed.
func snapshot(t *testing.T, db *database.DB) []string {
	t.Helper()
	var out []string
	for _, q := range []string{
		`SELECT id || ':' || name || ':' || IFNULL(area_id, '-') || ':' || IFNULL(sw_id, '-') || ':' ||
			IFNULL(position_x, '-') || ':' || position_mode FROM devices ORDER BY id`,
		`SELECT id || ':' || source_id || '->' || target_id FROM edges ORDER BY id`,
	} {
		rows, err := db.QueryContext(context.Background(), q)
		require.NoError(t, err)
		for rows.Next() {
			var s string
			require.NoError(t, rows.Scan(&s))
			out = append(out, s)
		}
		require.NoError(t, rows.Err())
		rows.Close()
	}
	return out
}

func count(t *testing.T, db *database.DB, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRowContext(context.Background(), query, args...).Scan(&n))
	return n
}

func ids(nodes []Node) []int64 {
	out := make([]int64, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}

func strPtr(s string) *string { return &s }
