package topology

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// nodeSelect joins each device with its incoming edge.
const nodeSelect = `SELECT d.id, d.name, d.node_type, d.area_id, d.sw_id,
	d.position_x, d.position_y, d.position_mode,
	d.brand, d.model, d.serial_no, d.mac, d.ip, d.vlan, d.lat, d.lng,
	d.remarks, d.split_ratio, d.split_group, d.status,
	d.created_at, d.updated_at,
	e.id, e.source_id, e.link_type, e.cable_id, e.cable_start, e.cable_end,
	e.cable_length, e.cable_color, e.cable_desc
FROM devices d
LEFT JOIN edges e ON e.target_id = d.id`

type scanner interface {
	Scan(dest ...any) error
}

func scanNode(s scanner) (*Node, error) {
	var n Node
	var createdAt, updatedAt string
	err := s.Scan(&n.ID, &n.Name, &n.NodeType, &n.AreaID, &n.SwID,
		&n.PositionX, &n.PositionY, &n.PositionMode,
		&n.Brand, &n.Model, &n.SerialNo, &n.MAC, &n.IP, &n.VLAN, &n.Lat, &n.Lng,
		&n.Remarks, &n.SplitRatio, &n.SplitGroup, &n.Status,
		&createdAt, &updatedAt,
		&n.EdgeID, &n.ParentID, &n.LinkType, &n.CableID, &n.CableStart, &n.CableEnd,
		&n.CableLength, &n.CableColor, &n.CableDesc)
	if err != nil {
		return nil, err
	}
	n.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	n.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled
	return &n, nil
}

func queryNodes(ctx context.Context, q querier, query string, args ...any) ([]Node, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	nodes := []Node{}
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		nodes = append(nodes, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return nodes, nil
}

// getNode loads one device with its incoming edge, ignoring area.
func getNode(ctx context.Context, q querier, id int64) (*Node, error) {
	n, err := scanNode(q.QueryRowContext(ctx, nodeSelect+" WHERE d.id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: device %d", ErrNotFound, id)
		}
		return nil, fmt.Errorf("loading device %d: %w", id, err)
	}
	return n, nil
}

func queryIDs(ctx context.Context, q querier, query string, args ...any) ([]int64, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ids: %w", err)
	}
	return ids, nil
}

// parentlessByIdentity returns the parentless devices of an area sharing
// (name, sw_id), lowest id first. sw_id compares null-safe.
func parentlessByIdentity(ctx context.Context, q querier, sc Scope, name string, swID *int64, exclude int64) ([]int64, error) {
	return queryIDs(ctx, q, `SELECT d.id FROM devices d
		WHERE `+sc.predicate("d")+` AND d.name = ? AND d.sw_id IS ? AND d.id != ?
		  AND NOT EXISTS (SELECT 1 FROM edges e WHERE e.target_id = d.id)
		ORDER BY d.id`,
		sc.AreaID, name, swID, exclude)
}

// hasChildWithIdentity reports whether parent already has a child (name, sw_id).
func hasChildWithIdentity(ctx context.Context, q querier, parentID int64, name string, swID *int64) (bool, error) {
	id, err := childByIdentity(ctx, q, parentID, name, swID, 0)
	return id != 0, err
}

// childByIdentity returns the child (name, sw_id) of parentID other than
// exclude, or 0 when there is none.
func childByIdentity(ctx context.Context, q querier, parentID int64, name string, swID *int64, exclude int64) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `SELECT d.id FROM edges e
		JOIN devices d ON d.id = e.target_id
		WHERE e.source_id = ? AND d.name = ? AND d.sw_id IS ? AND d.id != ?
		ORDER BY d.id LIMIT 1`,
		parentID, name, swID, exclude).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("checking siblings of %d: %w", parentID, err)
	}
	return id, nil
}

func recordExists(ctx context.Context, q querier, id int64) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, "SELECT 1 FROM devices WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("loading device %d: %w", id, err)
	}
	return true, nil
}

func childIDs(ctx context.Context, q querier, parentID int64) ([]int64, error) {
	return queryIDs(ctx, q, "SELECT target_id FROM edges WHERE source_id = ? ORDER BY target_id", parentID)
}

func parentID(ctx context.Context, q querier, id int64) (*int64, error) {
	var p int64
	err := q.QueryRowContext(ctx, "SELECT source_id FROM edges WHERE target_id = ?", id).Scan(&p)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading parent of %d: %w", id, err)
	}
	return &p, nil
}

// isAncestorOrSelf reports whether candidate lies on the path from node up to its root.
func isAncestorOrSelf(ctx context.Context, q querier, candidate, node int64) (bool, error) {
	seen := map[int64]bool{}
	cur := &node
	for cur != nil {
		if *cur == candidate {
			return true, nil
		}
		if seen[*cur] {
			return false, fmt.Errorf("cycle detected above device %d", node)
		}
		seen[*cur] = true
		next, err := parentID(ctx, q, *cur)
		if err != nil {
			return false, err
		}
		cur = next
	}
	return false, nil
}

type assignment struct {
	column string
	value  any
}

func (inv Inventory) assignments(onlySet bool) []assignment {
	var out []assignment
	add := func(column string, set bool, v any) {
		if !onlySet || set {
			out = append(out, assignment{column, v})
		}
	}
	add("brand", inv.Brand != nil, inv.Brand)
	add("model", inv.Model != nil, inv.Model)
	add("serial_no", inv.SerialNo != nil, inv.SerialNo)
	add("mac", inv.MAC != nil, inv.MAC)
	add("ip", inv.IP != nil, inv.IP)
	add("vlan", inv.VLAN != nil, inv.VLAN)
	add("lat", inv.Lat != nil, inv.Lat)
	add("lng", inv.Lng != nil, inv.Lng)
	add("remarks", inv.Remarks != nil, inv.Remarks)
	add("split_ratio", inv.SplitRatio != nil, inv.SplitRatio)
	add("split_group", inv.SplitGroup != nil, inv.SplitGroup)
	add("status", inv.Status != nil, inv.Status)
	return out
}

func (l Link) assignments(onlySet bool) []assignment {
	var out []assignment
	add := func(column string, set bool, v any) {
		if !onlySet || set {
			out = append(out, assignment{column, v})
		}
	}
	add("link_type", l.LinkType != nil, l.LinkType)
	add("cable_id", l.CableID != nil, l.CableID)
	add("cable_start", l.CableStart != nil, l.CableStart)
	add("cable_end", l.CableEnd != nil, l.CableEnd)
	add("cable_length", l.CableLength != nil, l.CableLength)
	add("cable_color", l.CableColor != nil, l.CableColor)
	add("cable_desc", l.CableDesc != nil, l.CableDesc)
	return out
}

// deviceAssignments lists the device-row columns a patch sets.
func (p Patch) deviceAssignments() ([]assignment, bool) {
	out := p.Inventory.assignments(true)
	renamed := p.Name != nil
	if p.Name != nil {
		out = append(out, assignment{"name", *p.Name})
	}
	if p.NodeType != nil {
		out = append(out, assignment{"node_type", *p.NodeType})
	}
	return out, renamed
}

func splitAssignments(as []assignment) (columns []string, values []any) {
	for _, a := range as {
		columns = append(columns, a.column)
		values = append(values, a.value)
	}
	return columns, values
}

func setClause(as []assignment) (string, []any) {
	columns, values := splitAssignments(as)
	for i, c := range columns {
		columns[i] = c + " = ?"
	}
	return strings.Join(columns, ", "), values
}

func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func insertDevice(ctx context.Context, q querier, in DeviceInput, areaID int64, now time.Time) (int64, error) {
	as := append([]assignment{
		{"name", in.Name},
		{"node_type", in.NodeType},
		{"area_id", areaID},
		{"sw_id", in.SwID},
		{"position_mode", PositionAuto},
		{"created_at", timestamp(now)},
		{"updated_at", timestamp(now)},
	}, in.Inventory.assignments(false)...)
	columns, values := splitAssignments(as)

	res, err := q.ExecContext(ctx,
		"INSERT INTO devices ("+strings.Join(columns, ", ")+") VALUES ("+placeholders(len(values))+")",
		values...)
	if err != nil {
		return 0, fmt.Errorf("inserting device: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading device id: %w", err)
	}
	return id, nil
}

// copyDevice duplicates a device row under a new id with a cleared layout.
func copyDevice(ctx context.Context, q querier, sourceID, areaID int64, now time.Time) (int64, error) {
	const cols = "name, node_type, sw_id, brand, model, serial_no, mac, ip, vlan, lat, lng, remarks, split_ratio, split_group, status"
	res, err := q.ExecContext(ctx,
		`INSERT INTO devices (`+cols+`, area_id, position_mode, created_at, updated_at)
		 SELECT `+cols+`, ?, 0, ?, ? FROM devices WHERE id = ?`,
		areaID, timestamp(now), timestamp(now), sourceID)
	if err != nil {
		return 0, fmt.Errorf("copying device %d: %w", sourceID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading device id: %w", err)
	}
	return id, nil
}

func insertEdge(ctx context.Context, q querier, sourceID, targetID int64, link Link) error {
	as := append([]assignment{
		{"source_id", sourceID},
		{"target_id", targetID},
	}, link.assignments(false)...)
	columns, values := splitAssignments(as)

	_, err := q.ExecContext(ctx,
		"INSERT INTO edges ("+strings.Join(columns, ", ")+") VALUES ("+placeholders(len(values))+")",
		values...)
	if err != nil {
		return fmt.Errorf("inserting edge %d->%d: %w", sourceID, targetID, err)
	}
	return nil
}

func rowsAffected(res sql.Result) int64 {
	n, _ := res.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return n
}
