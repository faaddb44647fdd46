package topology

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/RaufunNazin/bnetdiag/internal/auth"
)

// clearLayout nulls coordinates that are actually set, leaving pinned rows.
const clearLayout = `UPDATE devices
	SET position_x = NULL, position_y = NULL, updated_at = ?
	WHERE position_mode != 1
	  AND (position_x IS NOT NULL OR position_y IS NOT NULL)
	  AND area_id = ?`

// resetSubtree clears the layout of root and everything below it. The
// recursion only descends through devices of the scope's area.
func resetSubtree(ctx context.Context, q querier, sc Scope, rootID int64, now string) (int64, error) {
	res, err := q.ExecContext(ctx, `WITH RECURSIVE sub(id) AS (
			SELECT d.id FROM devices d WHERE d.id = ? AND `+sc.predicate("d")+`
			UNION
			SELECT e.target_id FROM edges e
			JOIN sub ON e.source_id = sub.id
			JOIN devices d ON d.id = e.target_id AND `+sc.predicate("d")+`
		)
		`+clearLayout+` AND id IN (SELECT id FROM sub)`,
		rootID, sc.AreaID, sc.AreaID, now, sc.AreaID)
	if err != nil {
		return 0, fmt.Errorf("resetting subtree of %d: %w", rootID, err)
	}
	return rowsAffected(res), nil
}

// resetChildren clears the layout of the direct children of parentID.
func resetChildren(ctx context.Context, q querier, sc Scope, parentID int64, now string) (int64, error) {
	res, err := q.ExecContext(ctx,
		clearLayout+` AND id IN (SELECT target_id FROM edges WHERE source_id = ?)`,
		now, sc.AreaID, parentID)
	if err != nil {
		return 0, fmt.Errorf("resetting children of %d: %w", parentID, err)
	}
	return rowsAffected(res), nil
}

// ResetPositions clears layout over a node, an sw_id group or the general
// view. ResetAuto leaves pinned rows alone; ResetManual clears only pinned
// rows. Either way cleared rows return to position_mode 0.
func (s *Service) ResetPositions(ctx context.Context, p auth.Principal, target ResetTarget, id int64, mode ResetMode) (Result, error) {
	if !target.valid() {
		return Result{}, fmt.Errorf("%w: unknown reset target %q", ErrInvalid, target)
	}
	if !mode.valid() {
		return Result{}, fmt.Errorf("%w: unknown reset mode %q", ErrInvalid, mode)
	}

	return s.mutate(ctx, p, ActionResetPositions, func(ctx context.Context, tx *sql.Tx, sc Scope, ch *Change) error {
		var (
			where string
			args  []any
		)
		switch target {
		case ResetNode:
			if _, err := sc.node(ctx, tx, id); err != nil {
				return err
			}
			where, args = "d.id = ?", []any{id}
		case ResetGroup:
			where, args = "(d.sw_id = ? OR d.id = ?)", []any{id, id}
			ch.SwID = &id
		case ResetGeneral:
			where = generalViewWhere
		}

		modeFilter := "d.position_mode != 1"
		if mode == ResetManual {
			modeFilter = "d.position_mode = 1"
		}

		query := `UPDATE devices SET position_x = NULL, position_y = NULL, position_mode = 0, updated_at = ?
			WHERE id IN (
				SELECT d.id FROM devices d
				WHERE ` + sc.predicate("d") + ` AND ` + modeFilter + ` AND ` + where + `
			)`
		res, err := tx.ExecContext(ctx, query,
			append([]any{timestamp(s.now()), sc.AreaID}, args...)...)
		if err != nil {
			return fmt.Errorf("resetting positions: %w", err)
		}
		ch.Affected = rowsAffected(res)
		ch.Reset = ch.Affected
		return nil
	})
}

// SetPosition stores an operator placement and pins the device.
func (s *Service) SetPosition(ctx context.Context, p auth.Principal, id int64, x, y float64) (Result, error) {
	return s.mutate(ctx, p, ActionSetPosition, func(ctx context.Context, tx *sql.Tx, sc Scope, ch *Change) error {
		n, err := sc.node(ctx, tx, id)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE devices SET position_x = ?, position_y = ?, position_mode = 1, updated_at = ? WHERE id = ?`,
			x, y, timestamp(s.now()), id)
		if err != nil {
			return fmt.Errorf("setting position of %d: %w", id, err)
		}
		ch.DeviceID = &id
		ch.SwID = n.SwID
		ch.Affected = 1
		return nil
	})
}
