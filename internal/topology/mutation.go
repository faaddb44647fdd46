package topology

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/RaufunNazin/bnetdiag/internal/auth"
	"github.com/RaufunNazin/bnetdiag/internal/infrastructure/database"
)

// Create adds a parentless device to the caller's area.
func (s *Service) Create(ctx context.Context, p auth.Principal, in DeviceInput) (Result, error) {
	if err := in.normalize(); err != nil {
		return Result{}, err
	}

	return s.mutate(ctx, p, ActionCreate, func(ctx context.Context, tx *sql.Tx, sc Scope, ch *Change) error {
		existing, err := parentlessByIdentity(ctx, tx, sc, in.Name, in.SwID, 0)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return fmt.Errorf("%w: a root device %q already exists in this group", ErrConflict, in.Name)
		}

		id, err := insertDevice(ctx, tx, in, sc.AreaID, s.now())
		if err != nil {
			return conflictOr(err)
		}
		ch.DeviceID = &id
		ch.SwID = in.SwID
		ch.Affected = 1
		return nil
	})
}

// InsertBetween splices a new device into the edge sourceID -> targetID.
// The new edge source -> new carries in.Link; the old edge keeps its cable
// attributes and now runs new -> target.
func (s *Service) InsertBetween(ctx context.Context, p auth.Principal, sourceID, targetID int64, in DeviceInput) (Result, error) {
	if err := in.normalize(); err != nil {
		return Result{}, err
	}

	return s.mutate(ctx, p, ActionInsert, func(ctx context.Context, tx *sql.Tx, sc Scope, ch *Change) error {
		nodes, err := sc.nodes(ctx, tx, sourceID, targetID)
		if err != nil {
			return err
		}
		if target := nodes[1]; target.ParentID == nil || *target.ParentID != sourceID {
			return fmt.Errorf("%w: no edge %d -> %d", ErrNotFound, sourceID, targetID)
		}

		dup, err := hasChildWithIdentity(ctx, tx, sourceID, in.Name, in.SwID)
		if err != nil {
			return err
		}
		if dup {
			return fmt.Errorf("%w: device %d already has a child %q", ErrConflict, sourceID, in.Name)
		}

		now := s.now()
		id, err := insertDevice(ctx, tx, in, sc.AreaID, now)
		if err != nil {
			return conflictOr(err)
		}

		// Retarget first: target_id is unique, but the new device has no edge yet.
		if _, err := tx.ExecContext(ctx,
			"UPDATE edges SET source_id = ? WHERE source_id = ? AND target_id = ?",
			id, sourceID, targetID); err != nil {
			return fmt.Errorf("retargeting edge %d -> %d: %w", sourceID, targetID, err)
		}
		if err := insertEdge(ctx, tx, sourceID, id, in.Link); err != nil {
			return err
		}

		stamp := timestamp(now)
		siblings, err := resetChildren(ctx, tx, sc, sourceID, stamp)
		if err != nil {
			return err
		}
		below, err := resetSubtree(ctx, tx, sc, targetID, stamp)
		if err != nil {
			return err
		}

		ch.DeviceID = &id
		ch.SwID = in.SwID
		ch.Affected = 1
		ch.Reset = siblings + below
		return nil
	})
}

// Connect attaches sourceID's device under newParentID. An existing
// parentless record with the same (name, sw_id) is reattached in place;
// otherwise the source row is copied with a fresh layout.
func (s *Service) Connect(ctx context.Context, p auth.Principal, sourceID, newParentID int64) (Result, error) {
	if sourceID == newParentID {
		return Result{}, fmt.Errorf("%w: device %d cannot be its own parent", ErrInvalid, sourceID)
	}
	return s.mutate(ctx, p, ActionConnect, func(ctx context.Context, tx *sql.Tx, sc Scope, ch *Change) error {
		nodes, err := sc.nodes(ctx, tx, sourceID, newParentID)
		if err != nil {
			return err
		}
		source, parent := nodes[0], nodes[1]

		dup, err := hasChildWithIdentity(ctx, tx, parent.ID, source.Name, source.SwID)
		if err != nil {
			return err
		}
		if dup {
			return fmt.Errorf("%w: device %d already has a child %q", ErrConflict, parent.ID, source.Name)
		}

		orphans, err := parentlessByIdentity(ctx, tx, sc, source.Name, source.SwID, 0)
		if err != nil {
			return err
		}

		now := s.now()
		stamp := timestamp(now)
		var deviceID int64

		if len(orphans) > 0 {
			deviceID = orphans[0]
			cycle, err := isAncestorOrSelf(ctx, tx, deviceID, parent.ID)
			if err != nil {
				return err
			}
			if cycle {
				return fmt.Errorf("%w: attaching %d under %d would create a cycle", ErrInvalid, deviceID, parent.ID)
			}
			if err := insertEdge(ctx, tx, parent.ID, deviceID, source.Link); err != nil {
				return conflictOr(err)
			}
			if _, err := tx.ExecContext(ctx, `UPDATE devices SET area_id = ?, updated_at = ?,
				position_x = CASE WHEN position_mode = 1 THEN position_x ELSE NULL END,
				position_y = CASE WHEN position_mode = 1 THEN position_y ELSE NULL END
				WHERE id = ?`, sc.AreaID, stamp, deviceID); err != nil {
				return fmt.Errorf("reattaching %d: %w", deviceID, err)
			}
			merged, err := absorbStaleOrphans(ctx, tx, sc, deviceID, source.Name, source.SwID)
			if err != nil {
				return err
			}
			ch.Reattached = true
			ch.Affected = 1 + merged
		} else {
			deviceID, err = copyDevice(ctx, tx, source.ID, sc.AreaID, now)
			if err != nil {
				return conflictOr(err)
			}
			if err := insertEdge(ctx, tx, parent.ID, deviceID, source.Link); err != nil {
				return conflictOr(err)
			}
			ch.Affected = 1
		}

		reset, err := resetSubtree(ctx, tx, sc, parent.ID, stamp)
		if err != nil {
			return err
		}
		ch.DeviceID = &deviceID
		ch.SwID = source.SwID
		ch.Reset = reset
		return nil
	})
}

// Delete removes every record of (name, sw_id) in the caller's area,
// splicing each record's children onto its parent. Children of a root
// record become roots themselves.
func (s *Service) Delete(ctx context.Context, p auth.Principal, name string, swID *int64) (Result, error) {
	return s.mutate(ctx, p, ActionDelete, func(ctx context.Context, tx *sql.Tx, sc Scope, ch *Change) error {
		ids, err := queryIDs(ctx, tx,
			"SELECT d.id FROM devices d WHERE "+sc.predicate("d")+" AND d.name = ? AND d.sw_id IS ? ORDER BY d.id",
			sc.AreaID, name, swID)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return fmt.Errorf("%w: no device %q in this group", ErrNotFound, name)
		}

		var formerParents, newRoots []int64
		for _, id := range ids {
			// Earlier iterations may have merged this record away.
			exists, err := recordExists(ctx, tx, id)
			if err != nil {
				return err
			}
			if !exists {
				continue
			}
			parent, err := parentID(ctx, tx, id)
			if err != nil {
				return err
			}

			if parent != nil {
				merged, err := spliceChildren(ctx, tx, id, *parent)
				if err != nil {
					return err
				}
				ch.Affected += merged
				formerParents = append(formerParents, *parent)
			} else {
				kids, err := childNodes(ctx, tx, id)
				if err != nil {
					return err
				}
				if _, err := tx.ExecContext(ctx, "DELETE FROM edges WHERE source_id = ?", id); err != nil {
					return fmt.Errorf("detaching children of %d: %w", id, err)
				}
				// Promoted children may collide with each other or with
				// existing roots; the first survivor of each identity absorbs the rest.
				for _, c := range kids {
					alive, err := recordExists(ctx, tx, c.ID)
					if err != nil {
						return err
					}
					if !alive {
						continue
					}
					merged, err := absorbStaleOrphans(ctx, tx, sc, c.ID, c.Name, c.SwID)
					if err != nil {
						return err
					}
					ch.Affected += merged
					newRoots = append(newRoots, c.ID)
				}
			}

			// Remaining edges to the record cascade.
			res, err := tx.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", id)
			if err != nil {
				return fmt.Errorf("deleting device %d: %w", id, err)
			}
			ch.Affected += rowsAffected(res)
		}

		stamp := timestamp(s.now())
		for _, id := range append(formerParents, newRoots...) {
			n, err := resetSubtree(ctx, tx, sc, id, stamp)
			if err != nil {
				return err
			}
			ch.Reset += n
		}
		ch.SwID = swID
		return nil
	})
}

// Disconnect removes the edge from sourceID to its child (name, sw_id),
// leaving the child as the single parentless record of that identity.
func (s *Service) Disconnect(ctx context.Context, p auth.Principal, name string, sourceID int64, swID *int64) (Result, error) {
	return s.mutate(ctx, p, ActionDisconnect, func(ctx context.Context, tx *sql.Tx, sc Scope, ch *Change) error {
		ids, err := queryIDs(ctx, tx, `SELECT d.id FROM edges e
			JOIN devices d ON d.id = e.target_id
			WHERE e.source_id = ? AND d.name = ? AND d.sw_id IS ?
			ORDER BY d.id LIMIT 1`, sourceID, name, swID)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return fmt.Errorf("%w: device %d has no child %q", ErrNotFound, sourceID, name)
		}
		childID := ids[0]
		if _, err := sc.nodes(ctx, tx, childID, sourceID); err != nil {
			return err
		}

		merged, err := absorbStaleOrphans(ctx, tx, sc, childID, name, swID)
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, "DELETE FROM edges WHERE target_id = ?", childID)
		if err != nil {
			return fmt.Errorf("removing edge to %d: %w", childID, err)
		}

		stamp := timestamp(s.now())
		below, err := resetSubtree(ctx, tx, sc, childID, stamp)
		if err != nil {
			return err
		}
		siblings, err := resetChildren(ctx, tx, sc, sourceID, stamp)
		if err != nil {
			return err
		}

		ch.DeviceID = &childID
		ch.SwID = swID
		ch.Affected = rowsAffected(res) + merged
		ch.Reset = below + siblings
		return nil
	})
}

// Update patches every record of (originalName, sw_id) in the caller's
// area. Cable fields apply to each record's incoming edge.
func (s *Service) Update(ctx context.Context, p auth.Principal, originalName string, swID *int64, patch Patch) (Result, error) {
	if err := patch.normalize(); err != nil {
		return Result{}, err
	}

	return s.mutate(ctx, p, ActionUpdate, func(ctx context.Context, tx *sql.Tx, sc Scope, ch *Change) error {
		ids, err := queryIDs(ctx, tx,
			"SELECT d.id FROM devices d WHERE "+sc.predicate("d")+" AND d.name = ? AND d.sw_id IS ? ORDER BY d.id",
			sc.AreaID, originalName, swID)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return fmt.Errorf("%w: no device %q in this group", ErrNotFound, originalName)
		}

		devCols, renamed := patch.deviceAssignments()
		if renamed && *patch.Name != originalName {
			taken, err := queryIDs(ctx, tx,
				"SELECT d.id FROM devices d WHERE "+sc.predicate("d")+" AND d.name = ? AND d.sw_id IS ? LIMIT 1",
				sc.AreaID, *patch.Name, swID)
			if err != nil {
				return err
			}
			if len(taken) > 0 {
				return fmt.Errorf("%w: a device %q already exists in this group", ErrConflict, *patch.Name)
			}
		}

		in := "(" + placeholders(len(ids)) + ")"
		idArgs := make([]any, len(ids))
		for i, id := range ids {
			idArgs[i] = id
		}

		if len(devCols) > 0 {
			set, values := setClause(append(devCols, assignment{"updated_at", timestamp(s.now())}))
			if _, err := tx.ExecContext(ctx,
				"UPDATE devices SET "+set+" WHERE id IN "+in,
				append(values, idArgs...)...); err != nil {
				return conflictOr(fmt.Errorf("updating devices: %w", err))
			}
		}

		if linkCols := patch.Link.assignments(true); len(linkCols) > 0 {
			set, values := setClause(linkCols)
			if _, err := tx.ExecContext(ctx,
				"UPDATE edges SET "+set+" WHERE target_id IN "+in,
				append(values, idArgs...)...); err != nil {
				return fmt.Errorf("updating edges: %w", err)
			}
		}

		ch.SwID = swID
		ch.Affected = int64(len(ids))
		if len(ids) == 1 {
			ch.DeviceID = &ids[0]
		}
		return nil
	})
}

// absorbStaleOrphans merges every other parentless (name, sw_id) record of
// the area into keep. It returns the number of rows deleted.
func absorbStaleOrphans(ctx context.Context, q querier, sc Scope, keep int64, name string, swID *int64) (int64, error) {
	stale, err := parentlessByIdentity(ctx, q, sc, name, swID, keep)
	if err != nil {
		return 0, err
	}

	var deleted int64
	for _, orphan := range stale {
		n, err := mergeDevice(ctx, q, keep, orphan)
		if err != nil {
			return 0, err
		}
		deleted += n
	}
	return deleted, nil
}

// mergeDevice folds dup into keep: each child of dup moves under keep, or
// is merged into keep's child of the same (name, sw_id). Children that sit
// on keep's own ancestry are left to become roots so no cycle is formed.
// dup is deleted. It returns the number of rows deleted.
func mergeDevice(ctx context.Context, q querier, keep, dup int64) (int64, error) {
	children, err := childNodes(ctx, q, dup)
	if err != nil {
		return 0, err
	}

	var deleted int64
	for _, child := range children {
		onPath, err := isAncestorOrSelf(ctx, q, child.ID, keep)
		if err != nil {
			return 0, err
		}
		if onPath {
			continue
		}
		n, err := adoptChild(ctx, q, keep, child)
		if err != nil {
			return 0, err
		}
		deleted += n
	}

	res, err := q.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", dup)
	if err != nil {
		return 0, fmt.Errorf("deleting duplicate %d: %w", dup, err)
	}
	return deleted + rowsAffected(res), nil
}

// adoptChild moves child under parent, merging it into an existing child
// of the same identity instead of creating a duplicate sibling.
func adoptChild(ctx context.Context, q querier, parent int64, child Node) (int64, error) {
	sibling, err := childByIdentity(ctx, q, parent, child.Name, child.SwID, child.ID)
	if err != nil {
		return 0, err
	}
	if sibling != 0 {
		return mergeDevice(ctx, q, sibling, child.ID)
	}
	if _, err := q.ExecContext(ctx,
		"UPDATE edges SET source_id = ? WHERE target_id = ?", parent, child.ID); err != nil {
		return 0, fmt.Errorf("moving %d under %d: %w", child.ID, parent, err)
	}
	return 0, nil
}

// spliceChildren detaches id from parent and hands every child of id to
// parent. It returns the number of rows merged away.
func spliceChildren(ctx context.Context, q querier, id, parent int64) (int64, error) {
	children, err := childNodes(ctx, q, id)
	if err != nil {
		return 0, err
	}
	// A child sharing id's identity must not be merged into id itself.
	if _, err := q.ExecContext(ctx, "DELETE FROM edges WHERE target_id = ?", id); err != nil {
		return 0, fmt.Errorf("detaching %d: %w", id, err)
	}
	var merged int64
	for _, child := range children {
		n, err := adoptChild(ctx, q, parent, child)
		if err != nil {
			return 0, fmt.Errorf("splicing children of %d: %w", id, err)
		}
		merged += n
	}
	return merged, nil
}

// childNodes loads the direct children of parentID.
func childNodes(ctx context.Context, q querier, parentID int64) ([]Node, error) {
	return queryNodes(ctx, q, nodeSelect+" WHERE e.source_id = ? ORDER BY d.id", parentID)
}

func conflictOr(err error) error {
	if database.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %w", ErrConflict, err)
	}
	return err
}
