package topology

import (
	"context"
	"fmt"

	"github.com/RaufunNazin/bnetdiag/internal/auth"
)

// Scope is the area a principal may see and change. Every query in this
// package filters through predicate so tenant isolation lives in one place.
type Scope struct {
	AreaID int64
}

// authorize checks role and area presence. It never touches the store.
func authorize(p auth.Principal, perm auth.Permission) (Scope, error) {
	if !p.Can(perm) {
		return Scope{}, fmt.Errorf("%w: role %q may not %s", ErrForbidden, p.Role, perm)
	}
	area, ok := p.Area()
	if !ok {
		return Scope{}, fmt.Errorf("%w: principal has no area", ErrForbidden)
	}
	return Scope{AreaID: area}, nil
}

// predicate returns the area filter for a table alias; bind sc.AreaID to it.
func (sc Scope) predicate(alias string) string {
	return alias + ".area_id = ?"
}

func (sc Scope) owns(d *Device) bool {
	return d.AreaID != nil && *d.AreaID == sc.AreaID
}

// node loads a device and checks it belongs to the scope.
// Absent devices yield ErrNotFound, foreign ones ErrForbidden.
func (sc Scope) node(ctx context.Context, q querier, id int64) (*Node, error) {
	n, err := getNode(ctx, q, id)
	if err != nil {
		return nil, err
	}
	if !sc.owns(&n.Device) {
		return nil, fmt.Errorf("%w: device %d is outside area %d", ErrForbidden, id, sc.AreaID)
	}
	return n, nil
}

// nodes loads every id before checking any area, so a missing endpoint is
// reported as ErrNotFound even when another endpoint is foreign.
func (sc Scope) nodes(ctx context.Context, q querier, ids ...int64) ([]*Node, error) {
	out := make([]*Node, len(ids))
	for i, id := range ids {
		n, err := getNode(ctx, q, id)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	for _, n := range out {
		if !sc.owns(&n.Device) {
			return nil, fmt.Errorf("%w: device %d is outside area %d", ErrForbidden, n.ID, sc.AreaID)
		}
	}
	return out, nil
}

// Authorize decides whether p may work on nodeID.
func (s *Service) Authorize(ctx context.Context, p auth.Principal, nodeID int64) error {
	sc, err := authorize(p, auth.PermTopologyRead)
	if err != nil {
		return err
	}
	_, err = sc.node(ctx, s.db, nodeID)
	return err
}
