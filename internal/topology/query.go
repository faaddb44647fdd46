package topology

import (
	"context"
	"fmt"

	"github.com/RaufunNazin/bnetdiag/internal/auth"
)

// generalViewWhere selects top-level infrastructure: no PON/ONU, no group of
// its own, and not hanging under a device that belongs to an OLT system.
const generalViewWhere = `d.node_type NOT IN ('PON', 'ONU')
	AND d.sw_id IS NULL
	AND NOT EXISTS (
		SELECT 1 FROM edges pe
		JOIN devices p ON p.id = pe.source_id
		WHERE pe.target_id = d.id
		  AND p.node_type IN ('OLT', 'PON', 'ONU')
		  AND p.sw_id IS NOT NULL
	)`

const generalViewRoot = 0

// View resolves the general view when rootID is nil, else the group view
// rooted at *rootID.
func (s *Service) View(ctx context.Context, p auth.Principal, rootID *int64) ([]Node, error) {
	if rootID == nil {
		return s.GeneralView(ctx, p)
	}
	return s.SubtreeView(ctx, p, *rootID)
}

// GeneralView returns the caller's top-level devices in id order.
func (s *Service) GeneralView(ctx context.Context, p auth.Principal) ([]Node, error) {
	sc, err := authorize(p, auth.PermTopologyRead)
	if err != nil {
		return nil, err
	}

	cached, gen, ok := s.cachedView(ctx, sc, generalViewRoot)
	if ok {
		return cached, nil
	}

	nodes, err := queryNodes(ctx, s.db,
		nodeSelect+" WHERE "+sc.predicate("d")+" AND "+generalViewWhere+" ORDER BY d.id",
		sc.AreaID)
	if err != nil {
		return nil, fmt.Errorf("general view: %w", err)
	}

	s.storeView(ctx, sc, generalViewRoot, gen, nodes)
	return nodes, nil
}

// SubtreeView returns the subtree under rootID followed by every parentless
// device whose sw_id is rootID, each with its subtree, in breadth-first order.
// Only devices in the caller's area are visited.
func (s *Service) SubtreeView(ctx context.Context, p auth.Principal, rootID int64) ([]Node, error) {
	sc, err := authorize(p, auth.PermTopologyRead)
	if err != nil {
		return nil, err
	}
	if _, err := sc.node(ctx, s.db, rootID); err != nil {
		return nil, err
	}

	cached, gen, ok := s.cachedView(ctx, sc, rootID)
	if ok {
		return cached, nil
	}

	rows, err := queryNodes(ctx, s.db, nodeSelect+" WHERE "+sc.predicate("d")+" ORDER BY d.id", sc.AreaID)
	if err != nil {
		return nil, fmt.Errorf("subtree view: %w", err)
	}
	nodes := buildForest(rows).groupView(rootID)

	s.storeView(ctx, sc, rootID, gen, nodes)
	return nodes, nil
}

// cachedView must run before the database read whose result goes to storeView.
func (s *Service) cachedView(ctx context.Context, sc Scope, rootID int64) ([]Node, uint64, bool) {
	if s.cache == nil {
		return nil, 0, false
	}
	return s.cache.GetView(ctx, sc.AreaID, rootID)
}

func (s *Service) storeView(ctx context.Context, sc Scope, rootID int64, gen uint64, nodes []Node) {
	if s.cache != nil {
		s.cache.SetView(ctx, sc.AreaID, rootID, gen, nodes)
	}
}

// ListOLTs returns the OLT rows of the switches catalogue in the caller's area.
func (s *Service) ListOLTs(ctx context.Context, p auth.Principal) ([]Switch, error) {
	sc, err := authorize(p, auth.PermTopologyRead)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT d.id, d.name, d.sw_type, d.olt_type, d.ip, d.area_id
		 FROM switches d WHERE `+sc.predicate("d")+` AND d.sw_type = 'OLT'
		 ORDER BY d.name, d.id`, sc.AreaID)
	if err != nil {
		return nil, fmt.Errorf("listing olts: %w", err)
	}
	defer rows.Close()

	olts := []Switch{}
	for rows.Next() {
		var sw Switch
		if err := rows.Scan(&sw.ID, &sw.Name, &sw.SwType, &sw.OLTType, &sw.IP, &sw.AreaID); err != nil {
			return nil, fmt.Errorf("scanning olt: %w", err)
		}
		olts = append(olts, sw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating olts: %w", err)
	}
	return olts, nil
}
