package topology

import (
	"context"
	"time"
)

// Action names a committed mutation.
type Action string

const (
	ActionCreate         Action = "create"
	ActionInsert         Action = "insert"
	ActionConnect        Action = "connect"
	ActionUpdate         Action = "update"
	ActionDelete         Action = "delete"
	ActionDisconnect     Action = "disconnect"
	ActionResetPositions Action = "reset_positions"
	ActionSetPosition    Action = "set_position"
)

// Change describes one committed mutation.
type Change struct {
	Action     Action    `json:"action"`
	AreaID     int64     `json:"area_id"`
	UserID     string    `json:"user_id"`
	SwID       *int64    `json:"sw_id,omitempty"`
	DeviceID   *int64    `json:"device_id,omitempty"`
	Affected   int64     `json:"affected"`
	Reset      int64     `json:"reset"`
	Reattached bool      `json:"reattached,omitempty"`
	At         time.Time `json:"at"`
}

func (c Change) result() Result {
	return Result{
		DeviceID:   c.DeviceID,
		Affected:   c.Affected,
		Reset:      c.Reset,
		Reattached: c.Reattached,
	}
}

// ChangeListener is told about every committed mutation. Implementations
// must not block for long; slow sinks should hand off to a goroutine.
type ChangeListener interface {
	TopologyChanged(ctx context.Context, c Change)
}

// ChangeListenerFunc adapts a function to ChangeListener.
type ChangeListenerFunc func(ctx context.Context, c Change)

// TopologyChanged calls f.
func (f ChangeListenerFunc) TopologyChanged(ctx context.Context, c Change) {
	f(ctx, c)
}

// ViewCache stores resolved views per (area, root). Root 0 is the general view.
//
// GetView reports the area generation it observed, hit or miss, and the
// caller hands that generation back to SetView. A view read before
// InvalidateArea is stored under a superseded generation and never served.
type ViewCache interface {
	GetView(ctx context.Context, areaID, rootID int64) (nodes []Node, gen uint64, ok bool)
	SetView(ctx context.Context, areaID, rootID int64, gen uint64, nodes []Node)
	InvalidateArea(ctx context.Context, areaID int64) error
}

// notify runs after commit. Listener panics are logged and swallowed.
func (s *Service) notify(ctx context.Context, c Change) {
	ctx = context.WithoutCancel(ctx)

	if s.cache != nil {
		if err := s.cache.InvalidateArea(ctx, c.AreaID); err != nil {
			s.logger.Warn("view cache invalidation failed", "area_id", c.AreaID, "error", err)
		}
	}

	s.mu.RLock()
	listeners := s.listeners
	s.mu.RUnlock()

	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("change listener panicked", "action", c.Action, "panic", r)
				}
			}()
			l.TopologyChanged(ctx, c)
		}()
	}
}
