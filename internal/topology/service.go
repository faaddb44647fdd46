package topology

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/RaufunNazin/bnetdiag/internal/auth"
	"github.com/RaufunNazin/bnetdiag/internal/infrastructure/database"
	"github.com/RaufunNazin/bnetdiag/internal/infrastructure/logging"
)

// Service executes topology queries and mutations against the store.
//
// Thread Safety: all methods are safe for concurrent use. SQLite serialises
// writers; each mutation holds the single connection for its transaction.
type Service struct {
	db     *database.DB
	cache  ViewCache
	logger *logging.Logger
	now    func() time.Time

	mu        sync.RWMutex
	listeners []ChangeListener
}

// NewService creates a Service over an open database.
func NewService(db *database.DB, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		db:     db,
		logger: logger.Component("topology"),
		now:    time.Now,
	}
}

// SetCache enables the read-through view cache. Call before serving.
func (s *Service) SetCache(c ViewCache) {
	s.cache = c
}

// AddListener registers a change listener.
func (s *Service) AddListener(l ChangeListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// mutation is the body of a write operation. It records what it did on ch.
type mutation func(ctx context.Context, tx *sql.Tx, sc Scope, ch *Change) error

// mutate authorises p for writing, runs fn in one transaction and notifies
// listeners after commit.
func (s *Service) mutate(ctx context.Context, p auth.Principal, action Action, fn mutation) (Result, error) {
	sc, err := authorize(p, auth.PermTopologyWrite)
	if err != nil {
		return Result{}, err
	}

	ch := Change{Action: action, AreaID: sc.AreaID, UserID: p.UserID}
	err = s.db.InTx(ctx, func(tx *sql.Tx) error {
		return fn(ctx, tx, sc, &ch)
	})
	if err != nil {
		s.logFailure(action, p, err)
		return Result{}, err
	}

	ch.At = s.now().UTC()
	s.logger.Info("topology changed",
		"action", ch.Action,
		"area_id", ch.AreaID,
		"user_id", ch.UserID,
		"affected", ch.Affected,
		"reset", ch.Reset,
	)
	s.notify(ctx, ch)
	return ch.result(), nil
}

func (s *Service) logFailure(action Action, p auth.Principal, err error) {
	switch {
	case errors.Is(err, ErrForbidden):
		s.logger.Warn("topology mutation denied", "action", action, "user_id", p.UserID, "error", err)
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict), errors.Is(err, ErrInvalid):
		s.logger.Debug("topology mutation rejected", "action", action, "user_id", p.UserID, "error", err)
	default:
		s.logger.Error("topology mutation failed", "action", action, "user_id", p.UserID, "error", err)
	}
}
