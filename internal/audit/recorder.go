package audit

import (
	"context"
	"strconv"
	"sync"

	"github.com/RaufunNazin/bnetdiag/internal/infrastructure/logging"
	"github.com/RaufunNazin/bnetdiag/internal/topology"
)

// queueSize bounds pending entries. Beyond it entries are dropped so a slow
// disk never backs up request handling.
const queueSize = 256

// Recorder writes audit entries from a single goroutine. SQLite serialises
// writers anyway, so one drain loop is enough.
type Recorder struct {
	repo   Repository
	logger *logging.Logger
	queue  chan *AuditLog

	startOnce sync.Once
	done      chan struct{}
}

var _ topology.ChangeListener = (*Recorder)(nil)

// NewRecorder creates a Recorder. Call Run to start writing.
func NewRecorder(repo Repository, logger *logging.Logger) *Recorder {
	return &Recorder{
		repo:   repo,
		logger: logger.Component("audit"),
		queue:  make(chan *AuditLog, queueSize),
		done:   make(chan struct{}),
	}
}

// Record enqueues entry. It never blocks.
func (r *Recorder) Record(entry *AuditLog) {
	select {
	case r.queue <- entry:
	default:
		r.logger.Warn("audit queue full, dropping entry",
			"action", entry.Action,
			"entity_type", entry.EntityType,
		)
	}
}

// TopologyChanged records a committed mutation.
func (r *Recorder) TopologyChanged(_ context.Context, c topology.Change) {
	r.Record(FromChange(c))
}

// FromChange builds the audit entry for a topology change.
func FromChange(c topology.Change) *AuditLog {
	entityType := "device"
	if c.Action == topology.ActionResetPositions || c.Action == topology.ActionSetPosition {
		entityType = "position"
	}

	entry := &AuditLog{
		Action:     string(c.Action),
		EntityType: entityType,
		UserID:     c.UserID,
		AreaID:     &c.AreaID,
		Source:     SourceAPI,
		CreatedAt:  c.At,
		Details: map[string]any{
			"affected": c.Affected,
			"reset":    c.Reset,
		},
	}
	if c.DeviceID != nil {
		entry.EntityID = strconv.FormatInt(*c.DeviceID, 10)
	}
	if c.SwID != nil {
		entry.Details["sw_id"] = *c.SwID
	}
	if c.Reattached {
		entry.Details["reattached"] = true
	}
	return entry
}

// Run writes queued entries until ctx is cancelled, then drains what is left.
func (r *Recorder) Run(ctx context.Context) {
	r.startOnce.Do(func() {
		defer close(r.done)
		for {
			select {
			case entry := <-r.queue:
				r.write(entry)
			case <-ctx.Done():
				for {
					select {
					case entry := <-r.queue:
						r.write(entry)
					default:
						return
					}
				}
			}
		}
	})
}

// Done is closed once Run has drained the queue.
func (r *Recorder) Done() <-chan struct{} {
	return r.done
}

func (r *Recorder) write(entry *AuditLog) {
	if err := r.repo.Create(context.Background(), entry); err != nil {
		r.logger.Error("audit log write failed",
			"action", entry.Action,
			"entity_type", entry.EntityType,
			"error", err,
		)
	}
}
