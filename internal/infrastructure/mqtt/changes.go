package mqtt

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/RaufunNazin/bnetdiag/internal/infrastructure/logging"
	"github.com/RaufunNazin/bnetdiag/internal/topology"
)

// changeQueueSize bounds how far publishing may lag behind commits.
const changeQueueSize = 256

// ChangeEvent is the payload of netdiag/topology/{area_id}/changed.
type ChangeEvent struct {
	// Origin is the client id of the instance that committed the change.
	Origin string `json:"origin"`
	topology.Change
}

type jsonPublisher interface {
	PublishJSON(topic string, v any) error
	ClientID() string
}

// ChangePublisher forwards committed topology changes to the broker.
// TopologyChanged only enqueues; Run does the publishing.
type ChangePublisher struct {
	client jsonPublisher
	queue  chan ChangeEvent
	logger *logging.Logger
}

var _ topology.ChangeListener = (*ChangePublisher)(nil)

// NewChangePublisher creates a publisher for client. Start it with Run.
func NewChangePublisher(client *Client, logger *logging.Logger) *ChangePublisher {
	return newChangePublisher(client, logger)
}

func newChangePublisher(client jsonPublisher, logger *logging.Logger) *ChangePublisher {
	if logger == nil {
		logger = logging.Default()
	}
	return &ChangePublisher{
		client: client,
		queue:  make(chan ChangeEvent, changeQueueSize),
		logger: logger.Component("mqtt-changes"),
	}
}

// TopologyChanged enqueues c, dropping it when the queue is full.
func (p *ChangePublisher) TopologyChanged(_ context.Context, c topology.Change) {
	select {
	case p.queue <- ChangeEvent{Origin: p.client.ClientID(), Change: c}:
	default:
		p.logger.Warn("change queue full, dropping event", "action", c.Action, "area_id", c.AreaID)
	}
}

// Run publishes queued changes until ctx is cancelled.
func (p *ChangePublisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-p.queue:
			topic := Topics{}.TopologyChanged(ev.AreaID)
			if err := p.client.PublishJSON(topic, ev); err != nil {
				p.logger.Warn("publishing topology change failed", "topic", topic, "error", err)
			}
		}
	}
}

// SubscribeChanges delivers changes committed by other instances.
// Events this client published itself are skipped.
func (c *Client) SubscribeChanges(handler func(ChangeEvent)) error {
	self := c.ClientID()
	return c.Subscribe(Topics{}.AllTopologyChanges(), byte(c.cfg.QoS), func(topic string, payload []byte) error {
		ev, remote, err := decodeChange(self, payload)
		if err != nil {
			return fmt.Errorf("decoding %s: %w", topic, err)
		}
		if remote {
			handler(ev)
		}
		return nil
	})
}

func decodeChange(self string, payload []byte) (ChangeEvent, bool, error) {
	var ev ChangeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return ChangeEvent{}, false, err
	}
	if ev.Action == "" {
		return ChangeEvent{}, false, fmt.Errorf("missing action")
	}
	return ev, ev.Origin != self, nil
}
