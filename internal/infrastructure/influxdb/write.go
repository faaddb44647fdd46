package influxdb

import (
	"context"
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/RaufunNazin/bnetdiag/internal/topology"
)

// MeasurementTopologyChanges holds one point per committed mutation.
const MeasurementTopologyChanges = "topology_changes"

var _ topology.ChangeListener = (*Client)(nil)

// TopologyChanged queues a point for c. It never blocks on the network.
func (c *Client) TopologyChanged(_ context.Context, ch topology.Change) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(changePoint(ch))
}

// changePoint tags by area and action; device ids stay in fields to keep
// series cardinality bounded.
func changePoint(ch topology.Change) *write.Point {
	fields := map[string]any{
		"affected":   ch.Affected,
		"reset":      ch.Reset,
		"reattached": ch.Reattached,
	}
	if ch.DeviceID != nil {
		fields["device_id"] = *ch.DeviceID
	}
	if ch.UserID != "" {
		fields["user_id"] = ch.UserID
	}

	at := ch.At
	if at.IsZero() {
		at = time.Now()
	}

	return write.NewPoint(
		MeasurementTopologyChanges,
		map[string]string{
			"area_id": strconv.FormatInt(ch.AreaID, 10),
			"action":  string(ch.Action),
		},
		fields,
		at,
	)
}

// WritePoint queues an arbitrary point stamped now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}
