package mqtt

import "fmt"

// TopicPrefix is the root of every netdiag topic.
const TopicPrefix = "netdiag"

// Topics builds netdiag MQTT topics.
type Topics struct{}

// TopologyChanged is published after each committed mutation in an area.
//
// Example: netdiag/topology/5/changed
func (Topics) TopologyChanged(areaID int64) string {
	return fmt.Sprintf("%s/topology/%d/changed", TopicPrefix, areaID)
}

// AllTopologyChanges matches the change topic of every area.
//
// Pattern: netdiag/topology/+/changed
func (Topics) AllTopologyChanges() string {
	return TopicPrefix + "/topology/+/changed"
}

// SystemStatus carries the retained online/offline status of instances.
//
// Example: netdiag/system/status
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}
