package topology

import "time"

// PositionMode records whether a device's coordinates came from auto-layout
// or from an operator.
type PositionMode int

const (
	PositionAuto   PositionMode = 0
	PositionPinned PositionMode = 1
)

// Node types with special meaning to the views. Other values are opaque.
const (
	NodeTypeOLT = "OLT"
	NodeTypePON = "PON"
	NodeTypeONU = "ONU"
)

// Inventory holds descriptive device attributes carried opaquely.
// A nil field is stored as NULL; in a Patch it means "leave unchanged".
type Inventory struct {
	Brand      *string  `json:"brand"`
	Model      *string  `json:"model"`
	SerialNo   *string  `json:"serial_no"`
	MAC        *string  `json:"mac"`
	IP         *string  `json:"ip"`
	VLAN       *string  `json:"vlan"`
	Lat        *float64 `json:"lat"`
	Lng        *float64 `json:"lng"`
	Remarks    *string  `json:"remarks"`
	SplitRatio *int64   `json:"split_ratio"`
	SplitGroup *string  `json:"split_group"`
	Status     *int64   `json:"status"`
}

// Link holds the cable attributes of an edge.
type Link struct {
	LinkType    *string `json:"link_type"`
	CableID     *string `json:"cable_id"`
	CableStart  *int64  `json:"cable_start"`
	CableEnd    *int64  `json:"cable_end"`
	CableLength *int64  `json:"cable_length"`
	CableColor  *string `json:"cable_color"`
	CableDesc   *string `json:"cable_desc"`
}

// Device is a stored topology node.
type Device struct {
	ID           int64        `json:"id"`
	Name         string       `json:"name"`
	NodeType     string       `json:"node_type"`
	AreaID       *int64       `json:"area_id"`
	SwID         *int64       `json:"sw_id"`
	PositionX    *float64     `json:"position_x"`
	PositionY    *float64     `json:"position_y"`
	PositionMode PositionMode `json:"position_mode"`
	Inventory
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Node is a device joined with its incoming edge, the flat shape returned by
// the views. ParentID and EdgeID are nil for roots.
type Node struct {
	Device
	ParentID *int64 `json:"parent_id"`
	EdgeID   *int64 `json:"edge_id"`
	Link
}

// DeviceInput describes a device to create. Link is only used when the
// device is spliced under a parent.
type DeviceInput struct {
	Name     string `json:"name"`
	NodeType string `json:"node_type"`
	SwID     *int64 `json:"sw_id"`
	Inventory
	Link
}

// Patch lists the fields to change on every record of a device.
// Nil fields are left untouched.
type Patch struct {
	Name     *string `json:"name"`
	NodeType *string `json:"node_type"`
	Inventory
	Link
}

// ResetTarget selects the rows a bulk position reset applies to.
type ResetTarget string

const (
	// ResetNode targets a single device id.
	ResetNode ResetTarget = "node"
	// ResetGroup targets every device with sw_id = X plus device X itself.
	ResetGroup ResetTarget = "group"
	// ResetGeneral targets the general view.
	ResetGeneral ResetTarget = "general"
)

// ResetMode chooses which placements a bulk reset may clear.
type ResetMode string

const (
	// ResetAuto clears auto-laid-out positions and leaves pinned ones.
	ResetAuto ResetMode = "auto"
	// ResetManual clears only pinned positions.
	ResetManual ResetMode = "manual"
)

// Result summarises a committed mutation.
type Result struct {
	DeviceID   *int64 `json:"device_id,omitempty"`
	Affected   int64  `json:"affected"`
	Reset      int64  `json:"reset"`
	Reattached bool   `json:"reattached,omitempty"`
}

// Switch is a row of the switches catalogue.
type Switch struct {
	ID      int64   `json:"id"`
	Name    string  `json:"name"`
	SwType  string  `json:"sw_type"`
	OLTType *string `json:"olt_type"`
	IP      *string `json:"ip"`
	AreaID  *int64  `json:"area_id"`
}
