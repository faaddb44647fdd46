// Package topology maintains the fiber-network forest: devices joined by
// directed parent-to-child edges, scoped per area.
//
// Every operation takes the caller's auth.Principal. The guard turns it into
// a Scope (one area id) that every read and write path filters on, and
// checks each node an operation touches: first that it exists, then that it
// belongs to the caller's area.
//
// Mutations run in a single transaction. Structural changes null the layout
// positions of the affected branch unless a node is pinned
// (position_mode = 1). After commit, registered ChangeListeners are told
// what changed; they cannot affect the outcome.
//
// A device with no incoming edge is a root. A root that shares
// (name, sw_id) with devices placed elsewhere is an orphan; at most one
// parentless record per (name, sw_id) is kept per area, and stale ones are
// merged into the survivor.
package topology
