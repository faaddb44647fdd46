// Package api provides the HTTP REST API and WebSocket server for netdiag.
//
// Every topology route runs behind bearer-token authentication; the
// resolved principal is handed to the topology service, which enforces
// role and area. Committed changes are pushed to WebSocket clients of the
// same area on the "topology.changed" channel.
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
