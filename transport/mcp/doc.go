// Package mcp exposes a viewer session to AI agents over the Model Context
// Protocol.
//
// The Controller registers one tool per session operation:
//   - connect: open the WebSocket connection to the simulation server
//   - status: connection state and snapshot counters
//   - step: send a single step command
//   - start_stepping / stop_stepping: drive the fixed-cadence step timer
//   - snapshot: entities of the last rendered snapshot
//   - frame: last rendered frame as a PNG image
//   - log: tail of the log panel
//
// Failures such as sending on a closed connection are reported as tool
// errors so the agent can read them; they never fail the MCP request.
//
// Usage:
//
//	ctrl := mcp.NewController(sess, logger)
//	if err := ctrl.ServeStdio(); err != nil {
//		log.Fatal(err)
//	}
package mcp
