// Package world defines the data model of the grid-world viewer.
//
// The world package implements:
//   - Entity kinds as a closed enumeration (rabbit, wolf, carrot, unknown)
//   - Grid locations addressed by column and row
//   - Snapshots: the full simulation state carried by one inbound message
//   - Decoding and shape validation of the wire format
//
// Wire Format:
//
// The simulation server pushes one JSON document per WebSocket message:
//
//	{"env_state": [{"type": "rabbit", "location": [2, 3]}, ...]}
//
// Each location is a two element array of integers: column, row. Entities are
// kept in array order, which is also the order they are drawn in.
//
// Unknown Types:
//
// Entity types outside the known set decode to KindUnknown. They are not an
// error; renderers simply have no sprite for them.
package world
