// Package websocket provides the WebSocket transport of the grid-world viewer.
//
// The websocket package implements:
//   - A client connection to the simulation server (Dial, Conn)
//   - Serialized writes with a write deadline
//   - Close handshake and close classification
//   - A replay server that plays recorded snapshots back over the same
//     wire protocol, for development and tests
//
// Message Protocol:
//
// Text frames in both directions:
//   - Incoming (server to viewer): one snapshot JSON document per frame
//   - Outgoing (viewer to server): the bare command strings "step" and "stop"
//
// Usage:
//
//	conn, err := websocket.Dial(ctx, "ws://localhost:8080/websocket", 10*time.Second)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer conn.Close()
//
//	data, err := conn.ReadMessage()
//	err = conn.WriteText("step")
//
// Replay Server:
//
// ReplayServer keeps the hub-and-spoke model: a central loop owns all peers,
// and each peer has a read pump and a write pump goroutine. Every peer gets
// the first snapshot on connect and advances one snapshot per "step".
//
// Concurrency:
//
// Conn allows one reader and any number of writers; writes are serialized
// internally. The replay hub may serve many peers at once.
package websocket
