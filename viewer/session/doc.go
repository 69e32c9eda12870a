// Package session drives one viewer connection to a simulation server.
//
// The session package implements:
//   - The connection lifecycle (Unconnected, Connecting, Open, Closed)
//   - Inbound message handling: decode, render, log
//   - Outbound commands ("step", "stop")
//   - A fixed-cadence step timer that is cancelled on stop and on close
//   - An append-only log panel mirrored to the structured logger
//
// Core Types:
//
// Session owns the three resources a viewer needs: the connection, the
// drawing surface and the step timer. Several sessions can run side by side,
// each with its own server and surface.
//
// Lifecycle:
//
// A session connects at most once. There is no reconnect: once the
// connection closes, for whatever reason, the session is Closed for good and
// Connect returns ErrSessionClosed.
//
// Concurrency:
//
// Inbound messages are handled one at a time on the read pump goroutine, in
// delivery order. The step timer runs on its own goroutine. Sends may come
// from any goroutine and are serialized by the transport.
//
// Usage:
//
//	sess := session.New(session.Options{URI: "ws://localhost:8080/websocket"})
//	if err := sess.Connect(ctx); err != nil {
//		log.Fatal(err)
//	}
//	defer sess.Close()
//
//	sess.StartStepping()
//	...
//	sess.StopStepping()
package session
