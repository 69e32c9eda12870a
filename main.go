// Command gridworld-viewer connects to a grid-world simulation server and
// renders the snapshots it pushes.
//
// It supports four modes:
//  1. "window" (default) – desktop window with the grid, a log panel and keyboard controls (needs -tags ebiten)
//  2. "headless" – renders in memory, prints the log panel and optionally writes every frame as PNG
//  3. "mcp" – MCP stdio server exposing the session as tools for AI agents
//  4. "replay" – serves recorded snapshots over the same WebSocket protocol, for development
//
// Flags control the server URI, config file, asset directory, step cadence,
// debug logging and, in replay mode, optional ngrok tunneling.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Grid World Viewer"
)

// main loads .env and runs the selected command.
func main() {
	// Load .env file if it exists (ignore error if not found)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			log.Printf("Warning: Error loading .env file: %v", err)
		}
	}

	if err := newApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
