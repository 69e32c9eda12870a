package websocket

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wricardo/gridworld-viewer/viewer/world"
	"go.uber.org/zap"
)

const testFrames = `{"env_state":[{"type":"rabbit","location":[0,0]}]}

{"env_state":[{"type":"rabbit","location":[1,0]}]}
{"env_state":[{"type":"rabbit","location":[2,0]},{"type":"carrot","location":[3,3]}]}
`

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func startReplay(t *testing.T, loop bool) (*ReplayServer, *httptest.Server) {
	t.Helper()
	frames, err := LoadFrames(strings.NewReader(testFrames))
	if err != nil {
		t.Fatalf("LoadFrames failed: %v", err)
	}

	replay := NewReplayServer(frames, loop, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go replay.Run(ctx)

	server := httptest.NewServer(replay.Routes("/websocket"))
	t.Cleanup(func() {
		server.Close()
		cancel()
	})
	return replay, server
}

func readSnapshot(t *testing.T, conn *websocket.Conn) world.Snapshot {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read snapshot: %v", err)
	}
	snap, err := world.Decode(data)
	if err != nil {
		t.Fatalf("Server sent invalid snapshot: %v", err)
	}
	return snap
}

func TestLoadFrames(t *testing.T) {
	t.Run("skips blank lines", func(t *testing.T) {
		frames, err := LoadFrames(strings.NewReader(testFrames))
		if err != nil {
			t.Fatalf("LoadFrames failed: %v", err)
		}
		if len(frames) != 3 {
			t.Errorf("Expected 3 frames, got %d", len(frames))
		}
	})

	t.Run("invalid line reports position", func(t *testing.T) {
		_, err := LoadFrames(strings.NewReader("{\"env_state\":[]}\n{\"nope\":1}\n"))
		if !errors.Is(err, world.ErrMissingState) {
			t.Fatalf("Expected ErrMissingState, got %v", err)
		}
		if !strings.Contains(err.Error(), "line 2") {
			t.Errorf("Expected line number in error, got %v", err)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		if _, err := LoadFrames(strings.NewReader("\n\n")); err == nil {
			t.Error("Expected error for empty input")
		}
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "run.jsonl")
		if err := os.WriteFile(path, []byte(testFrames), 0644); err != nil {
			t.Fatal(err)
		}
		frames, err := LoadFramesFile(path)
		if err != nil || len(frames) != 3 {
			t.Errorf("Expected 3 frames, got %d (%v)", len(frames), err)
		}
		if _, err := LoadFramesFile(path + ".missing"); err == nil {
			t.Error("Expected error for missing file")
		}
	})
}

func TestReplayStepsThroughFrames(t *testing.T) {
	replay, server := startReplay(t, false)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, "/websocket"), nil)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	first := readSnapshot(t, conn)
	if first.EnvState[0].Location.X != 0 {
		t.Errorf("Expected first frame on connect, got %+v", first)
	}
	eventually(t, "peer registration", func() bool { return replay.Connected() == 1 })

	wantX := []int{1, 2, 2} // last frame repeats without loop
	for i, x := range wantX {
		if err := conn.WriteMessage(websocket.TextMessage, []byte("step")); err != nil {
			t.Fatalf("Failed to send step: %v", err)
		}
		snap := readSnapshot(t, conn)
		if snap.EnvState[0].Location.X != x {
			t.Errorf("step %d: expected rabbit at x=%d, got %d", i+1, x, snap.EnvState[0].Location.X)
		}
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("stop")); err != nil {
		t.Fatalf("Failed to send stop: %v", err)
	}
	eventually(t, "stop command", func() bool { return replay.Stops() == 1 })
	if replay.Steps() != 3 {
		t.Errorf("Expected 3 steps, got %d", replay.Steps())
	}

	conn.Close()
	eventually(t, "peer removal", func() bool { return replay.Connected() == 0 })
}

func TestReplayLoops(t *testing.T) {
	_, server := startReplay(t, true)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, "/websocket"), nil)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	readSnapshot(t, conn)
	for i := 0; i < 3; i++ {
		readSnapshotAfterStep(t, conn)
	}
	// the third step wrapped to frame 0, so the fourth lands on frame 1
	if first := readSnapshotAfterStep(t, conn); first.EnvState[0].Location.X != 1 {
		t.Errorf("Expected wrap to second frame after four steps, got x=%d", first.EnvState[0].Location.X)
	}
}

func readSnapshotAfterStep(t *testing.T, conn *websocket.Conn) world.Snapshot {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte("step")); err != nil {
		t.Fatalf("Failed to send step: %v", err)
	}
	return readSnapshot(t, conn)
}

func TestReplayPeersAreIndependent(t *testing.T) {
	_, server := startReplay(t, false)

	a, _, err := websocket.DefaultDialer.Dial(wsURL(server, "/websocket"), nil)
	if err != nil {
		t.Fatalf("Failed to connect a: %v", err)
	}
	defer a.Close()
	b, _, err := websocket.DefaultDialer.Dial(wsURL(server, "/websocket"), nil)
	if err != nil {
		t.Fatalf("Failed to connect b: %v", err)
	}
	defer b.Close()

	readSnapshot(t, a)
	readSnapshot(t, b)

	if snap := readSnapshotAfterStep(t, a); snap.EnvState[0].Location.X != 1 {
		t.Errorf("Peer a expected x=1, got %d", snap.EnvState[0].Location.X)
	}
	if snap := readSnapshotAfterStep(t, b); snap.EnvState[0].Location.X != 1 {
		t.Errorf("Peer b should advance independently, got x=%d", snap.EnvState[0].Location.X)
	}
}

func TestReplayHealthz(t *testing.T) {
	_, server := startReplay(t, false)

	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "frames=3") {
		t.Errorf("Unexpected health body %q", body)
	}
}
