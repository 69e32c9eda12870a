package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/wricardo/gridworld-viewer/viewer/render"
	"github.com/wricardo/gridworld-viewer/viewer/session"
	"github.com/wricardo/gridworld-viewer/viewer/world"
)

// MockViewer implements Viewer for testing
type MockViewer struct {
	StatsFunc         func() session.Stats
	SnapshotFunc      func() (world.Snapshot, bool)
	StepFunc          func() error
	StartSteppingFunc func() error
	StopSteppingFunc  func() error

	panel   *session.Panel
	surface render.Surface
	calls   []string
}

func newMockViewer() *MockViewer {
	return &MockViewer{
		panel:   session.NewPanel(nil),
		surface: render.NewImageSurface(64, 32),
	}
}

func (m *MockViewer) ID() string  { return "test-viewer" }
func (m *MockViewer) URI() string { return "ws://localhost:8080/websocket" }

func (m *MockViewer) Stats() session.Stats {
	if m.StatsFunc != nil {
		return m.StatsFunc()
	}
	return session.Stats{Status: "open"}
}

func (m *MockViewer) Snapshot() (world.Snapshot, bool) {
	if m.SnapshotFunc != nil {
		return m.SnapshotFunc()
	}
	return world.Snapshot{}, false
}

func (m *MockViewer) Panel() *session.Panel   { return m.panel }
func (m *MockViewer) Surface() render.Surface { return m.surface }

func (m *MockViewer) Step() error {
	m.calls = append(m.calls, "step")
	if m.StepFunc != nil {
		return m.StepFunc()
	}
	return nil
}

func (m *MockViewer) StartStepping() error {
	m.calls = append(m.calls, "start")
	if m.StartSteppingFunc != nil {
		return m.StartSteppingFunc()
	}
	return nil
}

func (m *MockViewer) StopStepping() error {
	m.calls = append(m.calls, "stop")
	if m.StopSteppingFunc != nil {
		return m.StopSteppingFunc()
	}
	return nil
}

// nullSurface is a Surface that keeps no pixels
type nullSurface struct{}

func (nullSurface) Clear()                           {}
func (nullSurface) DrawSprite(image.Image, int, int) {}
func (nullSurface) Bounds() image.Rectangle          { return image.Rect(0, 0, 1, 1) }

func serve(s *Server, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode error body: %v", err)
	}
	return body["error"]
}

func TestStatus(t *testing.T) {
	mock := newMockViewer()
	mock.StatsFunc = func() session.Stats {
		return session.Stats{Status: "open", Received: 3, Entities: 2, Drawn: 2, Stepping: true}
	}
	s := NewServer(mock, nil)

	rr := serve(s, "GET", "/api/status")
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}

	var resp StatusResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.ID != "test-viewer" || resp.URI != "ws://localhost:8080/websocket" {
		t.Errorf("Unexpected identity %+v", resp)
	}
	if resp.Stats.Received != 3 || !resp.Stats.Stepping {
		t.Errorf("Unexpected stats %+v", resp.Stats)
	}
}

func TestSnapshot(t *testing.T) {
	mock := newMockViewer()
	s := NewServer(mock, nil)

	rr := serve(s, "GET", "/api/snapshot")
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 before the first snapshot, got %d", rr.Code)
	}

	mock.SnapshotFunc = func() (world.Snapshot, bool) {
		return world.Snapshot{EnvState: []world.Entity{
			{Type: "rabbit", Kind: world.Rabbit, Location: world.Location{X: 2, Y: 3}},
		}}, true
	}
	rr = serve(s, "GET", "/api/snapshot")
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}

	var snap world.Snapshot
	if err := json.NewDecoder(rr.Body).Decode(&snap); err != nil {
		t.Fatalf("Failed to decode snapshot: %v", err)
	}
	if snap.Len() != 1 || snap.EnvState[0].Location != (world.Location{X: 2, Y: 3}) {
		t.Errorf("Unexpected snapshot %+v", snap)
	}
}

func TestCommands(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		call     string
		err      error
		expected int
	}{
		{"step", "/api/step", "step", nil, http.StatusOK},
		{"start", "/api/stepping/start", "start", nil, http.StatusOK},
		{"stop", "/api/stepping/stop", "stop", nil, http.StatusOK},
		{"step not connected", "/api/step", "step", fmt.Errorf("send step: %w", session.ErrNotConnected), http.StatusConflict},
		{"start not connected", "/api/stepping/start", "start", fmt.Errorf("start stepping: %w", session.ErrNotConnected), http.StatusConflict},
		{"stop transport error", "/api/stepping/stop", "stop", errors.New("broken pipe"), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockViewer()
			fail := func() error { return tt.err }
			mock.StepFunc, mock.StartSteppingFunc, mock.StopSteppingFunc = fail, fail, fail
			s := NewServer(mock, nil)

			rr := serve(s, "POST", tt.path)
			if rr.Code != tt.expected {
				t.Errorf("Expected status %d, got %d", tt.expected, rr.Code)
			}
			if len(mock.calls) != 1 || mock.calls[0] != tt.call {
				t.Errorf("Expected a single %s call, got %v", tt.call, mock.calls)
			}
			if tt.err != nil && !strings.Contains(decodeError(t, rr), tt.err.Error()) {
				t.Error("Expected error message in body")
			}
		})
	}
}

func TestCommandsRequirePost(t *testing.T) {
	mock := newMockViewer()
	s := NewServer(mock, nil)

	rr := serve(s, "GET", "/api/step")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rr.Code)
	}
	if len(mock.calls) != 0 {
		t.Error("GET must not send a command")
	}
}

func TestLog(t *testing.T) {
	mock := newMockViewer()
	for i := 0; i < 30; i++ {
		mock.panel.Appendf(session.LineReply, "Reply: %d", i)
	}
	s := NewServer(mock, nil)

	tests := []struct {
		query    string
		code     int
		expected int
	}{
		{"", http.StatusOK, defaultLogLimit},
		{"?limit=5", http.StatusOK, 5},
		{"?limit=100", http.StatusOK, 30},
		{"?limit=0", http.StatusBadRequest, 0},
		{"?limit=abc", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run("limit"+tt.query, func(t *testing.T) {
			rr := serve(s, "GET", "/api/log"+tt.query)
			if rr.Code != tt.code {
				t.Fatalf("Expected status %d, got %d", tt.code, rr.Code)
			}
			if tt.code != http.StatusOK {
				return
			}

			var resp struct {
				Lines []session.Line `json:"lines"`
				Total int            `json:"total"`
			}
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if len(resp.Lines) != tt.expected || resp.Total != 30 {
				t.Errorf("Expected %d of 30 lines, got %d of %d", tt.expected, len(resp.Lines), resp.Total)
			}
			if resp.Lines[len(resp.Lines)-1].Text != "Reply: 29" {
				t.Error("Expected the most recent line last")
			}
		})
	}
}

func TestFrame(t *testing.T) {
	mock := newMockViewer()
	s := NewServer(mock, nil)

	rr := serve(s, "GET", "/api/frame.png")
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Expected image/png, got %s", ct)
	}
	img, err := png.Decode(bytes.NewReader(rr.Body.Bytes()))
	if err != nil {
		t.Fatalf("Response is not a PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 32 {
		t.Errorf("Unexpected frame size %v", b)
	}
}

func TestFrameServesPresentedPixels(t *testing.T) {
	surface := render.NewImageSurface(64, 32)
	mock := newMockViewer()
	mock.surface = surface
	s := NewServer(mock, nil)

	tile := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for i := range tile.Pix {
		tile.Pix[i] = 0xff
	}

	alphaAt := func(t *testing.T, wantVersion string) uint32 {
		t.Helper()
		rr := serve(s, "GET", "/api/frame.png")
		if v := rr.Header().Get("X-Frame-Version"); v != wantVersion {
			t.Errorf("Expected frame version %s, got %s", wantVersion, v)
		}
		img, err := png.Decode(bytes.NewReader(rr.Body.Bytes()))
		if err != nil {
			t.Fatalf("Response is not a PNG: %v", err)
		}
		_, _, _, a := img.At(4, 4).RGBA()
		return a
	}

	surface.DrawSprite(tile, 0, 0)
	if a := alphaAt(t, "0"); a != 0 {
		t.Error("Frame exposed pixels drawn before Present")
	}

	surface.Present()
	surface.Clear()
	if a := alphaAt(t, "1"); a == 0 {
		t.Error("Frame lost the presented tile while the next frame was being drawn")
	}
}

func TestFrameUnsupportedSurface(t *testing.T) {
	mock := newMockViewer()
	mock.surface = nullSurface{}
	s := NewServer(mock, nil)

	rr := serve(s, "GET", "/api/frame.png")
	if rr.Code != http.StatusNotImplemented {
		t.Errorf("Expected 501, got %d", rr.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	s := NewServer(newMockViewer(), nil)
	if rr := serve(s, "GET", "/api/nope"); rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rr.Code)
	}
}
