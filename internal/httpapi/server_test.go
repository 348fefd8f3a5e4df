package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"classroom-stream/origin/internal/cleanup"
	"classroom-stream/origin/internal/domain"
	"classroom-stream/origin/internal/orchestrator"
	"classroom-stream/origin/internal/playlist"
	"classroom-stream/origin/internal/room"
	"classroom-stream/origin/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	rooms := room.NewRegistry()
	orch := orchestrator.New(
		playlist.NewWriter(t.TempDir()),
		rooms,
		cleanup.NewScheduler(time.Second),
		orchestrator.Options{
			FFmpegPath:    "true",
			RecordingsDir: t.TempDir(),
			StopBudget:    time.Second,
		},
		nil,
	)
	return New(orch, rooms, st, 30*time.Second)
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestStreamsEndpointReturnsEmptyList(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/streams", nil)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if body != "null\n" && body != "[]\n" {
		t.Fatalf("expected an empty JSON array body, got %q", body)
	}
}

func TestRoomEndpointNotFoundForUnknownKey(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/rooms/does-not-exist", nil)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestRoomEndpointReturnsParticipants(t *testing.T) {
	s := newTestServer(t)
	hub := s.rooms.GetOrCreate(domain.StreamKey("key1"), domain.CodecPolicy{Primary: domain.CodecH264})
	if _, _, err := hub.Join("Ada", domain.RoleInstructor); err != nil {
		t.Fatalf("Join: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/rooms/key1", nil)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"name":"Ada"`) {
		t.Fatalf("expected the joined participant in the body, got %q", rec.Body.String())
	}
}

func TestRecordingsEndpointReturnsInserted(t *testing.T) {
	s := newTestServer(t)
	if err := s.store.InsertRecording(context.Background(), domain.RecordingEntry{
		StreamKey: "key1",
		Path:      "/data/recordings/key1.ts",
	}); err != nil {
		t.Fatalf("InsertRecording: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/recordings", nil)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"path":"/data/recordings/key1.ts"`) {
		t.Fatalf("expected the inserted recording in the body, got %q", rec.Body.String())
	}
}

func TestRecordingsEndpointUnavailableWithoutStore(t *testing.T) {
	rooms := room.NewRegistry()
	orch := orchestrator.New(
		playlist.NewWriter(t.TempDir()),
		rooms,
		cleanup.NewScheduler(time.Second),
		orchestrator.Options{
			FFmpegPath:    "true",
			RecordingsDir: t.TempDir(),
			StopBudget:    time.Second,
		},
		nil,
	)
	s := New(orch, rooms, nil, 30*time.Second)

	req := httptest.NewRequest(http.MethodGet, "/api/recordings", nil)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}
