package playlist

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"classroom-stream/origin/internal/domain"
)

func testPolicy() domain.CodecPolicy {
	return domain.CodecPolicy{
		Primary: domain.CodecH264,
		Renditions: []domain.Rendition{
			{Name: "low", Codec: domain.CodecH264, Bandwidth: 800_000, Width: 640, Height: 360, AudioBitrateKbps: 96, PlaylistID: "h264_low"},
			{Name: "high", Codec: domain.CodecH264, Bandwidth: 4_000_000, Width: 1920, Height: 1080, AudioBitrateKbps: 160, PlaylistID: "h264_high"},
		},
	}
}

func TestWriteMasterProducesValidDocument(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	out, err := w.WriteMaster("streamA", testPolicy())
	if err != nil {
		t.Fatalf("WriteMaster: %v", err)
	}
	name, ok := out[domain.CodecH264]
	if !ok {
		t.Fatal("expected an h264 master playlist to be written")
	}
	if name != "streamA_h264.m3u8" {
		t.Fatalf("expected flat key-prefixed master filename, got %q", name)
	}

	data, err := os.ReadFile(filepath.Join(w.OutDir(), name))
	if err != nil {
		t.Fatalf("read master playlist: %v", err)
	}
	doc := string(data)
	if !strings.HasPrefix(doc, "#EXTM3U") {
		t.Fatalf("expected document to start with #EXTM3U, got: %s", doc)
	}
	if !strings.Contains(doc, "BANDWIDTH=896000") || !strings.Contains(doc, "BANDWIDTH=4160000") {
		t.Fatalf("expected both renditions' video+audio bandwidth in document: %s", doc)
	}
	if !strings.Contains(doc, "streamA_h264_low.m3u8") || !strings.Contains(doc, "streamA_h264_high.m3u8") {
		t.Fatalf("expected both key-prefixed variant references in document: %s", doc)
	}
}

func TestWriteMasterOrdersByBandwidth(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	out, err := w.WriteMaster("streamA", testPolicy())
	if err != nil {
		t.Fatalf("WriteMaster: %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(w.OutDir(), out[domain.CodecH264]))
	lowIdx := strings.Index(string(data), "h264_low")
	highIdx := strings.Index(string(data), "h264_high")
	if lowIdx == -1 || highIdx == -1 || lowIdx > highIdx {
		t.Fatalf("expected lower-bandwidth rendition to appear first in document: %s", data)
	}
}

func TestRemoveStreamFilesDeletesOnlyMatchingPrefix(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	if _, err := w.WriteMaster("streamA", testPolicy()); err != nil {
		t.Fatalf("WriteMaster: %v", err)
	}
	if _, err := w.WriteMaster("streamB", testPolicy()); err != nil {
		t.Fatalf("WriteMaster: %v", err)
	}
	// A stray segment file a transcoder would have written alongside the
	// master playlist, which cleanup should also sweep up.
	if err := os.WriteFile(filepath.Join(dir, "streamA_h264_low_001.ts"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write stray segment: %v", err)
	}

	if err := w.RemoveStreamFiles("streamA"); err != nil {
		t.Fatalf("RemoveStreamFiles: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "streamA_") {
			t.Fatalf("expected streamA's files to be removed, found %q", e.Name())
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "streamB_h264.m3u8")); err != nil {
		t.Fatalf("expected streamB's files to survive streamA's cleanup: %v", err)
	}
}
