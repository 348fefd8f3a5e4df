// Package playlist builds and atomically writes the HLS master playlist
// documents for an active stream's codec policy, and cleans them up again
// once a stream ends.
package playlist

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"classroom-stream/origin/internal/domain"
)

// cleanupSuffixes are the file kinds a stream's output can contain; only
// files carrying one of these are candidates for prefix-match cleanup.
var cleanupSuffixes = []string{".m3u8", ".ts", ".m4s"}

// Writer builds master playlist documents directly under a single flat
// output directory. Every file written is named "<streamKey>_<rest>" so the
// static file server and cleanup can both operate by filename prefix alone,
// with no per-stream subdirectory.
type Writer struct {
	outDir string
}

func NewWriter(outDir string) *Writer {
	return &Writer{outDir: outDir}
}

// OutDir returns the flat directory all stream output is written under.
func (w *Writer) OutDir() string {
	return w.outDir
}

// MasterName returns the well-known filename for a stream's per-codec
// master playlist: "<key>_<codec>.m3u8".
func MasterName(key domain.StreamKey, codec domain.Codec) string {
	return fmt.Sprintf("%s_%s.m3u8", key, codec)
}

// VariantName returns the well-known filename for one rendition's variant
// playlist: "<key>_<playlistID>.m3u8", where playlistID already encodes the
// codec and rendition name (e.g. "h264_low").
func VariantName(key domain.StreamKey, playlistID string) string {
	return fmt.Sprintf("%s_%s.m3u8", key, playlistID)
}

// WriteMaster builds one master playlist per codec present in policy and
// writes them atomically (write-to-temp then rename) into the flat output
// directory. Returns the filenames written, keyed by codec.
func (w *Writer) WriteMaster(key domain.StreamKey, policy domain.CodecPolicy) (map[domain.Codec]string, error) {
	if err := os.MkdirAll(w.outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create streams dir: %w", err)
	}

	byCodec := map[domain.Codec][]domain.Rendition{}
	for _, r := range policy.Renditions {
		byCodec[r.Codec] = append(byCodec[r.Codec], r)
	}

	out := map[domain.Codec]string{}
	for codec, renditions := range byCodec {
		sort.Slice(renditions, func(i, j int) bool {
			return renditions[i].Bandwidth < renditions[j].Bandwidth
		})
		doc := buildMasterDocument(key, renditions)
		name := MasterName(key, codec)
		if err := atomicWrite(filepath.Join(w.outDir, name), doc); err != nil {
			return nil, fmt.Errorf("write master playlist for codec %s: %w", codec, err)
		}
		out[codec] = name
	}
	return out, nil
}

func buildMasterDocument(key domain.StreamKey, renditions []domain.Rendition) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n#EXT-X-VERSION:3\n")
	for _, r := range renditions {
		bandwidth := r.Bandwidth + r.AudioBitrateKbps*1000
		fmt.Fprintf(&b, "#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%dx%d\n", bandwidth, r.Width, r.Height)
		fmt.Fprintf(&b, "%s\n", VariantName(key, r.PlaylistID))
	}
	return b.String()
}

// atomicWrite writes data to a temp file in the same directory as path, then
// renames it into place so readers never observe a partial document.
func atomicWrite(path, data string) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(data), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// RemoveStreamFiles deletes every file in the flat output directory whose
// name begins with "<key>_" and carries a recognized playlist/segment
// suffix, matching the static file server's layout. Best-effort: a failure
// removing one file is logged and does not stop the rest from being tried.
func (w *Writer) RemoveStreamFiles(key domain.StreamKey) error {
	entries, err := os.ReadDir(w.outDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read streams dir: %w", err)
	}

	prefix := string(key) + "_"
	var firstErr error
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, prefix) || !hasCleanupSuffix(name) {
			continue
		}
		if err := os.Remove(filepath.Join(w.outDir, name)); err != nil {
			slog.Warn("cleanup: remove file failed", "stream_key", key, "file", name, "err", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func hasCleanupSuffix(name string) bool {
	for _, suffix := range cleanupSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}
