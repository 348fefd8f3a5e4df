// Package orchestrator implements the Stream Lifecycle Orchestrator: the
// ActiveStream table and the state machine that reacts to RTMP ingest
// events by starting/stopping the transcoder, writing playlists, and
// scheduling room cleanup.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"classroom-stream/origin/internal/cleanup"
	"classroom-stream/origin/internal/coreerr"
	"classroom-stream/origin/internal/domain"
	"classroom-stream/origin/internal/playlist"
	"classroom-stream/origin/internal/room"
	"classroom-stream/origin/internal/transcoder"
)

// Options bundles the orchestrator's process-wide, config-derived settings:
// the ffmpeg invocation, the codec/rendition ladder, and the encoder knobs
// from config.Config. The per-stream codec policy is built at postPublish
// time from Renditions filtered by the room's own secondary-codec toggle.
type Options struct {
	FFmpegPath    string
	RecordingsDir string
	StopBudget    time.Duration

	Renditions             []domain.Rendition
	HardwareAcceleration   bool
	SegmentDurationSeconds int
	PlaylistWindowSize     int
}

// mailbox serializes every ingest event for one stream key through a single
// goroutine, so prePublish/postPublish/donePublish for that key are
// strictly ordered even though different keys proceed concurrently.
type mailbox struct {
	events chan domain.IngestEvent
	done   chan struct{}
}

// Orchestrator owns the ActiveStream table and per-key mailboxes.
type Orchestrator struct {
	mu      sync.Mutex
	streams map[domain.StreamKey]*domain.ActiveStream
	super   map[domain.StreamKey]*transcoder.Supervisor
	boxes   map[domain.StreamKey]*mailbox

	playlists  *playlist.Writer
	rooms      *room.Registry
	cleanupSch *cleanup.Scheduler

	ffmpegPath    string
	recordingsDir string
	stopBudget    time.Duration

	renditions             []domain.Rendition
	hardwareAcceleration   bool
	segmentDurationSeconds int
	playlistWindowSize     int

	onRecordingComplete func(domain.RecordingEntry)
}

func New(
	playlists *playlist.Writer,
	rooms *room.Registry,
	cleanupSch *cleanup.Scheduler,
	opts Options,
	onRecordingComplete func(domain.RecordingEntry),
) *Orchestrator {
	return &Orchestrator{
		streams:                make(map[domain.StreamKey]*domain.ActiveStream),
		super:                  make(map[domain.StreamKey]*transcoder.Supervisor),
		boxes:                  make(map[domain.StreamKey]*mailbox),
		playlists:              playlists,
		rooms:                  rooms,
		cleanupSch:             cleanupSch,
		ffmpegPath:             opts.FFmpegPath,
		recordingsDir:          opts.RecordingsDir,
		stopBudget:             opts.StopBudget,
		renditions:             opts.Renditions,
		hardwareAcceleration:   opts.HardwareAcceleration,
		segmentDurationSeconds: opts.SegmentDurationSeconds,
		playlistWindowSize:     opts.PlaylistWindowSize,
		onRecordingComplete:    onRecordingComplete,
	}
}

// Dispatch normalizes and enqueues one RTMP ingest event onto the mailbox
// for its stream key, creating the mailbox if this is the first event seen
// for that key.
func (o *Orchestrator) Dispatch(ctx context.Context, evt domain.IngestEvent) {
	key := evt.Kind
	o.mu.Lock()
	box, ok := o.boxes[key]
	if !ok {
		box = &mailbox{events: make(chan domain.IngestEvent, 8), done: make(chan struct{})}
		o.boxes[key] = box
		go o.run(ctx, key, box)
	}
	o.mu.Unlock()

	select {
	case box.events <- evt:
	case <-box.done:
		slog.Warn("ingest event dropped, mailbox closed", "stream_key", key)
	}
}

// run is the single goroutine that processes every event for one stream
// key in order, guaranteeing single-writer access to that key's
// ActiveStream record.
func (o *Orchestrator) run(ctx context.Context, key domain.StreamKey, box *mailbox) {
	for evt := range box.events {
		o.handle(ctx, key, evt)
	}
}

func (o *Orchestrator) handle(ctx context.Context, key domain.StreamKey, evt domain.IngestEvent) {
	switch evt.Type {
	case domain.IngestPrePublish:
		o.handlePrePublish(key)
	case domain.IngestPostPublish:
		o.handlePostPublish(ctx, key)
	case domain.IngestDonePublish:
		o.handleDonePublish(key)
	}
}

func (o *Orchestrator) handlePrePublish(key domain.StreamKey) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, exists := o.streams[key]; exists {
		slog.Warn("pre-publish for already-active stream key, first publisher wins", "stream_key", key)
		return
	}
	o.cleanupSch.Cancel(key)
	o.streams[key] = &domain.ActiveStream{Key: key, State: domain.StreamStarting, StartedAt: time.Now()}
	slog.Info("stream starting", "stream_key", key)
}

func (o *Orchestrator) handlePostPublish(ctx context.Context, key domain.StreamKey) {
	o.mu.Lock()
	stream, ok := o.streams[key]
	if !ok {
		o.mu.Unlock()
		slog.Warn("post-publish with no matching pre-publish, ignoring", "stream_key", key)
		return
	}
	o.mu.Unlock()

	// Read the room's CodecPolicy (default if no room exists yet): this is
	// the one contract coupling the Room Hub to the transcoder it feeds.
	hub := o.rooms.GetOrCreate(key, domain.CodecPolicy{Primary: domain.CodecH264})
	policy := o.buildStreamPolicy(hub.Policy())

	o.mu.Lock()
	stream.Policy = policy
	stream.State = domain.StreamLive
	o.mu.Unlock()

	if _, err := o.playlists.WriteMaster(key, policy); err != nil {
		o.fail(key, coreerr.NewTransient("write master playlist", err))
		return
	}

	sup := transcoder.NewSupervisor(key, o.ffmpegPath, o.stopBudget)
	recordingPath := fmt.Sprintf("%s/%s.ts", o.recordingsDir, key)
	startedAt := time.Now()

	o.mu.Lock()
	o.super[key] = sup
	stream.RecordPath = recordingPath
	o.mu.Unlock()

	if err := sup.Start(ctx, transcoder.Args{
		InputURL:               fmt.Sprintf("rtmp://localhost/live/%s", key),
		StreamKey:              key,
		HLSDir:                 o.playlists.OutDir(),
		RecordingPath:          recordingPath,
		Policy:                 policy,
		HardwareAcceleration:   o.hardwareAcceleration,
		SegmentDurationSeconds: o.segmentDurationSeconds,
		PlaylistWindowSize:     o.playlistWindowSize,
	}); err != nil {
		o.fail(key, coreerr.NewTransient("start transcoder", err))
		return
	}

	slog.Info("stream live", "stream_key", key, "secondary_codec_enabled", policy.SecondaryCodecEnabled)

	go o.watchExit(key, sup, startedAt, recordingPath)
}

// buildStreamPolicy combines the process-wide rendition ladder with the
// room's secondary-codec toggle: the primary codec's renditions are always
// included, the secondary codec's only once the room has enabled it.
func (o *Orchestrator) buildStreamPolicy(roomPolicy domain.CodecPolicy) domain.CodecPolicy {
	policy := domain.CodecPolicy{
		Primary:               domain.CodecH264,
		SecondaryCodecEnabled: roomPolicy.SecondaryCodecEnabled,
	}
	active := map[domain.Codec]bool{policy.Primary: true}
	if policy.SecondaryCodecEnabled {
		policy.Secondary = domain.CodecAV1
		active[policy.Secondary] = true
	}
	for _, r := range o.renditions {
		if active[r.Codec] {
			policy.Renditions = append(policy.Renditions, r)
		}
	}
	return policy
}

func (o *Orchestrator) watchExit(key domain.StreamKey, sup *transcoder.Supervisor, startedAt time.Time, recordingPath string) {
	<-sup.Exited()
	if err := sup.ExitErr(); err != nil {
		o.fail(key, coreerr.NewTransient("transcoder process exited unexpectedly", err))
		return
	}
	o.finishRecording(key, startedAt, recordingPath)
}

func (o *Orchestrator) handleDonePublish(key domain.StreamKey) {
	o.mu.Lock()
	stream, ok := o.streams[key]
	sup := o.super[key]
	if !ok {
		o.mu.Unlock()
		slog.Debug("done-publish for unknown stream key", "stream_key", key)
		return
	}
	stream.State = domain.StreamStopping
	startedAt := stream.StartedAt
	recordingPath := stream.RecordPath
	o.mu.Unlock()

	if sup != nil {
		sup.Stop()
	}
	o.finishRecording(key, startedAt, recordingPath)

	o.mu.Lock()
	delete(o.streams, key)
	delete(o.super, key)
	box := o.boxes[key]
	delete(o.boxes, key)
	o.mu.Unlock()
	if box != nil {
		close(box.done)
		close(box.events)
	}

	o.cleanupSch.Schedule(key, func() {
		if err := o.playlists.RemoveStreamFiles(key); err != nil {
			slog.Warn("cleanup: remove stream files failed", "stream_key", key, "err", err)
		}
		o.rooms.Destroy(key)
	})
	slog.Info("stream stopped, cleanup scheduled", "stream_key", key)
}

func (o *Orchestrator) finishRecording(key domain.StreamKey, startedAt time.Time, path string) {
	if o.onRecordingComplete == nil || path == "" {
		return
	}
	o.onRecordingComplete(domain.RecordingEntry{
		StreamKey: key,
		Path:      path,
		StartedAt: startedAt,
		StoppedAt: time.Now(),
	})
}

func (o *Orchestrator) fail(key domain.StreamKey, err error) {
	o.mu.Lock()
	if stream, ok := o.streams[key]; ok {
		stream.State = domain.StreamFailed
		stream.LastError = err.Error()
	}
	o.mu.Unlock()
	slog.Error("stream failed", "stream_key", key, "err", err)
}

// Snapshot returns a point-in-time copy of the ActiveStream table, for the
// status endpoint.
func (o *Orchestrator) Snapshot() []domain.ActiveStream {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]domain.ActiveStream, 0, len(o.streams))
	for _, s := range o.streams {
		out = append(out, *s)
	}
	return out
}

// Get returns one stream's current record, if active.
func (o *Orchestrator) Get(key domain.StreamKey) (domain.ActiveStream, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.streams[key]
	if !ok {
		return domain.ActiveStream{}, false
	}
	return *s, true
}
