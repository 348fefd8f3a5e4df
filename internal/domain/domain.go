// Package domain holds the data model shared across the orchestrator, room
// hub, transport and playlist packages.
package domain

import "time"

// StreamKey identifies a single RTMP publish slot.
type StreamKey string

// StreamState is the lifecycle state of an ActiveStream.
type StreamState int

const (
	StreamStarting StreamState = iota
	StreamLive
	StreamStopping
	StreamFailed
)

func (s StreamState) String() string {
	switch s {
	case StreamStarting:
		return "starting"
	case StreamLive:
		return "live"
	case StreamStopping:
		return "stopping"
	case StreamFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Codec identifies one of the (at most two) encodes a stream may carry.
type Codec string

const (
	CodecH264 Codec = "h264"
	CodecAV1  Codec = "av1"
)

// Rendition is one bitrate/resolution ladder rung for a given codec.
type Rendition struct {
	Name             string `json:"name"`
	Codec            Codec  `json:"codec"`
	Bandwidth        int    `json:"bandwidth"`
	Width            int    `json:"width"`
	Height           int    `json:"height"`
	AudioBitrateKbps int    `json:"audio_bitrate_kbps"`
	PlaylistID       string `json:"playlist_id"`
}

// CodecPolicy is read from the Room at postPublish time (default if no room
// exists yet) and then snapshotted for the stream's lifetime; the room may
// keep evolving its own copy afterward, but that no longer affects the
// in-progress transcode.
type CodecPolicy struct {
	Primary               Codec       `json:"primary"`
	Secondary             Codec       `json:"secondary,omitempty"`
	SecondaryCodecEnabled bool        `json:"secondary_codec_enabled"`
	Renditions            []Rendition `json:"renditions,omitempty"`
}

// HasSecondary reports whether a second codec ladder is enabled.
func (p CodecPolicy) HasSecondary() bool {
	return p.Secondary != ""
}

// ActiveStream is the single authoritative record for one in-progress
// publish. Access is serialized per StreamKey by the orchestrator.
type ActiveStream struct {
	Key         StreamKey
	State       StreamState
	Policy      CodecPolicy
	StartedAt   time.Time
	LastError   string
	RecordPath  string
}

// IngestEvent normalizes whatever shape the RTMP layer hands us into one
// record the orchestrator's mailbox consumes.
type IngestEventKind int

const (
	IngestPrePublish IngestEventKind = iota
	IngestPostPublish
	IngestDonePublish
)

type IngestEvent struct {
	Kind StreamKey
	Type IngestEventKind
}

// Role is a Room participant's authorization level.
type Role string

const (
	RoleInstructor Role = "instructor"
	RoleStudent    Role = "student"
)

// Participant is one connected room member.
type Participant struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Role     Role   `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// ChatMessage is one retained chat line.
type ChatMessage struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	FromName  string    `json:"from_name"`
	Body      string    `json:"body"`
	SentAt    time.Time `json:"sent_at"`
}

// PollOption is one vote target within a Poll.
type PollOption struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Votes int    `json:"votes"`
}

// Poll is a single open-or-closed question with mutually exclusive options.
type Poll struct {
	ID               string            `json:"id"`
	Question         string            `json:"question"`
	Options          []PollOption      `json:"options"`
	Open             bool              `json:"open"`
	CreatedBy        string            `json:"created_by"`
	CreatedAt        time.Time         `json:"created_at"`
	AutoCloseSeconds int               `json:"auto_close_seconds,omitempty"`
	Ballots          map[string]string `json:"-"` // participant ID -> option ID, vote identity
}

// HandRaise is one queued request to speak, ordered FIFO.
type HandRaise struct {
	ParticipantID string    `json:"participant_id"`
	RaisedAt      time.Time `json:"raised_at"`
}

// RecordingEntry indexes a completed archival recording already written to
// disk by the transcoder supervisor's pass-through output.
type RecordingEntry struct {
	StreamKey  StreamKey `json:"stream_key"`
	Path       string    `json:"path"`
	StartedAt  time.Time `json:"started_at"`
	StoppedAt  time.Time `json:"stopped_at"`
	SizeBytes  int64     `json:"size_bytes"`
}
