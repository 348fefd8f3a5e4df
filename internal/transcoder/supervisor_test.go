package transcoder

import (
	"context"
	"testing"
	"time"

	"classroom-stream/origin/internal/domain"
)

func TestStateString(t *testing.T) {
	cases := map[State]string{Idle: "idle", Running: "running", Stopping: "stopping", Exited: "exited"}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}

func TestBuildArgvIncludesRenditionsAndRecording(t *testing.T) {
	args := Args{
		InputURL:      "rtmp://localhost/live/key1",
		StreamKey:     "key1",
		HLSDir:        "/data/hls",
		RecordingPath: "/data/recordings/key1.ts",
		Policy: domain.CodecPolicy{
			Renditions: []domain.Rendition{
				{Codec: domain.CodecH264, Bandwidth: 800_000, Width: 640, Height: 360, AudioBitrateKbps: 96, PlaylistID: "low"},
			},
		},
	}
	argv := buildArgv(args, false)

	joined := argvContains(argv, "-i") && argvContains(argv, args.InputURL)
	if !joined {
		t.Fatalf("expected input URL to be present: %v", argv)
	}
	if !argvContains(argv, "libx264") {
		t.Fatalf("expected h264 codec in argv: %v", argv)
	}
	if !argvContains(argv, args.RecordingPath) {
		t.Fatalf("expected recording path in argv: %v", argv)
	}
	if !argvContains(argv, "-maxrate") || !argvContains(argv, "-bufsize") {
		t.Fatalf("expected video bitrate constraints in argv: %v", argv)
	}
	if !argvContains(argv, "-b:a") || !argvContains(argv, "96k") {
		t.Fatalf("expected audio bitrate in argv: %v", argv)
	}
	if !argvContains(argv, "/data/hls/key1_low.m3u8") {
		t.Fatalf("expected a flat key-prefixed variant playlist path in argv: %v", argv)
	}
}

func TestBuildArgvSelectsHardwareEncoderWhenRequested(t *testing.T) {
	args := Args{
		InputURL: "rtmp://localhost/live/key1",
		Policy: domain.CodecPolicy{
			Renditions: []domain.Rendition{
				{Codec: domain.CodecAV1, Bandwidth: 600_000, Width: 640, Height: 360, PlaylistID: "low"},
			},
		},
	}
	argv := buildArgv(args, true)
	if !argvContains(argv, "av1_nvenc") {
		t.Fatalf("expected hardware av1 encoder in argv: %v", argv)
	}
}

func argvContains(argv []string, want string) bool {
	for _, a := range argv {
		if a == want {
			return true
		}
	}
	return false
}

func TestStopBeforeStartIsNoop(t *testing.T) {
	sup := NewSupervisor("key1", "ffmpeg", time.Second)
	sup.Stop() // must not panic or hang
	if sup.State() != Idle {
		t.Fatalf("State() = %s, want idle", sup.State())
	}
}

func TestStartThenExitTransitionsState(t *testing.T) {
	// "sleep" is used as a stand-in binary: it exits immediately on the
	// supervisor's fixed ffmpeg-style flags, which is enough to exercise the
	// start -> running -> exited transition without a real ffmpeg build.
	sup := NewSupervisor("key1", "sleep", 2*time.Second)
	if err := sup.Start(context.Background(), Args{InputURL: "0"}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if sup.State() != Running && sup.State() != Exited {
		t.Fatalf("State() after Start = %s, want running or exited", sup.State())
	}

	select {
	case <-sup.Exited():
	case <-time.After(2 * time.Second):
		t.Fatal("expected process to exit within timeout")
	}
	if sup.State() != Exited {
		t.Fatalf("State() after exit = %s, want exited", sup.State())
	}

	sup.Stop() // must remain a safe no-op after exit
}

func TestStartTwiceReturnsError(t *testing.T) {
	sup := NewSupervisor("key1", "sleep", 2*time.Second)
	if err := sup.Start(context.Background(), Args{InputURL: "0"}); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	<-sup.Exited()
	if err := sup.Start(context.Background(), Args{InputURL: "0"}); err == nil {
		t.Fatal("expected second Start to fail once the supervisor has exited")
	}
}
