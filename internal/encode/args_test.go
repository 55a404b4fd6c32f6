package encode

import (
	"strings"
	"testing"

	"video-wrapper/internal/domain"
)

func argsJob(t *testing.T, introDur, outroDur float64) domain.Job {
	t.Helper()
	spec := domain.JobSpec{
		VideoPath:  "/media/in.mp4",
		OutputPath: "/media/out/in_with_images.mp4",
	}
	if introDur > 0 {
		spec.IntroImage = "/media/start.png"
		spec.IntroDuration = introDur
	}
	if outroDur > 0 {
		spec.OutroImage = "/media/end.png"
		spec.OutroDuration = outroDur
	}
	job, err := domain.NewJob(spec)
	if err != nil {
		t.Fatalf("NewJob() error = %v", err)
	}
	return job
}

func TestBuildConcatArgsFullSandwich(t *testing.T) {
	job := argsJob(t, 2, 3)
	info := ProbeInfo{FPS: 25, HasAudio: true, AudioSampleRate: 44100}

	args := buildConcatArgs(job, info, "/tmp/work/staging.mp4")

	// Inputs must be declared in presentation order: intro, video, outro.
	var inputs []string
	for i := 0; i < len(args)-1; i++ {
		if args[i] == "-i" {
			inputs = append(inputs, args[i+1])
		}
	}
	want := []string{"/media/start.png", "/media/in.mp4", "/media/end.png"}
	if len(inputs) != len(want) {
		t.Fatalf("inputs = %v, want %v", inputs, want)
	}
	for i := range want {
		if inputs[i] != want[i] {
			t.Fatalf("input[%d] = %q, want %q", i, inputs[i], want[i])
		}
	}

	filter := argValue(args, "-filter_complex")
	if !strings.Contains(filter, "[intro][main][outro]concat=n=3:v=1:a=0[v]") {
		t.Fatalf("filter = %q, want three-way concat", filter)
	}
	if !strings.Contains(filter, "[0:v]scale=1920:1080:flags=lanczos") {
		t.Fatalf("filter = %q, want lanczos intro scale", filter)
	}
	if !strings.Contains(filter, "[1:v]scale=1920:1080:flags=bicubic") {
		t.Fatalf("filter = %q, want bicubic video scale", filter)
	}

	// Still durations ride on per-input -t flags with ms precision.
	introT := false
	for i := 0; i < len(args)-1; i++ {
		if args[i] == "-t" && args[i+1] == "2.000" {
			introT = true
		}
	}
	if !introT {
		t.Fatalf("args = %v, want -t 2.000 for intro", args)
	}

	if got := argValue(args, "-map"); got != "[v]" {
		t.Fatalf("first -map = %q, want [v]", got)
	}
	mapAudio := false
	for i := 0; i < len(args)-1; i++ {
		if args[i] == "-map" && args[i+1] == "1:a?" {
			mapAudio = true
		}
	}
	if !mapAudio {
		t.Fatal("audio must map from the source video input with ?")
	}

	if got := argValue(args, "-g"); got != "50" {
		t.Fatalf("-g = %q, want fps*2 = 50", got)
	}
	if got := argValue(args, "-c:a"); got != "aac" {
		t.Fatalf("-c:a = %q, want aac", got)
	}
	if args[len(args)-1] != "/tmp/work/staging.mp4" {
		t.Fatalf("last arg = %q, want staging path", args[len(args)-1])
	}
	if args[len(args)-2] != "+faststart" {
		t.Fatalf("want -movflags +faststart before output, got %q", args[len(args)-2])
	}
}

func TestBuildConcatArgsOutroOnly(t *testing.T) {
	job := argsJob(t, 0, 4)
	args := buildConcatArgs(job, ProbeInfo{FPS: 30}, "/tmp/s.mp4")

	filter := argValue(args, "-filter_complex")
	if !strings.Contains(filter, "[main][outro]concat=n=2:v=1:a=0[v]") {
		t.Fatalf("filter = %q, want two-way concat", filter)
	}
	// Video is the first declared input without an intro.
	if !strings.Contains(filter, "[0:v]scale=1920:1080:flags=bicubic") {
		t.Fatalf("filter = %q, want video at input 0", filter)
	}
	mapAudio := false
	for i := 0; i < len(args)-1; i++ {
		if args[i] == "-map" && args[i+1] == "0:a?" {
			mapAudio = true
		}
	}
	if !mapAudio {
		t.Fatal("audio map must track the shifted video input index")
	}
	if hasArg(args, "-c:a") {
		t.Fatal("silent source must not get an audio encoder")
	}
}

func TestRoundFPS(t *testing.T) {
	cases := []struct {
		fps  float64
		want int
	}{
		{0, 30},
		{-1, 30},
		{23.976, 24},
		{29.97, 30},
		{60, 60},
	}
	for _, tc := range cases {
		if got := roundFPS(ProbeInfo{FPS: tc.fps}); got != tc.want {
			t.Errorf("roundFPS(%v) = %d, want %d", tc.fps, got, tc.want)
		}
	}
}

func TestBuildProbeArgs(t *testing.T) {
	args := buildProbeArgs("/media/in.mp4")
	if args[len(args)-1] != "/media/in.mp4" {
		t.Fatalf("last arg = %q, want video path", args[len(args)-1])
	}
	if !hasArg(args, "-show_streams") || !hasArg(args, "-show_format") {
		t.Fatalf("args = %v, want stream and format inspection", args)
	}
	if argValue(args, "-print_format") != "json" {
		t.Fatal("probe output must be JSON")
	}
}
