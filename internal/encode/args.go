package encode

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"video-wrapper/internal/domain"
)

// buildProbeArgs builds ffprobe CLI args for JSON stream/format inspection.
func buildProbeArgs(videoPath string) []string {
	return []string{
		"-v", "error",
		"-print_format", "json",
		"-show_streams",
		"-show_format",
		videoPath,
	}
}

// roundFPS converts the probed frame rate to a usable integer rate.
func roundFPS(info ProbeInfo) int {
	if info.FPS > 0 {
		if fps := int(math.Round(info.FPS)); fps > 0 {
			return fps
		}
	}
	return 30
}

// buildConcatArgs builds the single ffmpeg invocation that emits the intro
// image held for its duration, the full source video, and the outro image,
// concatenated in that order into the staging file. Inputs are declared in
// presentation order; audio is mapped from the source video when present.
func buildConcatArgs(job domain.Job, info ProbeInfo, stagingPath string) []string {
	fps := roundFPS(info)
	gop := fps * 2
	if gop < 2 {
		gop = 2
	}

	args := []string{"-hide_banner", "-nostdin", "-y"}

	inputIdx := 0
	introIdx, outroIdx := -1, -1
	if job.HasIntro() {
		args = append(args,
			"-loop", "1",
			"-framerate", strconv.Itoa(fps),
			"-t", formatSeconds(job.IntroDuration),
			"-i", job.IntroImage,
		)
		introIdx = inputIdx
		inputIdx++
	}
	args = append(args, "-i", job.VideoPath)
	videoIdx := inputIdx
	inputIdx++
	if job.HasOutro() {
		args = append(args,
			"-loop", "1",
			"-framerate", strconv.Itoa(fps),
			"-t", formatSeconds(job.OutroDuration),
			"-i", job.OutroImage,
		)
		outroIdx = inputIdx
	}

	var filters []string
	var labels []string
	if introIdx >= 0 {
		filters = append(filters, fmt.Sprintf("[%d:v]scale=1920:1080:flags=lanczos,format=yuv420p[intro]", introIdx))
		labels = append(labels, "[intro]")
	}
	filters = append(filters, fmt.Sprintf("[%d:v]scale=1920:1080:flags=bicubic,format=yuv420p[main]", videoIdx))
	labels = append(labels, "[main]")
	if outroIdx >= 0 {
		filters = append(filters, fmt.Sprintf("[%d:v]scale=1920:1080:flags=lanczos,format=yuv420p[outro]", outroIdx))
		labels = append(labels, "[outro]")
	}

	filterComplex := strings.Join(filters, ";") + ";" +
		strings.Join(labels, "") + fmt.Sprintf("concat=n=%d:v=1:a=0[v]", len(labels))

	args = append(args,
		"-filter_complex", filterComplex,
		"-map", "[v]",
		"-map", fmt.Sprintf("%d:a?", videoIdx),
		"-r", strconv.Itoa(fps),
		"-colorspace", "bt709", "-color_primaries", "bt709", "-color_trc", "bt709",
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "19",
		"-profile:v", "high",
		"-level:v", "4.1",
		"-g", strconv.Itoa(gop),
		"-sc_threshold", "0",
	)

	if info.HasAudio {
		sampleRate := info.AudioSampleRate
		if sampleRate <= 0 {
			sampleRate = 48000
		}
		args = append(args,
			"-c:a", "aac",
			"-b:a", "192k",
			"-ar", strconv.Itoa(sampleRate),
			"-ac", "2",
		)
	}

	return append(args, "-movflags", "+faststart", stagingPath)
}

// formatSeconds renders durations with millisecond precision for -t flags.
func formatSeconds(seconds float64) string {
	return fmt.Sprintf("%.3f", seconds)
}
