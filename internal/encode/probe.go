package encode

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ProbeInfo describes the source video parameters that shape the encode.
type ProbeInfo struct {
	FPS             float64
	Width           int
	Height          int
	HasAudio        bool
	AudioSampleRate int
	AudioChannels   int
	Duration        float64
}

// defaultProbeInfo returns safe parameters used when probing fails.
func defaultProbeInfo() ProbeInfo {
	return ProbeInfo{
		FPS:             30,
		AudioSampleRate: 48000,
		AudioChannels:   2,
	}
}

// probeStream is the subset of ffprobe stream JSON this app reads.
type probeStream struct {
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	AvgFrameRate string `json:"avg_frame_rate"`
	RFrameRate   string `json:"r_frame_rate"`
	SampleRate   string `json:"sample_rate"`
	Channels     int    `json:"channels"`
}

// probeOutput mirrors ffprobe -print_format json top-level structure.
type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// parseProbeOutput extracts encode parameters from ffprobe JSON. Missing
// or malformed fields fall back to defaults; probing is advisory only.
func parseProbeOutput(data []byte) ProbeInfo {
	info := defaultProbeInfo()

	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return info
	}

	sawVideo := false
	for _, stream := range out.Streams {
		switch stream.CodecType {
		case "video":
			if sawVideo {
				continue
			}
			sawVideo = true
			if fps := parseFraction(stream.AvgFrameRate); fps > 0 {
				info.FPS = fps
			} else if fps := parseFraction(stream.RFrameRate); fps > 0 {
				info.FPS = fps
			}
			info.Width = stream.Width
			info.Height = stream.Height
		case "audio":
			if info.HasAudio {
				continue
			}
			info.HasAudio = true
			if rate, err := strconv.Atoi(stream.SampleRate); err == nil && rate > 0 {
				info.AudioSampleRate = rate
			}
			if stream.Channels > 0 {
				info.AudioChannels = stream.Channels
			}
		}
	}

	if dur, err := strconv.ParseFloat(out.Format.Duration, 64); err == nil && dur > 0 {
		info.Duration = dur
	}
	return info
}

// parseFraction converts ffprobe "num/den" rate strings to a float.
func parseFraction(raw string) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	if !strings.Contains(raw, "/") {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0
		}
		return v
	}

	parts := strings.SplitN(raw, "/", 2)
	num, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0
	}
	den, err := strconv.ParseFloat(parts[1], 64)
	if err != nil || den == 0 {
		return 0
	}
	return num / den
}
