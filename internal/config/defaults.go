package config

import (
	"os"
	"path/filepath"
	"strings"

	"video-wrapper/internal/domain"
)

// DefaultStillDuration is how long intro and outro images are held when
// the user has not picked a duration. Matches the batch-mode fixed hold.
const DefaultStillDuration = 3.0

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return domain.Settings{
		OutputDir:       filepath.Join(homeDir, "Movies", "Wrapped"),
		IntroDuration:   DefaultStillDuration,
		OutroDuration:   DefaultStillDuration,
		SameImageForAll: true,
		MatchPolicy:     domain.MatchPolicyShared,
		IntroFileName:   "intro.png",
		OutroFileName:   "outro.png",
	}
}

// Normalize trims user inputs and backfills unusable values with defaults.
func Normalize(settings domain.Settings) domain.Settings {
	defaults := DefaultSettings()

	settings.OutputDir = strings.TrimSpace(settings.OutputDir)
	settings.IntroFileName = strings.TrimSpace(settings.IntroFileName)
	settings.OutroFileName = strings.TrimSpace(settings.OutroFileName)

	if settings.OutputDir == "" {
		settings.OutputDir = defaults.OutputDir
	}
	if settings.IntroDuration <= 0 {
		settings.IntroDuration = defaults.IntroDuration
	}
	if settings.OutroDuration <= 0 {
		settings.OutroDuration = defaults.OutroDuration
	}
	switch settings.MatchPolicy {
	case domain.MatchPolicyShared, domain.MatchPolicyFixed, domain.MatchPolicyStem:
	default:
		settings.MatchPolicy = defaults.MatchPolicy
	}
	if settings.IntroFileName == "" {
		settings.IntroFileName = defaults.IntroFileName
	}
	if settings.OutroFileName == "" {
		settings.OutroFileName = defaults.OutroFileName
	}
	return settings
}
