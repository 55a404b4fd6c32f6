// Package resolve scans directories and pairs source videos with the
// still images they should be wrapped with.
package resolve

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"video-wrapper/internal/domain"
)

// videoExtensions lists the container formats accepted as batch sources.
var videoExtensions = map[string]bool{
	".mp4": true,
	".mov": true,
	".mkv": true,
	".avi": true,
	".m4v": true,
}

// imageExtensions lists the still formats accepted for intro/outro slots.
var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".bmp":  true,
	".gif":  true,
	".tiff": true,
}

// Stem suffixes recognized by the per-video match policy.
const (
	stemIntroSuffix = "-intro"
	stemOutroSuffix = "-outro"
)

// Options configures one resolution pass.
type Options struct {
	Policy domain.MatchPolicy

	// SharedIntro and SharedOutro are applied to every video under the
	// shared policy.
	SharedIntro string
	SharedOutro string

	// IntroFileName and OutroFileName are looked up inside the scanned
	// directory under the fixed policy.
	IntroFileName string
	OutroFileName string
}

// IsVideoFile reports whether name carries an accepted video extension.
func IsVideoFile(name string) bool {
	return videoExtensions[strings.ToLower(filepath.Ext(name))]
}

// IsImageFile reports whether name carries an accepted image extension.
func IsImageFile(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}

// Resolve scans dir and returns one pairing per video that matched at
// least one image slot, sorted by video filename. The result is computed
// fresh on every call; directory changes between calls are picked up.
func Resolve(dir string, opts Options) ([]domain.BatchPairing, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan directory %s: %w", dir, err)
	}

	var videos []string
	images := map[string]string{} // lowercased filename -> full path
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		switch {
		case IsVideoFile(name):
			videos = append(videos, name)
		case IsImageFile(name):
			images[strings.ToLower(name)] = filepath.Join(dir, name)
		}
	}
	sort.Strings(videos)

	match, err := matcherFor(opts, images)
	if err != nil {
		return nil, err
	}

	var pairings []domain.BatchPairing
	for _, video := range videos {
		intro, outro := match(video)
		if intro == "" && outro == "" {
			continue
		}
		pairings = append(pairings, domain.BatchPairing{
			VideoPath:  filepath.Join(dir, video),
			IntroImage: intro,
			OutroImage: outro,
		})
	}
	return pairings, nil
}

// matcherFor builds the per-video image lookup for the chosen policy.
func matcherFor(opts Options, images map[string]string) (func(video string) (intro, outro string), error) {
	switch opts.Policy {
	case domain.MatchPolicyShared, "":
		intro := strings.TrimSpace(opts.SharedIntro)
		outro := strings.TrimSpace(opts.SharedOutro)
		if intro == "" && outro == "" {
			return nil, fmt.Errorf("shared policy requires an intro or outro image")
		}
		return func(string) (string, string) {
			return intro, outro
		}, nil

	case domain.MatchPolicyFixed:
		introName := strings.TrimSpace(opts.IntroFileName)
		outroName := strings.TrimSpace(opts.OutroFileName)
		if introName == "" && outroName == "" {
			return nil, fmt.Errorf("fixed policy requires an intro or outro file name")
		}
		intro := images[strings.ToLower(introName)]
		outro := images[strings.ToLower(outroName)]
		return func(string) (string, string) {
			return intro, outro
		}, nil

	case domain.MatchPolicyStem:
		intros := map[string]string{}
		outros := map[string]string{}
		names := make([]string, 0, len(images))
		for name := range images {
			names = append(names, name)
		}
		// Sorted walk keeps the winner stable when a stem matches more
		// than one image extension.
		sort.Strings(names)
		for _, name := range names {
			path := images[name]
			stem := strings.TrimSuffix(name, filepath.Ext(name))
			if base, ok := strings.CutSuffix(stem, stemIntroSuffix); ok {
				if _, taken := intros[base]; !taken {
					intros[base] = path
				}
			} else if base, ok := strings.CutSuffix(stem, stemOutroSuffix); ok {
				if _, taken := outros[base]; !taken {
					outros[base] = path
				}
			}
		}
		return func(video string) (string, string) {
			stem := strings.ToLower(strings.TrimSuffix(video, filepath.Ext(video)))
			return intros[stem], outros[stem]
		}, nil

	default:
		return nil, fmt.Errorf("unknown match policy: %s", opts.Policy)
	}
}
