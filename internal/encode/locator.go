package encode

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
)

// ErrEncoderNotFound is returned when no usable binary could be resolved.
var ErrEncoderNotFound = errors.New("encoder not found")

// Environment variables overriding binary resolution, highest priority.
const (
	EnvFFmpegBin  = "FFMPEG_BIN"
	EnvFFprobeBin = "FFPROBE_BIN"
)

// Locator resolves the ffmpeg and ffprobe executables. Priority order:
// explicit environment override, binaries bundled next to the app
// executable, then the system PATH.
type Locator struct {
	getenv     func(string) string
	lookPath   func(string) (string, error)
	stat       func(string) (os.FileInfo, error)
	executable func() (string, error)
}

// NewLocator builds a locator using real OS dependencies.
func NewLocator() *Locator {
	return &Locator{
		getenv:     os.Getenv,
		lookPath:   exec.LookPath,
		stat:       os.Stat,
		executable: os.Executable,
	}
}

// FFmpeg resolves the encoder executable path.
func (l *Locator) FFmpeg() (string, error) {
	return l.resolve("ffmpeg", EnvFFmpegBin)
}

// FFprobe resolves the probe executable path.
func (l *Locator) FFprobe() (string, error) {
	return l.resolve("ffprobe", EnvFFprobeBin)
}

// resolve walks the priority chain for one binary name.
func (l *Locator) resolve(name, envKey string) (string, error) {
	if override := l.getenv(envKey); override != "" {
		if l.isFile(override) {
			return override, nil
		}
		return "", fmt.Errorf("%w: %s points to %s which does not exist", ErrEncoderNotFound, envKey, override)
	}

	for _, candidate := range l.bundledCandidates(name) {
		if l.isFile(candidate) {
			return candidate, nil
		}
	}

	if path, err := l.lookPath(name); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("%w: %s", ErrEncoderNotFound, name)
}

// bundledCandidates lists paths where packaging may have embedded the
// binary, relative to the running executable.
func (l *Locator) bundledCandidates(name string) []string {
	exe, err := l.executable()
	if err != nil {
		return nil
	}
	if goruntime.GOOS == "windows" {
		name += ".exe"
	}

	base := filepath.Dir(exe)
	return []string{
		filepath.Join(base, "assets", "bin", goruntime.GOOS, goruntime.GOARCH, name),
		filepath.Join(base, "assets", "bin", goruntime.GOOS, name),
		filepath.Join(base, "assets", "bin", name),
	}
}

// isFile reports whether path exists and is a regular file.
func (l *Locator) isFile(path string) bool {
	info, err := l.stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// NewLocatorForTests creates a locator with injectable dependencies.
func NewLocatorForTests(
	getenv func(string) string,
	lookPath func(string) (string, error),
	stat func(string) (os.FileInfo, error),
	executable func() (string, error),
) *Locator {
	return &Locator{
		getenv:     getenv,
		lookPath:   lookPath,
		stat:       stat,
		executable: executable,
	}
}
