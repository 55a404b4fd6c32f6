// Package diagnostics validates the runtime environment before jobs run.
package diagnostics

import (
	"fmt"
	"os"
	"strings"
	"time"

	"video-wrapper/internal/domain"
	"video-wrapper/internal/encode"
)

// Checker validates the encoder binaries and required filesystem paths.
type Checker struct {
	resolveFFmpeg  func() (string, error)
	resolveFFprobe func() (string, error)
	mkdirAll       func(string, os.FileMode) error
	createTemp     func(string, string) (*os.File, error)
	remove         func(string) error
	tempDir        func() string
}

// NewChecker builds a checker using real OS dependencies and the given
// binary locator.
func NewChecker(locator *encode.Locator) *Checker {
	return &Checker{
		resolveFFmpeg:  locator.FFmpeg,
		resolveFFprobe: locator.FFprobe,
		mkdirAll:       os.MkdirAll,
		createTemp:     os.CreateTemp,
		remove:         os.Remove,
		tempDir:        os.TempDir,
	}
}

// Run executes all startup checks and returns a combined report.
func (c *Checker) Run(settings domain.Settings) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkEncoder("ffmpeg", c.resolveFFmpeg, true),
		c.checkEncoder("ffprobe", c.resolveFFprobe, false),
		c.checkWritableDir("output_dir", "Output directory", settings.OutputDir),
		c.checkWritableDir("temp_dir", "Temp directory", c.tempDir()),
	}

	report := domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		Items:       items,
	}
	for _, item := range items {
		switch item.Status {
		case domain.DiagnosticStatusFail:
			report.HasFailures = true
		case domain.DiagnosticStatusWarn:
			report.Warnings++
		}
	}
	return report
}

// checkEncoder verifies one binary resolves through the locator chain.
func (c *Checker) checkEncoder(name string, resolve func() (string, error), required bool) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "tool_" + name,
		Name: name,
	}

	path, err := resolve()
	if err != nil {
		if required {
			item.Status = domain.DiagnosticStatusFail
			item.Hint = fmt.Sprintf("Install %s, set %s, or bundle it next to the app. Encoding cannot run without it.", name, encode.EnvFFmpegBin)
		} else {
			item.Status = domain.DiagnosticStatusWarn
			item.Hint = fmt.Sprintf("Install %s or set %s. Without it, encodes fall back to default frame rate and audio parameters.", name, encode.EnvFFprobeBin)
		}
		item.Message = fmt.Sprintf("Binary not found: %s", name)
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Found at %s", path)
	return item
}

// checkWritableDir validates directory existence and write access.
func (c *Checker) checkWritableDir(id, label, dir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   id,
		Name: label,
	}

	if strings.TrimSpace(dir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("%s is not configured.", label)
		item.Hint = "Set a directory in settings."
		return item
	}

	if err := c.mkdirAll(dir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create directory: %s", dir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(dir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Directory is not writable: %s", dir)
		item.Hint = "Choose a writable directory."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", dir)
	return item
}

// NewCheckerForTests creates a checker with injectable dependencies.
func NewCheckerForTests(
	resolveFFmpeg func() (string, error),
	resolveFFprobe func() (string, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
	tempDir func() string,
) *Checker {
	return &Checker{
		resolveFFmpeg:  resolveFFmpeg,
		resolveFFprobe: resolveFFprobe,
		mkdirAll:       mkdirAll,
		createTemp:     createTemp,
		remove:         remove,
		tempDir:        tempDir,
	}
}
