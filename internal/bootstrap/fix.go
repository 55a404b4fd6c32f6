package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	goruntime "runtime"
	"strings"
	"time"

	"video-wrapper/internal/config"
	"video-wrapper/internal/domain"
)

// Package-manager installs can legitimately take a long time on a cold
// cache, so the per-step timeout is generous.
const installStepTimeout = 45 * time.Minute

// pkgManager describes one package manager and the command steps that
// install ffmpeg (which ships ffprobe alongside) through it.
type pkgManager struct {
	name  string
	steps [][]string
}

// Managers whose install step needs root on Linux desktops.
var elevatedManagers = map[string]bool{
	"apt-get": true,
	"dnf":     true,
	"pacman":  true,
	"zypper":  true,
}

// InstallOrFixDiagnostic applies an OS-specific remediation for one
// failed diagnostic item.
func (a *App) InstallOrFixDiagnostic(itemID string) (domain.DiagnosticReport, error) {
	if a.Store == nil {
		return domain.DiagnosticReport{}, fmt.Errorf("settings store is not configured")
	}

	id := strings.TrimSpace(itemID)
	if id == "" {
		return domain.DiagnosticReport{}, fmt.Errorf("diagnostic item id is required")
	}

	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}

	settingsChanged := false
	var fixErr error

	switch id {
	case "tool_ffmpeg", "tool_ffprobe":
		fixErr = installEncoderTools()
	case "output_dir":
		settings, settingsChanged, fixErr = fixOutputDir(settings)
	case "temp_dir":
		fixErr = fmt.Errorf("temp directory problems need manual attention; check free space and permissions on %s", os.TempDir())
	default:
		return domain.DiagnosticReport{}, fmt.Errorf("unsupported diagnostic item id: %s", id)
	}

	if settingsChanged {
		if saveErr := a.Store.Save(settings); saveErr != nil {
			report := a.refreshDiagnosticsFromSettings(settings)
			return report, fmt.Errorf("save settings after fix: %w", saveErr)
		}
	}

	report := a.refreshDiagnosticsFromSettings(settings)
	if fixErr != nil {
		return report, fixErr
	}
	return report, nil
}

func (a *App) refreshDiagnosticsFromSettings(settings domain.Settings) domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Settings = settings
	if a.checker != nil {
		a.Diagnostics = a.checker.Run(settings)
	}
	return a.Diagnostics
}

// installEncoderTools installs ffmpeg through the first package manager
// present on this machine, then confirms both binaries landed on PATH.
func installEncoderTools() error {
	if err := tryManagers(managersForOS()); err != nil {
		return fmt.Errorf("install ffmpeg/ffprobe: %w", err)
	}
	if missing := missingFromPath("ffmpeg", "ffprobe"); len(missing) > 0 {
		return fmt.Errorf("install finished but %s still not on PATH; restart the app or open a new terminal", strings.Join(missing, " and "))
	}
	return nil
}

func managersForOS() []pkgManager {
	switch goruntime.GOOS {
	case "windows":
		return []pkgManager{
			{name: "winget", steps: [][]string{
				{"winget", "install", "--id", "Gyan.FFmpeg", "--exact", "--accept-source-agreements", "--accept-package-agreements"},
			}},
			{name: "choco", steps: [][]string{{"choco", "install", "ffmpeg", "-y"}}},
			{name: "scoop", steps: [][]string{{"scoop", "install", "ffmpeg"}}},
		}
	case "darwin":
		return []pkgManager{
			{name: "brew", steps: [][]string{{"brew", "install", "ffmpeg"}}},
		}
	default:
		return []pkgManager{
			{name: "apt-get", steps: [][]string{
				{"apt-get", "update"},
				{"apt-get", "install", "-y", "ffmpeg"},
			}},
			{name: "dnf", steps: [][]string{{"dnf", "install", "-y", "ffmpeg"}}},
			{name: "pacman", steps: [][]string{{"pacman", "-Sy", "--noconfirm", "ffmpeg"}}},
			{name: "zypper", steps: [][]string{{"zypper", "install", "-y", "ffmpeg"}}},
			{name: "brew", steps: [][]string{{"brew", "install", "ffmpeg"}}},
		}
	}
}

func fixOutputDir(settings domain.Settings) (domain.Settings, bool, error) {
	outputDir := strings.TrimSpace(settings.OutputDir)
	changed := false
	if outputDir == "" {
		outputDir = config.DefaultSettings().OutputDir
		settings.OutputDir = outputDir
		changed = true
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return settings, changed, fmt.Errorf("create output directory %s: %w", outputDir, err)
	}

	return settings, changed, nil
}

// tryManagers walks the candidates in preference order and stops at the
// first one whose steps all succeed. Managers not installed on this
// machine are skipped without counting as an attempt.
func tryManagers(managers []pkgManager) error {
	if len(managers) == 0 {
		return fmt.Errorf("no install commands configured for %s", goruntime.GOOS)
	}

	var attempts []string
	for _, mgr := range managers {
		if !onPath(mgr.name) {
			continue
		}
		if err := runSteps(mgr); err != nil {
			attempts = append(attempts, fmt.Sprintf("%s: %v", mgr.name, err))
			continue
		}
		return nil
	}

	if len(attempts) == 0 {
		return fmt.Errorf("no supported package manager found for %s", goruntime.GOOS)
	}
	return errors.New(strings.Join(attempts, " | "))
}

func runSteps(mgr pkgManager) error {
	for _, step := range mgr.steps {
		if err := runElevatable(mgr.name, step); err != nil {
			return err
		}
	}
	return nil
}

// runElevatable runs one step, retrying under pkexec or non-interactive
// sudo when the manager needs root on Linux and the plain run failed.
func runElevatable(manager string, step []string) error {
	if len(step) == 0 {
		return fmt.Errorf("empty command")
	}

	candidates := [][]string{step}
	if goruntime.GOOS == "linux" && elevatedManagers[manager] {
		if onPath("pkexec") {
			candidates = append(candidates, append([]string{"pkexec"}, step...))
		}
		if onPath("sudo") {
			candidates = append(candidates, append([]string{"sudo", "-n"}, step...))
		}
	}

	var failures []string
	for _, candidate := range candidates {
		err := runStep(candidate)
		if err == nil {
			return nil
		}
		failures = append(failures, err.Error())
	}
	return errors.New(strings.Join(failures, " | "))
}

func runStep(command []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), installStepTimeout)
	defer cancel()

	label := strings.Join(command, " ")
	output, err := exec.CommandContext(ctx, command[0], command[1:]...).CombinedOutput()
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s timed out after %s", label, installStepTimeout)
	}

	// Keep only the tail of the output; package managers are chatty and
	// the useful error is almost always at the end.
	trimmed := strings.TrimSpace(string(output))
	if len(trimmed) > 400 {
		trimmed = "..." + trimmed[len(trimmed)-400:]
	}
	if trimmed == "" {
		return fmt.Errorf("%s failed: %w", label, err)
	}
	return fmt.Errorf("%s failed: %w (%s)", label, err, trimmed)
}

func onPath(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

func missingFromPath(names ...string) []string {
	var missing []string
	for _, name := range names {
		if !onPath(name) {
			missing = append(missing, name)
		}
	}
	return missing
}
