package bootstrap

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"video-wrapper/internal/batch"
	"video-wrapper/internal/config"
	"video-wrapper/internal/diagnostics"
	"video-wrapper/internal/domain"
	"video-wrapper/internal/encode"
	"video-wrapper/internal/jobs"
	"video-wrapper/internal/resolve"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

const appDirName = ".video-wrapper"

var videoDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Video files",
		Pattern:     "*.mp4;*.mov;*.mkv;*.avi;*.m4v",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

var imageDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Image files",
		Pattern:     "*.png;*.jpg;*.jpeg;*.bmp;*.gif;*.tiff",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

// encodeRunner isolates the encode invoker behind an interface.
type encodeRunner interface {
	Run(ctx context.Context, job domain.Job, onLog func(encode.CommandLog)) (encode.Result, error)
}

// queueInvoker adapts the encode invoker to the queue's dispatch
// contract. Binaries are resolved per job so an install performed while
// the app is open takes effect without a restart.
type queueInvoker struct {
	locator    *encode.Locator
	log        *slog.Logger
	announce   func(jobs.Event)
	newInvoker func(ffmpegPath, ffprobePath string) encodeRunner
}

// Run resolves binaries, runs the encode, and forwards command logs.
func (qi *queueInvoker) Run(ctx context.Context, job domain.Job) error {
	ffmpegPath, err := qi.locator.FFmpeg()
	if err != nil {
		return &encode.InvokeError{
			Kind:    encode.ErrorKindEnvironment,
			Message: "ffmpeg is not installed or not resolvable",
			Err:     err,
		}
	}
	ffprobePath, err := qi.locator.FFprobe()
	if err != nil {
		qi.log.Warn("ffprobe unavailable, using default encode parameters", "error", err)
		ffprobePath = ""
	}

	_, err = qi.newInvoker(ffmpegPath, ffprobePath).Run(ctx, job, func(log encode.CommandLog) {
		qi.announce(jobs.Event{
			JobID:    job.ID,
			Type:     jobs.EventTypeLog,
			Message:  "Command completed",
			Command:  log.Command,
			Args:     log.Args,
			ExitCode: log.ExitCode,
			Stderr:   log.Stderr,
		})
	})
	return err
}

// App wires configuration, the job queue, batching, and UI runtime
// callbacks.
type App struct {
	Settings    domain.Settings
	Store       config.Store
	Queue       *jobs.Queue
	Batches     *batch.Coordinator
	Diagnostics domain.DiagnosticReport

	assets  fs.FS
	checker *diagnostics.Checker
	locator *encode.Locator
	log     *slog.Logger
	lock    *flock.Flock

	mu         sync.Mutex
	runtimeCtx context.Context
	queueStop  context.CancelFunc
}

// New builds the application with persisted settings and startup
// diagnostics.
func New() (*App, error) {
	return NewWithAssets(nil)
}

// NewWithAssets builds the application and optionally configures embedded
// frontend assets.
func NewWithAssets(assets fs.FS) (*App, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve user home: %w", err)
	}
	appDir := filepath.Join(homeDir, appDirName)
	if err := os.MkdirAll(appDir, 0o755); err != nil {
		return nil, fmt.Errorf("prepare app directory: %w", err)
	}

	// One instance owns the encoder; a second launch refuses to start.
	lock := flock.New(filepath.Join(appDir, "app.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire instance lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("another instance is already running")
	}

	store := config.NewJSONStore(filepath.Join(appDir, "settings.json"))
	settings, err := store.Load()
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("load settings: %w", err)
	}

	locator := encode.NewLocator()
	checker := diagnostics.NewChecker(locator)
	report := checker.Run(settings)

	invoker := &queueInvoker{
		locator: locator,
		log:     logger,
		newInvoker: func(ffmpegPath, ffprobePath string) encodeRunner {
			return encode.NewInvoker(ffmpegPath, ffprobePath, logger)
		},
	}
	queue := jobs.NewQueue(invoker, logger)
	invoker.announce = queue.Announce

	app := &App{
		Settings:    settings,
		Store:       store,
		Queue:       queue,
		Batches:     batch.NewCoordinator(queue, logger),
		Diagnostics: report,
		assets:      assets,
		checker:     checker,
		locator:     locator,
		log:         logger,
		lock:        lock,
	}
	queue.Notify(app.forwardEvent)

	queueCtx, stop := context.WithCancel(context.Background())
	app.queueStop = stop
	queue.Start(queueCtx)

	return app, nil
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "Video Wrapper",
		Width:       1180,
		Height:      780,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown:  a.Shutdown,
		Bind:        []interface{}{a},
	})
}

// Startup stores Wails runtime context for push events.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runtimeCtx = ctx
}

// Shutdown stops the dispatch loop and releases the instance lock.
func (a *App) Shutdown(ctx context.Context) {
	a.mu.Lock()
	a.runtimeCtx = nil
	stop := a.queueStop
	a.mu.Unlock()

	if stop != nil {
		stop()
	}
	a.Queue.Close()
	if a.lock != nil {
		_ = a.lock.Unlock()
	}
}

// forwardEvent pushes a queue event to the frontend when the UI is up.
func (a *App) forwardEvent(event jobs.Event) {
	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, "job:event", event)
	}
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()

	return settings, nil
}

// SaveSettings normalizes and persists settings, then refreshes
// diagnostics.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := config.Normalize(settings)
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = normalized
	if a.checker != nil {
		a.Diagnostics = a.checker.Run(normalized)
	}
	a.mu.Unlock()

	return normalized, nil
}

// SubmitJob validates a spec, fills defaults from settings, and queues
// the job.
func (a *App) SubmitJob(spec domain.JobSpec) (domain.Job, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Job{}, fmt.Errorf("load settings: %w", err)
	}
	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()

	spec = applySettingsDefaults(spec, settings)

	job, err := domain.NewJob(spec)
	if err != nil {
		return domain.Job{}, err
	}
	if _, err := a.Queue.Submit(job); err != nil {
		return domain.Job{}, err
	}
	return job, nil
}

// CancelJob cancels a pending job. Running and finished jobs report an
// explicit not-cancellable outcome instead of an error.
func (a *App) CancelJob(jobID string) jobs.CancelResult {
	return a.Queue.Cancel(jobID)
}

// GetJob returns one job snapshot by id.
func (a *App) GetJob(jobID string) (domain.Job, error) {
	job, ok := a.Queue.Job(jobID)
	if !ok {
		return domain.Job{}, fmt.Errorf("unknown job: %s", jobID)
	}
	return job, nil
}

// ListJobs returns all known jobs in submission order.
func (a *App) ListJobs() []domain.Job {
	return a.Queue.Jobs()
}

// JobEvents returns all events with sequence greater than sinceSeq.
func (a *App) JobEvents(sinceSeq int64) []jobs.Event {
	return a.Queue.EventsSince(sinceSeq)
}

// ScanBatch resolves pairings for a directory using the configured match
// policy. Shared-policy image paths come from the caller's selection.
func (a *App) ScanBatch(dir, introImage, outroImage string) ([]domain.BatchPairing, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	intro := strings.TrimSpace(introImage)
	outro := strings.TrimSpace(outroImage)
	if settings.SameImageForAll && intro != "" && outro == "" {
		outro = intro
	}

	return resolve.Resolve(dir, resolve.Options{
		Policy:        settings.MatchPolicy,
		SharedIntro:   intro,
		SharedOutro:   outro,
		IntroFileName: settings.IntroFileName,
		OutroFileName: settings.OutroFileName,
	})
}

// StartBatch submits one job per pairing and returns the initial tally.
func (a *App) StartBatch(pairings []domain.BatchPairing) (batch.Status, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return batch.Status{}, fmt.Errorf("load settings: %w", err)
	}
	return a.Batches.Start(pairings, settings)
}

// BatchStatus returns the aggregate view of one batch.
func (a *App) BatchStatus(batchID string) (batch.Status, error) {
	status, ok := a.Batches.Status(batchID)
	if !ok {
		return batch.Status{}, fmt.Errorf("unknown batch: %s", batchID)
	}
	return status, nil
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	return a.Diagnostics
}

// RefreshDiagnostics reloads settings and reruns environment checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = settings
	a.Diagnostics = a.checker.Run(settings)
	report := a.Diagnostics
	a.mu.Unlock()
	return report, nil
}

// PickVideoFile opens a native file dialog for source video selection.
func (a *App) PickVideoFile() (string, error) {
	return a.pickFile("Select video file", videoDialogFilter)
}

// PickImageFile opens a native file dialog for intro/outro image
// selection.
func (a *App) PickImageFile(title string) (string, error) {
	if strings.TrimSpace(title) == "" {
		title = "Select image"
	}
	return a.pickFile(title, imageDialogFilter)
}

// PickOutputDirectory opens a native directory picker for encode output.
func (a *App) PickOutputDirectory() (string, error) {
	return a.pickDirectory("Select output directory")
}

// PickBatchDirectory opens a native directory picker for batch scans.
func (a *App) PickBatchDirectory() (string, error) {
	return a.pickDirectory("Select folder with videos")
}

// OpenOutputFolder opens the given path (or configured output dir) in the
// platform file manager.
func (a *App) OpenOutputFolder(path string) error {
	target := strings.TrimSpace(path)
	if target == "" {
		a.mu.Lock()
		target = a.Settings.OutputDir
		a.mu.Unlock()
	}
	if target == "" {
		return fmt.Errorf("output path is empty")
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}

	openPath := target
	if !info.IsDir() {
		openPath = filepath.Dir(target)
	}

	return openInFileManager(openPath)
}

// pickFile opens a native open-file dialog.
func (a *App) pickFile(title string, filters []wailsruntime.FileFilter) (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenFileDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:   title,
		Filters: filters,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(path), nil
}

// pickDirectory opens a native directory picker.
func (a *App) pickDirectory(title string) (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenDirectoryDialog(ctx, wailsruntime.OpenDialogOptions{
		Title: title,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(path), nil
}

// runtimeContext returns current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

// applySettingsDefaults fills unset spec slots from persisted settings.
func applySettingsDefaults(spec domain.JobSpec, settings domain.Settings) domain.JobSpec {
	if settings.SameImageForAll && strings.TrimSpace(spec.IntroImage) != "" && strings.TrimSpace(spec.OutroImage) == "" {
		spec.OutroImage = spec.IntroImage
	}
	if strings.TrimSpace(spec.IntroImage) != "" && spec.IntroDuration <= 0 {
		spec.IntroDuration = settings.IntroDuration
	}
	if strings.TrimSpace(spec.OutroImage) != "" && spec.OutroDuration <= 0 {
		spec.OutroDuration = settings.OutroDuration
	}
	if strings.TrimSpace(spec.OutputPath) == "" && strings.TrimSpace(spec.VideoPath) != "" {
		base := filepath.Base(strings.TrimSpace(spec.VideoPath))
		stem := strings.TrimSuffix(base, filepath.Ext(base))
		spec.OutputPath = filepath.Join(settings.OutputDir, "processed_"+stem+".mp4")
	}
	return spec
}

// openInFileManager launches the platform file explorer for the provided
// path.
func openInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", filepath.Clean(path))
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch file manager: %w", err)
	}
	return nil
}
