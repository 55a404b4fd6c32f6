package encode

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"video-wrapper/internal/domain"
)

// Result contains the final output location and command logs for one run.
type Result struct {
	OutputPath string       `json:"outputPath"`
	Logs       []CommandLog `json:"logs"`
}

// Invoker issues one external encode per job. The encode writes into a
// per-job workspace under the process temp directory and the finished file
// is promoted to the job's output path afterwards, so a sandboxed or
// read-only output location fails cleanly instead of mid-encode. Workspace
// artifacts are removed on every path, success or failure.
type Invoker struct {
	ffmpegPath  string
	ffprobePath string
	runner      commandRunner
	log         *slog.Logger

	mkdirTemp func(dir, pattern string) (string, error)
	removeAll func(path string) error
	stat      func(name string) (os.FileInfo, error)
	mkdirAll  func(path string, perm os.FileMode) error
	rename    func(oldpath, newpath string) error
}

// NewInvoker constructs the production invoker with OS dependencies.
// ffprobePath may be empty; probing is skipped and defaults are used.
func NewInvoker(ffmpegPath, ffprobePath string, logger *slog.Logger) *Invoker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Invoker{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		runner:      &execRunner{},
		log:         logger,
		mkdirTemp:   os.MkdirTemp,
		removeAll:   os.RemoveAll,
		stat:        os.Stat,
		mkdirAll:    os.MkdirAll,
		rename:      os.Rename,
	}
}

// Run executes one encode for the job. onLog, when non-nil, receives every
// external command invocation as it completes.
func (inv *Invoker) Run(ctx context.Context, job domain.Job, onLog func(CommandLog)) (Result, error) {
	if err := inv.checkAssets(job); err != nil {
		return Result{}, err
	}

	if err := inv.mkdirAll(filepath.Dir(job.OutputPath), 0o755); err != nil {
		return Result{}, &InvokeError{
			Kind:    ErrorKindEnvironment,
			Message: fmt.Sprintf("cannot create output directory: %s", filepath.Dir(job.OutputPath)),
			Err:     err,
		}
	}

	workDir, err := inv.mkdirTemp("", "video-wrapper-"+job.ID+"-*")
	if err != nil {
		return Result{}, &InvokeError{
			Kind:    ErrorKindEnvironment,
			Message: "temp directory is not writable",
			Err:     err,
		}
	}
	defer func() {
		if cleanupErr := inv.removeAll(workDir); cleanupErr != nil {
			inv.log.Warn("workspace cleanup failed", "job", job.ID, "dir", workDir, "error", cleanupErr)
		}
	}()

	var logs []CommandLog
	emit := func(log CommandLog) {
		logs = append(logs, log)
		if onLog != nil {
			onLog(log)
		}
	}

	info := inv.probe(ctx, job, emit)

	staging := filepath.Join(workDir, "wrapped-"+job.ID+".mp4")
	args := buildConcatArgs(job, info, staging)

	cmdResult, runErr := inv.runner.Run(ctx, inv.ffmpegPath, args...)
	encodeLog := CommandLog{
		Command:  inv.ffmpegPath,
		Args:     args,
		ExitCode: cmdResult.ExitCode,
		Stdout:   cmdResult.Stdout,
		Stderr:   cmdResult.Stderr,
	}
	emit(encodeLog)
	if runErr != nil {
		return Result{}, &InvokeError{
			Kind:       ErrorKindEncodeFailed,
			Message:    "ffmpeg concat encode failed",
			CommandLog: encodeLog,
			Err:        runErr,
		}
	}

	if _, err := inv.stat(staging); err != nil {
		return Result{}, &InvokeError{
			Kind:       ErrorKindEncodeFailed,
			Message:    "ffmpeg completed but staging output is missing",
			CommandLog: encodeLog,
			Err:        err,
		}
	}

	if err := inv.promote(staging, job.OutputPath); err != nil {
		return Result{}, &InvokeError{
			Kind:    ErrorKindEnvironment,
			Message: fmt.Sprintf("cannot move output into place: %s", job.OutputPath),
			Err:     err,
		}
	}

	return Result{OutputPath: job.OutputPath, Logs: logs}, nil
}

// checkAssets fails fast when a referenced input is absent, before any
// external process is spawned.
func (inv *Invoker) checkAssets(job domain.Job) error {
	paths := []string{job.VideoPath}
	if job.HasIntro() {
		paths = append(paths, job.IntroImage)
	}
	if job.HasOutro() {
		paths = append(paths, job.OutroImage)
	}

	for _, path := range paths {
		if _, err := inv.stat(path); err != nil {
			return &InvokeError{
				Kind:    ErrorKindMissingAsset,
				Message: fmt.Sprintf("cannot access input: %s", path),
				Err:     err,
			}
		}
	}
	return nil
}

// probe inspects the source video. Probe failure is advisory: the encode
// proceeds with default parameters, matching the degraded behavior of a
// missing ffprobe install.
func (inv *Invoker) probe(ctx context.Context, job domain.Job, emit func(CommandLog)) ProbeInfo {
	if inv.ffprobePath == "" {
		return defaultProbeInfo()
	}

	args := buildProbeArgs(job.VideoPath)
	cmdResult, err := inv.runner.Run(ctx, inv.ffprobePath, args...)
	emit(CommandLog{
		Command:  inv.ffprobePath,
		Args:     args,
		ExitCode: cmdResult.ExitCode,
		Stdout:   cmdResult.Stdout,
		Stderr:   cmdResult.Stderr,
	})
	if err != nil {
		inv.log.Warn("probe failed, using defaults", "job", job.ID, "error", err)
		return defaultProbeInfo()
	}
	return parseProbeOutput([]byte(cmdResult.Stdout))
}

// promote moves the staged file to its final location. Rename is attempted
// first; a copy fallback handles cross-device output directories.
func (inv *Invoker) promote(staging, outputPath string) error {
	if err := inv.rename(staging, outputPath); err == nil {
		return nil
	}

	src, err := os.Open(staging)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

// NewInvokerForTests constructs an invoker with injectable dependencies.
func NewInvokerForTests(
	ffmpegPath string,
	ffprobePath string,
	runner commandRunner,
	mkdirTemp func(dir, pattern string) (string, error),
	removeAll func(path string) error,
	stat func(name string) (os.FileInfo, error),
) *Invoker {
	return &Invoker{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		runner:      runner,
		log:         slog.Default(),
		mkdirTemp:   mkdirTemp,
		removeAll:   removeAll,
		stat:        stat,
		mkdirAll:    os.MkdirAll,
		rename:      os.Rename,
	}
}
