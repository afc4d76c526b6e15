// Package conversion implements ConversionRunner: a bounded pool of
// process-isolated workers that normalize a source asset into a streamable
// raster consumable by the tiler package. Process isolation (fresh
// exec.Command per job, never a fork) is required because typical
// decoder libraries maintain internal thread pools that would otherwise
// conflict with the provider workers running in the main process.
package conversion

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"time"
)

// JobKind selects which conversion a Job performs.
type JobKind int

const (
	ConvertImage JobKind = iota
	ConvertDocument
)

// Job describes one conversion: normalize In into the PPM raster Out,
// consumable by tiler.Run.
type Job struct {
	Kind JobKind

	In  string
	Out string

	// ConvertImage options.
	Rotation int // degrees, one of 0/90/180/270
	Invert   bool
	Mono     bool

	// ConvertDocument options.
	DPI int
}

// Status is a job's lifecycle state. Failed is terminal and carries a
// message; Done and Failed are the only terminal states.
type Status int

const (
	Queued Status = iota
	Running
	Done
	Failed
)

func (s Status) String() string {
	switch s {
	case Queued:
		return "Queued"
	case Running:
		return "Running"
	case Done:
		return "Done"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// ErrCancelled is returned by Handle.Wait for a job that was still waiting
// for a pool slot when the runner was shut down.
var ErrCancelled = errors.New("conversion: cancelled")

// Handle is a submitted job's future. Handles may be freely shared across
// goroutines.
type Handle struct {
	job Job

	mu       sync.Mutex
	status   Status
	failMsg  string
	progress float32
	done     chan struct{}
}

// Progress returns a value in [0,1] estimating completion. Until the
// worker reports otherwise it is 0 while Queued/Running and 1 once Done or
// Failed.
func (h *Handle) Progress() float32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.progress
}

// Poll returns the job's current status without blocking.
func (h *Handle) Poll() (Status, string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status, h.failMsg
}

// Wait blocks until the job reaches a terminal state or timeout elapses.
// A timeout <= 0 means wait indefinitely.
func (h *Handle) Wait(timeout time.Duration) (Status, error) {
	if timeout <= 0 {
		<-h.done
		status, msg := h.Poll()
		if status == Failed {
			return status, failureError(msg)
		}
		return status, nil
	}
	select {
	case <-h.done:
		status, msg := h.Poll()
		if status == Failed {
			return status, failureError(msg)
		}
		return status, nil
	case <-time.After(timeout):
		status, msg := h.Poll()
		if status == Failed {
			return status, failureError(msg)
		}
		return status, nil
	}
}

// failureError turns a Failed job's message into Wait's error, returning
// ErrCancelled itself for a job cancelled by Shutdown.
func failureError(msg string) error {
	if msg == ErrCancelled.Error() {
		return ErrCancelled
	}
	return fmt.Errorf("conversion: %s", msg)
}

func (h *Handle) setStatus(status Status, failMsg string) {
	h.mu.Lock()
	h.status = status
	h.failMsg = failMsg
	if status == Done || status == Failed {
		h.progress = 1
	}
	h.mu.Unlock()
}

func (h *Handle) setProgress(p float32) {
	h.mu.Lock()
	h.progress = p
	h.mu.Unlock()
}

// Worker spawns one isolated OS process per job and reports its outcome.
// It exists so ConversionRunner's pool logic is independent of how a job
// is actually executed, which in turn is what makes it straightforward to
// substitute a real decoder backend (vips, a PDF rasterizer, ...) without
// touching the pool.
type Worker interface {
	Run(ctx context.Context, job Job, onProgress func(float32)) error
}

// SelfExecWorker re-executes the current binary with a hidden subcommand,
// so each conversion job runs in a freshly spawned process rather than a
// forked or threaded one. The subprocess is expected to understand the
// __convert-worker calling convention wired up in cmd/tilepyramid.
type SelfExecWorker struct {
	// Args builds the re-exec argv for a job, appended after the
	// executable path. Exposed for tests, which substitute a fake argv
	// that doesn't require an external pixel decoder.
	Args func(job Job) []string
}

func (w SelfExecWorker) Run(ctx context.Context, job Job, onProgress func(float32)) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("conversion: %w", err)
	}

	args := w.Args
	if args == nil {
		args = defaultArgs
	}

	cmd := exec.CommandContext(ctx, exe, args(job)...)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr

	onProgress(0)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("conversion: worker process: %w", err)
	}
	onProgress(1)
	return nil
}

func defaultArgs(job Job) []string {
	args := []string{"__convert-worker", "-in", job.In, "-out", job.Out}
	switch job.Kind {
	case ConvertImage:
		args = append(args, "-kind", "image",
			"-rotation", fmt.Sprint(job.Rotation),
			"-invert="+fmt.Sprint(job.Invert),
			"-mono="+fmt.Sprint(job.Mono))
	case ConvertDocument:
		args = append(args, "-kind", "document", "-dpi", fmt.Sprint(job.DPI))
	}
	return args
}

// Runner is a bounded pool of conversion workers.
type Runner struct {
	worker Worker

	sem chan struct{}

	wg     sync.WaitGroup
	cancel context.CancelFunc
	ctx    context.Context

	mu       sync.Mutex
	shutdown bool
}

// DefaultPoolSize returns min(NumCPU, 4), the spec's default pool size.
func DefaultPoolSize() int {
	n := runtime.NumCPU()
	if n > 4 {
		n = 4
	}
	if n < 1 {
		n = 1
	}
	return n
}

// NewRunner creates a Runner with the given pool size and worker
// implementation. A poolSize <= 0 uses DefaultPoolSize.
func NewRunner(poolSize int, worker Worker) *Runner {
	if poolSize <= 0 {
		poolSize = DefaultPoolSize()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		worker: worker,
		sem:    make(chan struct{}, poolSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Submit enqueues job and returns a Handle for tracking it. Submit never
// blocks past acquiring a pool slot's bookkeeping; the actual job runs on
// a background goroutine once a slot is free.
func (r *Runner) Submit(job Job) (*Handle, error) {
	r.mu.Lock()
	if r.shutdown {
		r.mu.Unlock()
		return nil, errors.New("conversion: runner is shut down")
	}
	r.mu.Unlock()

	h := &Handle{status: Queued, done: make(chan struct{})}

	// Claim a free slot before returning, so a job submitted while the pool
	// has room is Running as soon as Submit returns.
	claimed := false
	select {
	case r.sem <- struct{}{}:
		claimed = true
		h.status = Running
	default:
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(h.done)

		if claimed {
			defer func() { <-r.sem }()
		} else {
			select {
			case r.sem <- struct{}{}:
				defer func() { <-r.sem }()
			case <-r.ctx.Done():
				h.setStatus(Failed, ErrCancelled.Error())
				return
			}
		}

		h.setStatus(Running, "")
		err := r.worker.Run(context.Background(), job, h.setProgress)
		if err != nil {
			removeOutput(job.Out)
			h.setStatus(Failed, err.Error())
			return
		}
		h.setStatus(Done, "")
	}()

	return h, nil
}

func removeOutput(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
}

// Shutdown stops accepting new jobs and cancels any jobs still waiting for
// a pool slot; jobs already running are allowed to finish.
func (r *Runner) Shutdown() {
	r.mu.Lock()
	r.shutdown = true
	r.mu.Unlock()
	r.cancel()
	r.wg.Wait()
}
