package conversion_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilepyramid/engine/internal/conversion"
)

// fakeWorker simulates a conversion without spawning a real process, so
// tests don't depend on an external pixel decoder being installed.
type fakeWorker struct {
	fail  bool
	delay time.Duration
}

func (w fakeWorker) Run(ctx context.Context, job conversion.Job, onProgress func(float32)) error {
	onProgress(0)
	if w.delay > 0 {
		select {
		case <-time.After(w.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if w.fail {
		return assert.AnError
	}
	if job.Out != "" {
		if err := os.WriteFile(job.Out, []byte("ppm-stub"), 0o644); err != nil {
			return err
		}
	}
	onProgress(1)
	return nil
}

func TestSubmitRunsJobToCompletion(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.ppm")
	r := conversion.NewRunner(2, fakeWorker{})
	defer r.Shutdown()

	h, err := r.Submit(conversion.Job{Kind: conversion.ConvertImage, In: "in.jpg", Out: out})
	require.NoError(t, err)

	status, err := h.Wait(0)
	require.NoError(t, err)
	assert.Equal(t, conversion.Done, status)

	_, err = os.Stat(out)
	assert.NoError(t, err)
}

func TestSubmitFailedJobRemovesPartialOutput(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.ppm")
	require.NoError(t, os.WriteFile(out, []byte("partial"), 0o644))

	r := conversion.NewRunner(1, fakeWorker{fail: true})
	defer r.Shutdown()

	h, err := r.Submit(conversion.Job{Kind: conversion.ConvertImage, Out: out})
	require.NoError(t, err)

	status, err := h.Wait(0)
	assert.Error(t, err)
	assert.Equal(t, conversion.Failed, status)

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}

func TestPoolBoundsConcurrency(t *testing.T) {
	r := conversion.NewRunner(1, fakeWorker{delay: 50 * time.Millisecond})
	defer r.Shutdown()

	h1, err := r.Submit(conversion.Job{})
	require.NoError(t, err)
	h2, err := r.Submit(conversion.Job{})
	require.NoError(t, err)

	status1, _ := h1.Poll()
	assert.Equal(t, conversion.Running, status1)

	time.Sleep(5 * time.Millisecond)
	status2, _ := h2.Poll()
	assert.Equal(t, conversion.Queued, status2, "second job should wait for the single pool slot")

	_, err = h1.Wait(0)
	require.NoError(t, err)
	_, err = h2.Wait(0)
	require.NoError(t, err)
}

func TestWaitTimeoutReturnsWithoutBlockingForever(t *testing.T) {
	r := conversion.NewRunner(1, fakeWorker{delay: 50 * time.Millisecond})
	defer r.Shutdown()

	h, err := r.Submit(conversion.Job{})
	require.NoError(t, err)

	status, err := h.Wait(time.Millisecond)
	assert.NoError(t, err)
	assert.NotEqual(t, conversion.Done, status)
}

func TestShutdownCancelsQueuedJobs(t *testing.T) {
	r := conversion.NewRunner(1, fakeWorker{delay: 100 * time.Millisecond})

	h1, err := r.Submit(conversion.Job{})
	require.NoError(t, err)
	h2, err := r.Submit(conversion.Job{})
	require.NoError(t, err)

	r.Shutdown()

	status1, _ := h1.Poll()
	assert.Equal(t, conversion.Done, status1)

	status2, _ := h2.Poll()
	assert.Equal(t, conversion.Failed, status2)
}

func TestSubmitAfterShutdownFails(t *testing.T) {
	r := conversion.NewRunner(1, fakeWorker{})
	r.Shutdown()

	_, err := r.Submit(conversion.Job{})
	assert.Error(t, err)
}

func TestDefaultPoolSizeIsAtLeastOneAndAtMostFour(t *testing.T) {
	n := conversion.DefaultPoolSize()
	assert.GreaterOrEqual(t, n, 1)
	assert.LessOrEqual(t, n, 4)
}
