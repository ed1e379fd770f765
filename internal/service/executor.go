package service

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/brainstem-ai/brainstem/internal/domain"
)

// Executor runs authorized shell commands with bounded concurrency and
// bounded output. Authorization happens before the executor is reached;
// the executor only enforces resource limits.
type Executor struct {
	sem        *semaphore.Weighted
	shell      string
	maxOutput  int
	defTimeout time.Duration
}

// NewExecutor creates an executor allowing at most limit concurrent
// commands, truncating combined output at maxOutput bytes, and applying
// defTimeout when the caller supplies no deadline.
func NewExecutor(limit int, maxOutput int, defTimeout time.Duration) *Executor {
	if limit < 1 {
		limit = 1
	}
	return &Executor{
		sem:        semaphore.NewWeighted(int64(limit)),
		shell:      "/bin/sh",
		maxOutput:  maxOutput,
		defTimeout: defTimeout,
	}
}

// ExecResult is the outcome of one command execution.
type ExecResult struct {
	Output   string `json:"output"`
	ExitCode int    `json:"exit_code"`
	Truncated bool  `json:"truncated,omitempty"`
}

// Run executes a command line through the shell. Blocks while all slots
// are busy; returns ctx.Err() if the context is cancelled while waiting.
// A deadline exceeded during execution is reported as ErrTimeout, never
// silently dropped.
func (e *Executor) Run(ctx context.Context, command string) (*ExecResult, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer e.sem.Release(1)

	if _, ok := ctx.Deadline(); !ok && e.defTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.defTimeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, e.shell, "-c", command)
	out, err := cmd.CombinedOutput()

	res := &ExecResult{Output: string(out)}
	if e.maxOutput > 0 && len(res.Output) > e.maxOutput {
		res.Output = res.Output[:e.maxOutput]
		res.Truncated = true
	}

	if ctxErr := ctx.Err(); errors.Is(ctxErr, context.DeadlineExceeded) {
		return res, fmt.Errorf("%w: command %q", domain.ErrTimeout, command)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return nil, fmt.Errorf("spawn command: %w", err)
	}
	return res, nil
}
