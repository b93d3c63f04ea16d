// Package subprocess runs bounded, time-limited child processes (git,
// repo-host CLI invocations) and captures their stdout/stderr
// concurrently, per spec.md §5 and §9 ("Subprocess coroutines"). The
// original source reads subprocess output with ad-hoc threads; here a
// context deadline plus two goroutines draining stdout/stderr replace
// that, and a timed-out or disconnected call kills the whole process
// group rather than just the leader.
package subprocess

import (
	"bytes"
	"context"
	"os/exec"
	"syscall"
	"time"

	"github.com/silexa/gateway-sidecar/internal/gatewayerr"
)

// Result is the outcome of one bounded subprocess invocation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Run executes name with args under dir, bounded by timeout, and killing
// the process group if the context is canceled first (client
// disconnect) or the timeout elapses.
func Run(ctx context.Context, dir, name string, args []string, timeout time.Duration) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return Result{}, gatewayerr.New(gatewayerr.Internal, "failed to start subprocess")
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			var exitErr *exec.ExitError
			if asExitError(err, &exitErr) {
				return Result{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: exitErr.ExitCode()}, nil
			}
			return Result{}, gatewayerr.New(gatewayerr.Internal, "subprocess failed")
		}
		return Result{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: 0}, nil
	case <-ctx.Done():
		killProcessGroup(cmd)
		<-done
		if ctx.Err() == context.DeadlineExceeded {
			return Result{}, gatewayerr.New(gatewayerr.Timeout, "subprocess exceeded its deadline")
		}
		return Result{}, gatewayerr.New(gatewayerr.ClientClosed, "client disconnected during subprocess")
	}
}

func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err != nil {
		_ = cmd.Process.Kill()
		return
	}
	_ = syscall.Kill(-pgid, syscall.SIGKILL)
}

func asExitError(err error, target **exec.ExitError) bool {
	ee, ok := err.(*exec.ExitError)
	if !ok {
		return false
	}
	*target = ee
	return true
}
