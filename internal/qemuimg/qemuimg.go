// Package qemuimg runs the qemu-img image conversion tool.
package qemuimg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

var (
	// ErrNotFound is returned when the binary cannot be located or started.
	ErrNotFound = errors.New("qemu-img not available")

	// ErrExitStatus is returned when qemu-img exits non-zero.
	ErrExitStatus = errors.New("qemu-img exited with non-zero status")
)

// outputTail bounds how much captured output is carried in an error.
const outputTail = 2048

// Request describes one conversion.
type Request struct {
	SourceFormat string
	TargetFormat string
	Source       string
	Destination  string
	// Progress asks qemu-img for its progress bar and streams its output to
	// the runner's terminal writers instead of capturing it.
	Progress bool
}

// Runner invokes a qemu-img binary.
type Runner struct {
	Binary string
	// Stdout and Stderr receive live output when a request asks for progress.
	Stdout io.Writer
	Stderr io.Writer
	log    *zap.Logger
}

// NewRunner creates a runner for binary ("qemu-img" when empty) that streams
// progress to the process's stdout/stderr.
func NewRunner(binary string, log *zap.Logger) *Runner {
	if binary == "" {
		binary = "qemu-img"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{Binary: binary, Stdout: os.Stdout, Stderr: os.Stderr, log: log}
}

// Probe checks that the binary can be found and executed.
func (r *Runner) Probe(ctx context.Context) error {
	path, err := exec.LookPath(r.Binary)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrNotFound, r.Binary, err)
	}

	cmd := exec.CommandContext(ctx, path, "--version")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s --version: %w", ErrNotFound, path, err)
	}
	r.log.Debug("converter available", zap.String("path", path),
		zap.String("version", firstLine(string(out))))
	return nil
}

// Convert runs `qemu-img convert` for req and blocks until it exits.
func (r *Runner) Convert(ctx context.Context, req Request) error {
	args := Args(req)
	cmd := exec.CommandContext(ctx, r.Binary, args...)

	var captured bytes.Buffer
	if req.Progress {
		cmd.Stdout = r.Stdout
		cmd.Stderr = r.Stderr
	} else {
		cmd.Stdout = &captured
		cmd.Stderr = &captured
	}

	r.log.Debug("running converter", zap.String("binary", r.Binary), zap.Strings("args", args))

	err := cmd.Run()
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		msg := strings.TrimSpace(tail(captured.String(), outputTail))
		if msg != "" {
			return fmt.Errorf("%w: exit code %d: %s", ErrExitStatus, exitErr.ExitCode(), msg)
		}
		return fmt.Errorf("%w: exit code %d", ErrExitStatus, exitErr.ExitCode())
	}
	return fmt.Errorf("%w: %w", ErrNotFound, err)
}

// Args builds the qemu-img argument list for req.
func Args(req Request) []string {
	args := []string{"convert", "-f", req.SourceFormat, "-O", req.TargetFormat}
	if req.Progress {
		args = append(args, "-p")
	}
	return append(args, req.Source, req.Destination)
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}
