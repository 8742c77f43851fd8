// Package filter pipes secret values through user-supplied shell commands.
package filter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/systmms/vault-inject/internal/logging"
	"github.com/systmms/vault-inject/internal/metrics"
	"github.com/systmms/vault-inject/pkg/exec"
)

// ErrFilterFailed is returned when a filter exits non-zero or writes
// nothing to stdout.
var ErrFilterFailed = errors.New("filter failed")

// Shell runs each filter as Shell -c <filter>.
const Shell = "sh"

// Chain applies filters in order.
type Chain struct {
	executor exec.CommandExecutor
	metrics  *metrics.Recorder
	logger   *logging.Logger
}

// New creates a Chain. A nil executor runs real processes.
func New(executor exec.CommandExecutor, rec *metrics.Recorder, logger *logging.Logger) *Chain {
	if executor == nil {
		executor = exec.DefaultExecutor()
	}
	if logger == nil {
		logger = logging.New(false, true)
	}
	return &Chain{executor: executor, metrics: rec, logger: logger}
}

// Apply feeds value to each filter's stdin in turn; each filter's stdout,
// minus one trailing newline, becomes the next value.
func (c *Chain) Apply(ctx context.Context, value string, filters []string) (string, error) {
	for _, f := range filters {
		out, err := c.run(ctx, value, f)
		c.metrics.RecordFilterRun(err)
		if err != nil {
			return "", err
		}
		value = out
	}
	return value, nil
}

func (c *Chain) run(ctx context.Context, value, filter string) (string, error) {
	c.logger.Debug("Running filter: %s", filter)

	stdout, stderr, err := c.executor.Execute(ctx, strings.NewReader(value), Shell, "-c", filter)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", fmt.Errorf("%w: '%s': %w", ErrFilterFailed, filter, ctxErr)
	}

	diag := logging.Redact(strings.TrimSpace(string(stderr)), []string{value})
	if err != nil {
		return "", fmt.Errorf("%w: '%s': %v%s", ErrFilterFailed, filter, err, formatStderr(diag))
	}

	out := trimNewline(stdout)
	if len(out) == 0 {
		return "", fmt.Errorf("%w: '%s' produced no output%s", ErrFilterFailed, filter, formatStderr(diag))
	}
	return string(out), nil
}

// trimNewline removes exactly one trailing "\n" or "\r\n".
func trimNewline(b []byte) []byte {
	if bytes.HasSuffix(b, []byte("\r\n")) {
		return b[:len(b)-2]
	}
	return bytes.TrimSuffix(b, []byte("\n"))
}

func formatStderr(diag string) string {
	if diag == "" {
		return ""
	}
	return "\n  stderr: " + diag
}
