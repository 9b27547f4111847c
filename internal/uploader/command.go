package uploader

import (
	"context"
	"errors"
	"os/exec"
	"strings"

	"ferry/internal/services"
)

var commandContext = exec.CommandContext

// Command delivers media by invoking an external uploader program once per
// file. The program receives the media path followed by one --album flag per
// resolved album and must print the remote identifier on stdout.
type Command struct {
	binary string
	args   []string
}

// NewCommand builds an exec-backed uploader from the configured command line.
// The first token is the binary, the rest are fixed leading arguments.
func NewCommand(command string) (*Command, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "uploader", "init",
			"uploader command is not configured", nil)
	}
	return &Command{binary: fields[0], args: fields[1:]}, nil
}

// Upload runs the command and returns the trimmed first line of its output.
func (c *Command) Upload(ctx context.Context, mediaPath string, albumNames []string) (string, error) {
	args := append([]string(nil), c.args...)
	args = append(args, mediaPath)
	for _, album := range albumNames {
		args = append(args, "--album", album)
	}

	cmd := commandContext(ctx, c.binary, args...) //nolint:gosec
	output, err := cmd.Output()
	if err != nil {
		return "", classifyCommand(err)
	}

	remoteID := firstLine(string(output))
	if remoteID == "" {
		return "", services.Wrap(services.ErrTransient, "uploader", "upload",
			"uploader command produced no remote id", nil)
	}
	return remoteID, nil
}

// HealthCheck verifies the binary is resolvable.
func (c *Command) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := exec.LookPath(c.binary); err != nil {
		return services.Wrap(services.ErrConfiguration, "uploader", "health",
			"uploader command not found on PATH", err)
	}
	return nil
}

func classifyCommand(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return services.Wrap(services.ErrTransient, "uploader", "upload", "uploader command timed out", err)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		detail := firstLine(string(exitErr.Stderr))
		if detail == "" {
			detail = exitErr.String()
		}
		// Non-zero exit is retried: upload services throw transient errors
		// (quota, connectivity) far more often than permanent ones, and the
		// attempt cap bounds the damage when it really is permanent.
		return services.Wrap(services.ErrTransient, "uploader", "upload", detail, err)
	}
	return services.Wrap(services.ErrTransient, "uploader", "upload", "uploader command failed", err)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

var _ Client = (*Command)(nil)
