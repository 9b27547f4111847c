// Package tagger writes merged metadata into media files via exiftool.
package tagger

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"ferry/internal/services"
	"ferry/internal/sidecar"
)

var commandContext = exec.CommandContext

// Client defines metadata tagging behaviour.
type Client interface {
	Apply(ctx context.Context, mediaPath string, meta *sidecar.Metadata) error
	Available() error
}

// Option configures the CLI client.
type Option func(*CLI)

// WithBinary overrides the default binary name.
func WithBinary(binary string) Option {
	return func(c *CLI) {
		if binary != "" {
			c.binary = binary
		}
	}
}

// WithTimeout bounds a single exiftool invocation.
func WithTimeout(timeout time.Duration) Option {
	return func(c *CLI) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// CLI wraps the exiftool command line tool.
type CLI struct {
	binary  string
	timeout time.Duration
}

// NewCLI constructs a CLI client using defaults.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{binary: "exiftool", timeout: 2 * time.Minute}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

// Apply writes the sidecar's taken time, GPS position, and description into
// the media file in place. A nil or empty metadata set is a no-op.
func (c *CLI) Apply(ctx context.Context, mediaPath string, meta *sidecar.Metadata) error {
	if mediaPath == "" {
		return services.Wrap(services.ErrValidation, "tagger", "apply", "media path required", nil)
	}
	args := buildArgs(meta)
	if len(args) == 0 {
		return nil
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	// -overwrite_original avoids litter in the extraction dir; the archive
	// itself is the backup until cleanup runs.
	args = append(args, "-overwrite_original", mediaPath)
	cmd := commandContext(ctx, c.binary, args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err != nil {
		return classifyExec(err, output)
	}
	return nil
}

// Available verifies the binary can be invoked.
func (c *CLI) Available() error {
	if _, err := exec.LookPath(c.binary); err != nil {
		return services.Wrap(services.ErrConfiguration, "tagger", "lookup",
			fmt.Sprintf("%s not found in PATH", c.binary), err)
	}
	return nil
}

func buildArgs(meta *sidecar.Metadata) []string {
	if meta == nil {
		return nil
	}
	var args []string
	if meta.TakenAt != nil {
		stamp := meta.TakenAt.UTC().Format("2006:01:02 15:04:05")
		args = append(args,
			"-DateTimeOriginal="+stamp,
			"-CreateDate="+stamp,
		)
	}
	if meta.Latitude != nil && meta.Longitude != nil {
		args = append(args,
			fmt.Sprintf("-GPSLatitude=%f", *meta.Latitude),
			fmt.Sprintf("-GPSLongitude=%f", *meta.Longitude),
			gpsRef("-GPSLatitudeRef", *meta.Latitude, "N", "S"),
			gpsRef("-GPSLongitudeRef", *meta.Longitude, "E", "W"),
		)
		if meta.Altitude != nil {
			args = append(args, fmt.Sprintf("-GPSAltitude=%f", *meta.Altitude))
		}
	}
	if meta.Description != "" {
		args = append(args, "-ImageDescription="+meta.Description)
	}
	return args
}

func gpsRef(tag string, value float64, positive, negative string) string {
	if value < 0 {
		return tag + "=" + negative
	}
	return tag + "=" + positive
}

func classifyExec(err error, output []byte) error {
	detail := strings.TrimSpace(string(output))
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTransient, "tagger", "apply", "exiftool timed out", err)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		msg := "exiftool rejected the file"
		if detail != "" {
			msg = fmt.Sprintf("exiftool rejected the file: %s", firstLine(detail))
		}
		return services.Wrap(services.ErrPermanent, "tagger", "apply", msg, err)
	}
	return services.Wrap(services.ErrTransient, "tagger", "apply", "invoke exiftool", err)
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

var _ Client = (*CLI)(nil)
