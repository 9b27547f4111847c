package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// severity ranks a status line for coloring and the bracketed tag.
type severity int

const (
	severityInfo severity = iota
	severityOK
	severityWarn
	severityError
)

const (
	ansiReset  = "\x1b[0m"
	ansiBold   = "\x1b[1m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiCyan   = "\x1b[36m"
)

func (s severity) tag() string {
	switch s {
	case severityOK:
		return "ok"
	case severityWarn:
		return "warn"
	case severityError:
		return "error"
	default:
		return "info"
	}
}

func (s severity) color() string {
	switch s {
	case severityOK:
		return ansiGreen
	case severityWarn:
		return ansiYellow
	case severityError:
		return ansiRed
	default:
		return ansiCyan
	}
}

// renderStatusLine formats one "label  tag  message" row. Only the tag is
// colored so the message stays readable on themed terminals.
func renderStatusLine(label string, sev severity, message string, colorize bool) string {
	tag := fmt.Sprintf("%-5s", sev.tag())
	if colorize {
		tag = sev.color() + tag + ansiReset
	}
	line := fmt.Sprintf("  %-14s %s", label, tag)
	if message != "" {
		line += "  " + message
	}
	return line
}

// renderSectionHeader formats a section title as an uppercase banner.
func renderSectionHeader(title string, colorize bool) string {
	banner := strings.ToUpper(strings.TrimSpace(title))
	if colorize {
		return ansiBold + banner + ansiReset
	}
	return banner
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
