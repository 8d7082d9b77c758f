package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// statusKind selects the severity tag and color for a status line.
type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const ansiReset = "\x1b[0m"

var statusPalette = map[statusKind]struct {
	tag   string
	color string
}{
	statusInfo:  {tag: "INFO", color: "\x1b[34m"},
	statusOK:    {tag: "OK", color: "\x1b[32m"},
	statusWarn:  {tag: "WARN", color: "\x1b[33m"},
	statusError: {tag: "ERROR", color: "\x1b[31m"},
}

func boolStatusKind(ok bool) statusKind {
	if ok {
		return statusOK
	}
	return statusWarn
}

const statusLabelWidth = 20

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	entry := statusPalette[kind]
	var b strings.Builder
	b.WriteString("  ")
	fmt.Fprintf(&b, "%-*s", statusLabelWidth, label+":")
	b.WriteString(" [")
	b.WriteString(entry.tag)
	b.WriteString("]")
	if message != "" {
		b.WriteString(" ")
		b.WriteString(message)
	}
	if colorize && entry.color != "" {
		return entry.color + b.String() + ansiReset
	}
	return b.String()
}

// renderSectionHeader returns the header line and its underline rule.
func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		blue := statusPalette[statusInfo].color
		line = blue + line + ansiReset
		rule = blue + rule + ansiReset
	}
	return []string{line, rule}
}

// shouldColorize enables ANSI output only when writing to a terminal.
func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
