// Package logger prints levelled, coloured console logs.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
)

var (
	mu      sync.Mutex
	out     io.Writer = os.Stdout
	debugOn           = os.Getenv("LOG_DEBUG") == "true"

	gray   = color.New(color.FgHiBlack)
	blue   = color.New(color.FgBlue)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
	cyan   = color.New(color.FgCyan)
	green  = color.New(color.FgGreen)
	purple = color.New(color.FgMagenta)
)

// SetOutput redirects all log lines, mainly for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	out = w
	mu.Unlock()
}

func SetDebug(on bool) {
	mu.Lock()
	debugOn = on
	mu.Unlock()
}

func write(c *color.Color, prefix, format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	ts := gray.Sprintf("[%s]", time.Now().Format("15:04:05"))
	fmt.Fprintf(out, "%s %s\n", ts, c.Sprintf(prefix+format, args...))
}

func Info(format string, args ...any) {
	write(blue, "", format, args...)
}

func Success(format string, args ...any) {
	write(green, "✓ ", format, args...)
}

func Warn(format string, args ...any) {
	write(yellow, "⚠ ", format, args...)
}

func Error(format string, args ...any) {
	write(red, "✗ ", format, args...)
}

// Debug is silent unless LOG_DEBUG=true or SetDebug(true).
func Debug(format string, args ...any) {
	mu.Lock()
	on := debugOn
	mu.Unlock()
	if on {
		write(cyan, "DEBUG: ", format, args...)
	}
}

// Request logs one served HTTP request, coloured by status class.
func Request(method, path string, status int, d time.Duration) {
	var c *color.Color
	switch {
	case status < 300:
		c = green
	case status < 400:
		c = cyan
	case status < 500:
		c = yellow
	default:
		c = red
	}

	var dur string
	switch {
	case d < time.Millisecond:
		dur = fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		dur = fmt.Sprintf("%dms", d.Milliseconds())
	default:
		dur = fmt.Sprintf("%.2fs", d.Seconds())
	}

	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintf(out, "%s %s %-40s %s %s\n",
		gray.Sprintf("[%s]", time.Now().Format("15:04:05")),
		purple.Sprintf("%-6s", method),
		path,
		c.Sprintf("[%d]", status),
		gray.Sprintf("(%s)", dur),
	)
}
