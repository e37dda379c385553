// Package cli holds terminal presentation helpers for curatorctl.
package cli

import (
	"fmt"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
)

const (
	ResetCode = "\033[0m"
	BoldCode  = "\033[1m"
	DimCode   = "\033[2m"
	Red       = "\033[31m"
	Green     = "\033[32m"
	Yellow    = "\033[33m"
	Blue      = "\033[34m"
	Purple    = "\033[35m"
	Cyan      = "\033[36m"
)

var (
	colorOnce    sync.Once
	colorEnabled bool
)

// Enabled reports whether stdout gets ANSI colors. NO_COLOR always wins.
func Enabled() bool {
	colorOnce.Do(func() {
		if _, ok := os.LookupEnv("NO_COLOR"); ok {
			return
		}
		colorEnabled = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	})
	return colorEnabled
}

// SetEnabled overrides terminal detection, e.g. for a --no-color flag.
func SetEnabled(on bool) {
	colorOnce.Do(func() {})
	colorEnabled = on
}

// Style wraps text in codes when colors are on.
func Style(text string, codes ...string) string {
	if !Enabled() || len(codes) == 0 {
		return text
	}
	var prefix string
	for _, c := range codes {
		prefix += c
	}
	return prefix + text + ResetCode
}

func Bold(text string) string { return Style(text, BoldCode) }
func Dim(text string) string  { return Style(text, DimCode) }

func CheckMark() string   { return Style("✔", Green) }
func CrossMark() string   { return Style("✘", Red) }
func WarningSign() string { return Style("!", Yellow) }
func Arrow() string       { return Style("➜", Blue) }

// State colors a connection state name.
func State(s string) string {
	switch s {
	case "connected":
		return Style(s, Green)
	case "connecting":
		return Style(s, Cyan)
	case "error":
		return Style(s, Red)
	default:
		return Dim(s)
	}
}

// Reliability colors a reliability status name.
func Reliability(s string) string {
	switch s {
	case "excellent":
		return Style(s, Green)
	case "good":
		return Style(s, Cyan)
	case "degraded":
		return Style(s, Yellow)
	default:
		return Style(s, Red)
	}
}

// Score renders a [0,1] score with three decimals, green at 0.7 and above,
// red below 0.4.
func Score(v float64) string {
	text := fmt.Sprintf("%.3f", v)
	switch {
	case v >= 0.7:
		return Style(text, Green)
	case v < 0.4:
		return Style(text, Red)
	default:
		return Style(text, Yellow)
	}
}
