package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the tripchat banner and version to w.
func PrintBanner(w io.Writer, version string) {
	p := termenv.ColorProfile()
	lines := []struct {
		text  string
		color string
	}{
		{" _        _            _           _   ", "#38bdf8"},
		{"| |_ _ __(_)_ __   ___| |__   __ _| |_ ", "#22d3ee"},
		{"| __| '__| | '_ \\ / __| '_ \\ / _` | __|", "#2dd4bf"},
		{"| |_| |  | | |_) | (__| | | | (_| | |_ ", "#34d399"},
		{" \\__|_|  |_| .__/ \\___|_| |_|\\__,_|\\__|", "#4ade80"},
		{"           |_|                         ", "#a3e635"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w, termenv.String("  "+version).Faint())
	fmt.Fprintln(w)
}
