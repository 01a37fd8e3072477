package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

var bannerLines = []struct {
	text, color string
}{
	{`  __      __                         `, "#fbbf24"},
	{`  \ \    / /_ _ _ _ _ __             `, "#f59e0b"},
	{`   \ \/\/ / _' | '_| '  \   transfer`, "#f97316"},
	{`    \_/\_/\__,_|_| |_|_|_|           `, "#ef4444"},
}

// PrintBanner writes the server banner to w, coloured when w supports it.
func PrintBanner(w io.Writer) {
	out := termenv.NewOutput(w)
	p := out.ColorProfile()

	fmt.Fprintln(w)
	for _, l := range bannerLines {
		fmt.Fprintln(w, out.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w)
}
