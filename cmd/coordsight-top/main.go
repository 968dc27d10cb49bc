// Package main is the entry point for the run result viewer.
package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"coordsight/internal/tui"
)

func main() {
	dir := flag.String("dir", "out", "run output directory")
	flag.Parse()

	summary, err := tui.LoadSummary(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "coordsight-top: %v\n", err)
		os.Exit(1)
	}

	p := tea.NewProgram(tui.New(summary), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "coordsight-top: %v\n", err)
		os.Exit(1)
	}
}
