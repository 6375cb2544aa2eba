package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/christian-oudard/pdf-conversion/internal/pipeline"
)

// consoleProgress prints batch lifecycle events to the terminal.
type consoleProgress struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *consoleProgress) BatchStart(b pipeline.Batch) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "reviewing pages %d-%d (%d pages)\n", b.Key.Start, b.Key.End, len(b.Pages))
}

func (p *consoleProgress) BatchDone(b pipeline.Batch, state pipeline.State, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		fmt.Fprintf(p.w, "pages %d-%d failed: %v\n", b.Key.Start, b.Key.End, err)
		return
	}
	fmt.Fprintf(p.w, "pages %d-%d %s\n", b.Key.Start, b.Key.End, state)
}
