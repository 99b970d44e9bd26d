// Package render reveals assistant content incrementally. Content events
// can arrive in large bursts; the driver fans them out rune by rune with a
// fixed inter-rune delay so a consuming view re-renders gradually,
// independent of how the producer chunked the stream.
package render

import (
	"sync"
	"time"

	"github.com/netpilot-ai/assistant-core/internal/model"
)

// Observer is notified exactly once per applied rune, after the target
// message was updated.
type Observer func(delta string)

// Driver applies content events to one open assistant message. A single
// worker goroutine consumes a FIFO queue, so deltas for the same message
// are never reordered or interleaved.
type Driver struct {
	target   *model.Message
	observe  Observer
	interval time.Duration

	queue chan string
	once  sync.Once
	done  chan struct{}
}

// NewDriver creates a driver for one turn's pending message. interval is
// the artificial per-rune delay; zero disables it. observe may be nil.
func NewDriver(target *model.Message, interval time.Duration, observe Observer) *Driver {
	d := &Driver{
		target:   target,
		observe:  observe,
		interval: interval,
		queue:    make(chan string, 256),
		done:     make(chan struct{}),
	}
	go d.run()
	return d
}

// Apply enqueues one content event's text. Calls must come from a single
// producer; order of application matches order of calls.
func (d *Driver) Apply(text string) {
	if text == "" {
		return
	}
	d.queue <- text
}

// Close stops accepting input, drains the queue, and waits until every
// queued rune has been applied.
func (d *Driver) Close() {
	d.once.Do(func() {
		close(d.queue)
	})
	<-d.done
}

func (d *Driver) run() {
	defer close(d.done)
	for text := range d.queue {
		for _, r := range text {
			d.target.Content += string(r)
			if d.observe != nil {
				d.observe(string(r))
			}
			if d.interval > 0 {
				time.Sleep(d.interval)
			}
		}
	}
}
