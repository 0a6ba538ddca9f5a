// Package hotkey provides the global session-toggle hotkey via gohook.
package hotkey

import (
	"sync"

	hook "github.com/robotn/gohook"
)

// Toggle emits an event on each press of the configured key combo. One
// press starts a note session, the next stops it.
type Toggle struct {
	keys []string
	ch   chan struct{}
	done chan struct{}
	once sync.Once
}

// NewToggle creates a Toggle for the given key combo.
// keys should be lowercase key names (e.g., ["ctrl", "shift", "n"]).
func NewToggle(keys []string) *Toggle {
	return &Toggle{
		keys: keys,
		ch:   make(chan struct{}, 4),
		done: make(chan struct{}),
	}
}

// Events returns the channel that receives toggle events.
// The channel is closed when Stop is called.
func (t *Toggle) Events() <-chan struct{} {
	return t.ch
}

// Start begins listening for the global hotkey.
// This function blocks until Stop is called. Run it in a goroutine.
func (t *Toggle) Start() {
	hook.Register(hook.KeyDown, t.keys, func(e hook.Event) {
		select {
		case t.ch <- struct{}{}:
		default: // don't block the hook thread if the channel is full
		}
	})

	evChan := hook.Start()
	go func() {
		<-t.done
		hook.End()
	}()
	<-hook.Process(evChan)
	close(t.ch)
}

// Stop terminates the hotkey listener. Safe to call multiple times.
func (t *Toggle) Stop() {
	t.once.Do(func() {
		close(t.done)
	})
}
