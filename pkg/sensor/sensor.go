// Package sensor holds the long-running event producers: the voice ear
// and the time sensor. Each driver runs on its own goroutine, delivers
// signals through a thread-safe injector callback, and joins cleanly
// within one polling interval of Stop.
package sensor

import "github.com/connexhq/connex/pkg/event"

// Injector delivers one signal to the runtime. Implementations must be
// safe for concurrent use.
type Injector func(sig *event.Signal)
