package sensor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/connexhq/connex/pkg/event"
	"github.com/connexhq/connex/pkg/logger"
)

// Recognizer streams recognized speech fragments from the microphone.
// The channel closes when the underlying source ends.
type Recognizer interface {
	Chunks(ctx context.Context) (<-chan string, error)
}

const defaultDebounce = 1500 * time.Millisecond

// VoiceEar accumulates recognized fragments and emits one voice_input
// signal per utterance, delimited by a silence debounce window. While
// the shared speaking flag is set, incoming fragments are dropped so
// the assistant does not hear itself.
type VoiceEar struct {
	recognizer Recognizer
	inject     Injector
	speaking   *atomic.Bool
	debounce   time.Duration

	cancel context.CancelFunc
	done   chan struct{}
	log    *slog.Logger
}

func NewVoiceEar(recognizer Recognizer, inject Injector, speaking *atomic.Bool) *VoiceEar {
	return &VoiceEar{
		recognizer: recognizer,
		inject:     inject,
		speaking:   speaking,
		debounce:   defaultDebounce,
		log:        logger.GetLogger(),
	}
}

// SetDebounce overrides the silence window; values <= 0 are ignored.
func (e *VoiceEar) SetDebounce(d time.Duration) {
	if d > 0 {
		e.debounce = d
	}
}

// Start begins consuming the recognizer. Returns once the stream is
// established.
func (e *VoiceEar) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	chunks, err := e.recognizer.Chunks(ctx)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to start speech recognition: %w", err)
	}

	e.cancel = cancel
	e.done = make(chan struct{})
	go e.run(ctx, chunks)
	return nil
}

// Stop cancels the driver and waits for the goroutine to exit.
func (e *VoiceEar) Stop() {
	if e.cancel == nil {
		return
	}
	e.cancel()
	<-e.done
}

func (e *VoiceEar) run(ctx context.Context, chunks <-chan string) {
	defer close(e.done)

	var parts []string
	timer := time.NewTimer(e.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	flush := func() {
		if len(parts) == 0 {
			return
		}
		text := strings.TrimSpace(strings.Join(parts, " "))
		parts = nil
		if text == "" {
			return
		}
		e.log.Debug("voice utterance complete", "text", text)
		e.inject(event.NewSignal(event.SignalVoiceInput, map[string]interface{}{
			"text":      text,
			"status":    "success",
			"timestamp": time.Now().Format(time.RFC3339),
		}))
	}

	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-chunks:
			if !ok {
				flush()
				return
			}
			if e.speaking != nil && e.speaking.Load() {
				continue
			}
			chunk = strings.TrimSpace(chunk)
			if chunk == "" {
				continue
			}
			parts = append(parts, chunk)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(e.debounce)
		case <-timer.C:
			flush()
		}
	}
}
