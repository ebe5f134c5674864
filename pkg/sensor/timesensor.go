package sensor

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/connexhq/connex/pkg/event"
	"github.com/connexhq/connex/pkg/logger"
)

const (
	defaultPollInterval = 30 * time.Second
	triggerWindow       = 5 * time.Minute
)

// ScheduledEvent is one entry in the time-events file.
type ScheduledEvent struct {
	ID          string                 `json:"id"`
	Type        string                 `json:"type"`
	TriggerTime string                 `json:"trigger_time"`
	Description string                 `json:"description"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
}

type schedule struct {
	Events []ScheduledEvent `json:"events"`
}

// TimeSensor polls a JSON schedule and emits a time_event signal when
// an entry's trigger time falls within [t, t+5m). Each id fires at most
// once per process. File edits are picked up immediately via fsnotify;
// the poll ticker is the fallback.
type TimeSensor struct {
	path     string
	interval time.Duration
	inject   Injector
	now      func() time.Time

	mu      sync.Mutex
	emitted map[string]bool

	cancel context.CancelFunc
	done   chan struct{}
	log    *slog.Logger
}

func NewTimeSensor(path string, inject Injector) *TimeSensor {
	return &TimeSensor{
		path:     path,
		interval: defaultPollInterval,
		inject:   inject,
		now:      time.Now,
		emitted:  make(map[string]bool),
		log:      logger.GetLogger(),
	}
}

// SetInterval overrides the poll cadence; values <= 0 are ignored.
func (t *TimeSensor) SetInterval(d time.Duration) {
	if d > 0 {
		t.interval = d
	}
}

// Start begins polling. The schedule file may not exist yet.
func (t *TimeSensor) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		t.log.Warn("file watcher unavailable, polling only", "error", err)
		watcher = nil
	} else if err := watcher.Add(t.path); err != nil {
		// The file may appear later; the ticker still covers it.
		t.log.Debug("time-events file not watchable yet", "path", t.path, "error", err)
	}

	go t.run(ctx, watcher)
	return nil
}

// Stop cancels the sensor and waits for the goroutine to exit.
func (t *TimeSensor) Stop() {
	if t.cancel == nil {
		return
	}
	t.cancel()
	<-t.done
}

func (t *TimeSensor) run(ctx context.Context, watcher *fsnotify.Watcher) {
	defer close(t.done)
	if watcher != nil {
		defer watcher.Close()
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.check()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.check()
		case ev, ok := <-watcherEvents(watcher):
			if !ok {
				continue
			}
			if ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Create) {
				t.check()
			}
		case err, ok := <-watcherErrors(watcher):
			if ok && err != nil {
				t.log.Debug("file watcher error", "error", err)
			}
		}
	}
}

func watcherEvents(w *fsnotify.Watcher) chan fsnotify.Event {
	if w == nil {
		return nil
	}
	return w.Events
}

func watcherErrors(w *fsnotify.Watcher) chan error {
	if w == nil {
		return nil
	}
	return w.Errors
}

func (t *TimeSensor) check() {
	data, err := os.ReadFile(t.path)
	if err != nil {
		if !os.IsNotExist(err) {
			t.log.Warn("failed to read time-events file", "path", t.path, "error", err)
		}
		return
	}

	var sched schedule
	if err := json.Unmarshal(data, &sched); err != nil {
		t.log.Warn("time-events file is not valid JSON", "path", t.path, "error", err)
		return
	}

	now := t.now()
	for _, ev := range sched.Events {
		if ev.ID == "" {
			continue
		}
		trigger, err := time.Parse(time.RFC3339, ev.TriggerTime)
		if err != nil {
			t.log.Warn("scheduled event has invalid trigger_time", "id", ev.ID, "value", ev.TriggerTime)
			continue
		}
		if now.Before(trigger) || now.Sub(trigger) >= triggerWindow {
			continue
		}

		t.mu.Lock()
		already := t.emitted[ev.ID]
		if !already {
			t.emitted[ev.ID] = true
		}
		t.mu.Unlock()
		if already {
			continue
		}

		t.log.Info("scheduled event due", "id", ev.ID, "description", ev.Description)
		t.inject(event.NewSignal(event.SignalTimeEvent, map[string]interface{}{
			"id":           ev.ID,
			"event_type":   ev.Type,
			"trigger_time": ev.TriggerTime,
			"description":  ev.Description,
			"payload":      ev.Payload,
		}))
	}
}
