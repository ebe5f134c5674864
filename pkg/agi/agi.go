// Package agi wires the runtime together: model router, memory, stores,
// skills, perception, reflexes, sensors and the orchestrator behind one
// facade.
package agi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/connexhq/connex/pkg/config"
	"github.com/connexhq/connex/pkg/corrector"
	"github.com/connexhq/connex/pkg/event"
	"github.com/connexhq/connex/pkg/llm"
	"github.com/connexhq/connex/pkg/logger"
	"github.com/connexhq/connex/pkg/memory"
	"github.com/connexhq/connex/pkg/orchestrator"
	"github.com/connexhq/connex/pkg/perception"
	"github.com/connexhq/connex/pkg/plan"
	"github.com/connexhq/connex/pkg/planner"
	"github.com/connexhq/connex/pkg/reflex"
	"github.com/connexhq/connex/pkg/sensor"
	"github.com/connexhq/connex/pkg/skill"
	"github.com/connexhq/connex/pkg/skill/builtin"
	"github.com/connexhq/connex/pkg/store"
	"github.com/connexhq/connex/pkg/vector"
)

// AGI is the runtime facade. Construct with New, then call Initialize
// once; Execute and InjectEvent are safe for concurrent use afterwards.
type AGI struct {
	settings *config.Settings
	models   *llm.Router

	store  *store.Store
	skills *skill.Registry
	index  vector.Provider

	perception *perception.Layer
	reflexes   *reflex.Layer
	planner    *planner.Planner
	corrector  *corrector.Corrector
	orch       *orchestrator.Orchestrator

	shortTerm *memory.ShortTerm
	longTerm  *memory.LongTerm

	speaker    builtin.Speaker
	recognizer sensor.Recognizer
	isSpeaking atomic.Bool

	timeSensor *sensor.TimeSensor
	voiceEar   *sensor.VoiceEar

	httpClient *http.Client

	bgCtx    context.Context
	bgCancel context.CancelFunc
	bg       sync.WaitGroup

	log *slog.Logger
}

// New builds the runtime from environment-configured model providers.
func New(settings *config.Settings) (*AGI, error) {
	models, err := llm.NewRouter()
	if err != nil {
		return nil, err
	}
	return NewWithModels(settings, models)
}

// NewWithModels builds the runtime around an existing model router.
func NewWithModels(settings *config.Settings, models *llm.Router) (*AGI, error) {
	if err := settings.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to prepare data directory: %w", err)
	}

	db, err := store.OpenSQLite(settings.StoreDBPath)
	if err != nil {
		return nil, err
	}
	skillStore, err := skill.OpenStore(settings.SkillDBPath)
	if err != nil {
		db.Close()
		return nil, err
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	a := &AGI{
		settings:   settings,
		models:     models,
		store:      db,
		skills:     skill.NewRegistry(skillStore, models, settings.DataDir),
		reflexes:   reflex.NewLayer(),
		shortTerm:  memory.NewShortTerm(settings.ShortTermCapacity),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		bgCtx:      bgCtx,
		bgCancel:   bgCancel,
		log:        logger.GetLogger(),
	}

	a.perception = perception.NewLayer(db, models)
	a.longTerm = memory.NewLongTerm(db, models, settings.RecallThreshold)

	if idx, err := vector.FromEnv(settings.DataDir); err != nil {
		a.log.Warn("vector index unavailable, similarity search uses stored embeddings only", "error", err)
	} else {
		a.index = idx
		a.skills.SetIndex(idx)
		a.longTerm.SetIndex(idx)
		a.perception.SetIndex(idx)
	}

	a.planner = planner.New(models)
	a.planner.SetSensors(a.perception)
	a.corrector = corrector.New(models)

	a.orch = orchestrator.New(a.skills, orchestrator.Options{
		DefaultTimeout: settings.ActionTimeout,
		SelfCorrection: settings.SelfCorrection,
	})
	a.orch.SetCorrector(a.corrector)
	a.orch.SetReplanner(a.planner)

	reflex.RegisterBuiltins(a.reflexes)
	return a, nil
}

// SetSpeaker attaches a text-to-speech output. Call before Initialize.
func (a *AGI) SetSpeaker(s builtin.Speaker) { a.speaker = s }

// SetRecognizer attaches a speech recognizer; the voice ear starts on
// Initialize when one is present. Call before Initialize.
func (a *AGI) SetRecognizer(r sensor.Recognizer) { a.recognizer = r }

// Skills exposes the skill registry.
func (a *AGI) Skills() *skill.Registry { return a.skills }

// Store exposes the persistent store.
func (a *AGI) Store() *store.Store { return a.store }

// Memory exposes the short-term conversation ring.
func (a *AGI) Memory() *memory.ShortTerm { return a.shortTerm }

// LongTerm exposes the durable memory tier.
func (a *AGI) LongTerm() *memory.LongTerm { return a.longTerm }

// Initialize registers builtins, populates embeddings, loads dynamic
// components and starts the sensors and background loops.
func (a *AGI) Initialize(ctx context.Context) error {
	a.applyStoredConfig(ctx)

	deps := builtin.Deps{
		Models:     a.models,
		Speaker:    a.speaker,
		IsSpeaking: &a.isSpeaking,
		Brain:      a,
		HTTPClient: a.httpClient,
	}
	if err := builtin.RegisterAll(ctx, a.skills, deps); err != nil {
		return fmt.Errorf("failed to register builtin skills: %w", err)
	}
	if err := perception.RegisterBuiltins(ctx, a.perception, perception.Deps{HTTPClient: a.httpClient}); err != nil {
		return fmt.Errorf("failed to register builtin perceptions: %w", err)
	}

	skillDirs := append([]string{filepath.Join(a.settings.DataDir, "skills")}, a.settings.SkillDirs...)
	for _, dir := range skillDirs {
		if n, err := a.skills.LoadDirectory(ctx, dir); err != nil {
			a.log.Warn("dynamic skill directory failed to load", "dir", dir, "error", err)
		} else if n > 0 {
			a.log.Info("loaded dynamic skills", "dir", dir, "count", n)
		}
	}
	perceptionDirs := append([]string{filepath.Join(a.settings.DataDir, "perceptions")}, a.settings.PerceptionDirs...)
	for _, dir := range perceptionDirs {
		if n, err := a.perception.LoadDirectory(ctx, dir); err != nil {
			a.log.Warn("dynamic perception directory failed to load", "dir", dir, "error", err)
		} else if n > 0 {
			a.log.Info("loaded dynamic perceptions", "dir", dir, "count", n)
		}
	}

	if n, err := a.skills.EnsureEmbeddings(ctx); err != nil {
		a.log.Warn("skill embeddings incomplete", "embedded", n, "error", err)
	}
	if n, err := a.perception.EnsureEmbeddings(ctx); err != nil {
		a.log.Warn("perception embeddings incomplete", "embedded", n, "error", err)
	}

	a.timeSensor = sensor.NewTimeSensor(a.settings.TimeEventsPath, a.InjectEvent)
	if err := a.timeSensor.Start(a.bgCtx); err != nil {
		a.log.Warn("time sensor failed to start", "error", err)
		a.timeSensor = nil
	}
	if a.recognizer != nil {
		a.voiceEar = sensor.NewVoiceEar(a.recognizer, a.InjectEvent, &a.isSpeaking)
		if err := a.voiceEar.Start(a.bgCtx); err != nil {
			a.log.Warn("voice ear failed to start", "error", err)
			a.voiceEar = nil
		}
	}

	a.bg.Add(1)
	go func() {
		defer a.bg.Done()
		a.reviewLoop(a.bgCtx)
	}()

	a.log.Info("runtime initialized",
		"skills", a.skills.Count(),
		"perceptions", a.perception.Count(),
		"reflexes", a.reflexes.Count())
	return nil
}

// Shutdown stops sensors and background loops and closes the stores.
func (a *AGI) Shutdown() {
	a.bgCancel()
	if a.timeSensor != nil {
		a.timeSensor.Stop()
	}
	if a.voiceEar != nil {
		a.voiceEar.Stop()
	}
	a.bg.Wait()

	if err := a.skills.Store().Close(); err != nil {
		a.log.Warn("skill store close failed", "error", err)
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("store close failed", "error", err)
	}
	if a.index != nil {
		if err := a.index.Close(); err != nil {
			a.log.Warn("vector index close failed", "error", err)
		}
	}
}

// applyStoredConfig lets database values shadow environment settings.
func (a *AGI) applyStoredConfig(ctx context.Context) {
	a.settings.ServerAddr = a.store.GetConfigString(ctx, "server_addr", a.settings.ServerAddr)
	a.settings.SkillRegistryURL = a.store.GetConfigString(ctx, "skill_registry_url", a.settings.SkillRegistryURL)

	var selfCorrection bool
	if ok, err := a.store.GetConfig(ctx, "self_correction", &selfCorrection); err == nil && ok {
		a.settings.SelfCorrection = selfCorrection
	}
}

// InjectEvent is the thread-safe sensor ingress: reflexes turn the
// signal into plans, and each plan executes concurrently with its own
// execution state.
func (a *AGI) InjectEvent(sig *event.Signal) {
	plans := a.reflexes.ProcessEvent(sig)
	for _, p := range plans {
		a.bg.Add(1)
		go func(p *plan.Plan) {
			defer a.bg.Done()
			res, err := a.orch.Execute(a.bgCtx, p)
			switch {
			case err != nil:
				a.log.Error("reflex plan failed", "goal", p.Goal, "error", err)
			case !res.Success:
				a.log.Warn("reflex plan did not complete", "goal", p.Goal, "errors", res.Errors)
			default:
				a.log.Info("reflex plan completed", "goal", p.Goal)
				a.rememberTurn(p.Goal, extractReply(res.Output))
			}
		}(p)
	}
}

// rememberTurn records a completed exchange and folds evictions into
// the rolling summary off the hot path.
func (a *AGI) rememberTurn(goal, reply string) {
	evicted := a.shortTerm.Add(goal, reply)
	if len(evicted) == 0 {
		return
	}
	a.bg.Add(1)
	go func() {
		defer a.bg.Done()
		ctx, cancel := context.WithTimeout(a.bgCtx, 30*time.Second)
		defer cancel()
		if err := a.shortTerm.Summarize(ctx, a.models, evicted); err != nil {
			a.log.Debug("summary update failed", "error", err)
		}
	}()
}
