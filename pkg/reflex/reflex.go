// Package reflex maps injected sensor signals onto plans. Each active
// reflex inspects every signal; accepted signals contribute one plan
// apiece, and one reflex's failure never silences the others.
package reflex

import (
	"fmt"
	"log/slog"

	"github.com/connexhq/connex/pkg/event"
	"github.com/connexhq/connex/pkg/logger"
	"github.com/connexhq/connex/pkg/plan"
	"github.com/connexhq/connex/pkg/registry"
)

// Meta describes a reflex.
type Meta struct {
	Name        string
	Description string
}

// Reflex decides whether a signal warrants action and, when it does,
// produces the actions to run.
type Reflex interface {
	Meta() Meta
	Evaluate(sig *event.Signal) bool
	Plan(sig *event.Signal) ([]*plan.Action, error)
}

// Layer is the name-keyed registry of active reflexes.
type Layer struct {
	*registry.BaseRegistry[Reflex]
	log *slog.Logger
}

func NewLayer() *Layer {
	return &Layer{
		BaseRegistry: registry.NewBaseRegistry[Reflex](),
		log:          logger.GetLogger(),
	}
}

// Register installs a reflex, replacing any previous one of that name.
func (l *Layer) Register(r Reflex) {
	if l.Replace(r.Meta().Name, r) {
		l.log.Debug("replacing registered reflex", "reflex", r.Meta().Name)
	}
}

// ProcessEvent evaluates the signal against every active reflex and
// returns one plan per acceptance. Panics and errors inside a reflex
// are contained to that reflex.
func (l *Layer) ProcessEvent(sig *event.Signal) []*plan.Plan {
	var plans []*plan.Plan
	for _, name := range l.Names() {
		r, ok := l.Get(name)
		if !ok {
			continue
		}
		p := l.runReflex(name, r, sig)
		if p != nil {
			plans = append(plans, p)
		}
	}
	return plans
}

func (l *Layer) runReflex(name string, r Reflex, sig *event.Signal) (p *plan.Plan) {
	defer func() {
		if rec := recover(); rec != nil {
			l.log.Error("reflex panicked", "reflex", name, "signal", sig.Type, "panic", rec)
			p = nil
		}
	}()

	if !r.Evaluate(sig) {
		return nil
	}

	actions, err := r.Plan(sig)
	if err != nil {
		l.log.Error("reflex failed to produce a plan", "reflex", name, "signal", sig.Type, "error", err)
		return nil
	}
	if len(actions) == 0 {
		return nil
	}

	return &plan.Plan{
		Goal:    fmt.Sprintf("Reflex Trigger: %s", name),
		Actions: actions,
		Metadata: map[string]interface{}{
			"reflex":      name,
			"signal_type": sig.Type,
			"signal_id":   sig.ID,
		},
	}
}
