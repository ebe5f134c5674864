// Package builtin holds the skills compiled into the runtime.
package builtin

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/connexhq/connex/pkg/llm"
	"github.com/connexhq/connex/pkg/skill"
)

// ModelClient is the slice of the model router builtins use.
type ModelClient interface {
	Chat(ctx context.Context, class llm.TaskClass, messages []llm.Message, opts llm.ChatOptions) (string, error)
}

// Speaker vocalises text. Implementations block until speech finishes.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// GoalExecutor is the facade surface the agi_brain skill recurses into.
type GoalExecutor interface {
	ExecuteGoal(ctx context.Context, goal string, extra map[string]interface{}, speak bool) (map[string]interface{}, error)
}

// Deps are the collaborators builtins may need. Skills whose required
// collaborator is absent are skipped at registration.
type Deps struct {
	Models     ModelClient
	Speaker    Speaker
	IsSpeaking *atomic.Bool
	Brain      GoalExecutor
	HTTPClient *http.Client
}

// RegisterAll installs every builtin whose collaborators are present.
func RegisterAll(ctx context.Context, reg *skill.Registry, deps Deps) error {
	if deps.HTTPClient == nil {
		deps.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}

	var skills []skill.Skill
	skills = append(skills,
		NewFileManager(),
		NewDocumentReader(),
		NewCodeExecutor(),
		NewWebSearch(deps.HTTPClient),
	)
	if deps.Models != nil {
		skills = append(skills,
			NewGeneralChat(deps.Models),
			NewTextAnalyzer(deps.Models),
			NewEmotionDetector(deps.Models),
		)
	}
	if deps.Speaker != nil && deps.IsSpeaking != nil {
		skills = append(skills, NewSpeak(deps.Speaker, deps.IsSpeaking))
	}
	if deps.Brain != nil {
		skills = append(skills, NewAGIBrain(deps.Brain))
	}

	for _, s := range skills {
		if err := reg.Register(ctx, s); err != nil {
			return err
		}
	}
	return nil
}
