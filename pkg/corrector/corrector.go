// Package corrector repairs failed actions in place by asking a model
// to patch the inputs that caused the failure.
package corrector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/connexhq/connex/pkg/llm"
	"github.com/connexhq/connex/pkg/logger"
	"github.com/connexhq/connex/pkg/utils"
)

// ModelClient is the slice of the model router the corrector uses.
type ModelClient interface {
	Chat(ctx context.Context, class llm.TaskClass, messages []llm.Message, opts llm.ChatOptions) (string, error)
}

type Corrector struct {
	models ModelClient
	log    *slog.Logger
}

func New(models ModelClient) *Corrector {
	return &Corrector{models: models, log: logger.GetLogger()}
}

const correctionPrompt = `An action failed because of bad inputs. Analyse
the error, keep the action's intent, and fix only what caused the
failure. Respond with a single JSON object containing the complete
corrected inputs and nothing else.`

// Correct returns a patched input map, or nil when no repair could be
// produced. It never returns an error: any failure means no patch.
func (c *Corrector) Correct(ctx context.Context, skillName string, originalInputs map[string]interface{}, errorMessage string) map[string]interface{} {
	inputsJSON, err := json.Marshal(originalInputs)
	if err != nil {
		return nil
	}

	prompt := fmt.Sprintf("Skill: %s\nInputs: %s\nError: %s", skillName, inputsJSON, errorMessage)
	raw, err := c.models.Chat(ctx, llm.TaskCoding,
		[]llm.Message{{Role: llm.RoleUser, Content: prompt}},
		llm.ChatOptions{SystemPrompt: correctionPrompt})
	if err != nil {
		c.log.Debug("correction model call failed", "skill", skillName, "error", err)
		return nil
	}

	patched, err := utils.ExtractJSONMap(raw)
	if err != nil {
		c.log.Debug("correction output was not a JSON object", "skill", skillName, "error", err)
		return nil
	}
	if len(patched) == 0 {
		return nil
	}
	return patched
}
