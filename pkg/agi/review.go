package agi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/connexhq/connex/pkg/llm"
	"github.com/connexhq/connex/pkg/skill"
	"github.com/connexhq/connex/pkg/store"
	"github.com/connexhq/connex/pkg/utils"
)

const (
	// Remote skills below these bars are not auto-installed.
	minRemoteRating    = 4.0
	minRemoteDownloads = 100

	reviewBackoffMax = time.Hour
)

// reviewLoop periodically inspects the missing-skill log and tries to
// close the gaps: install a well-rated remote skill when the registry
// has one, otherwise generate a new command skill. Failures back off;
// the loop never blocks goal execution.
func (a *AGI) reviewLoop(ctx context.Context) {
	interval := a.settings.SkillReviewInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	backoff := interval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if err := a.reviewSkillRequests(ctx); err != nil {
			a.log.Warn("skill review pass failed", "error", err)
			backoff *= 2
			if backoff > reviewBackoffMax {
				backoff = reviewBackoffMax
			}
		} else {
			backoff = interval
		}
		timer.Reset(backoff)
	}
}

func (a *AGI) reviewSkillRequests(ctx context.Context) error {
	requests, err := a.store.ListSkillRequests(ctx, store.SkillRequestPending)
	if err != nil {
		return err
	}

	for _, req := range requests {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		status := store.SkillRequestFailed
		if a.settings.SkillRegistryURL != "" {
			if installed, err := a.installRemoteSkill(ctx, req.Query); err != nil {
				a.log.Debug("remote skill lookup failed", "query", req.Query, "error", err)
			} else if installed {
				status = store.SkillRequestFoundRemote
			}
		}
		if status == store.SkillRequestFailed {
			if created, err := a.generateSkill(ctx, req.Query); err != nil {
				a.log.Debug("skill generation failed", "query", req.Query, "error", err)
			} else if created {
				status = store.SkillRequestCreated
			}
		}

		if err := a.store.UpdateSkillRequestStatus(ctx, req.Query, status); err != nil {
			a.log.Warn("failed to update skill request", "query", req.Query, "error", err)
		}
	}
	return nil
}

type remoteSkill struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Rating      float64           `json:"rating"`
	Downloads   int               `json:"downloads"`
	Files       map[string]string `json:"files"`
}

// installRemoteSkill queries the remote registry and installs the best
// candidate clearing the rating and download bars.
func (a *AGI) installRemoteSkill(ctx context.Context, query string) (bool, error) {
	endpoint := fmt.Sprintf("%s/search?q=%s", strings.TrimRight(a.settings.SkillRegistryURL, "/"), url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("skill registry returned status %d", resp.StatusCode)
	}

	var candidates []remoteSkill
	if err := json.NewDecoder(resp.Body).Decode(&candidates); err != nil {
		return false, fmt.Errorf("failed to decode registry response: %w", err)
	}

	for _, c := range candidates {
		if c.Rating < minRemoteRating || c.Downloads < minRemoteDownloads || len(c.Files) == 0 {
			continue
		}
		if err := a.installComponent(ctx, c.Name, c.Files); err != nil {
			a.log.Warn("remote skill install failed", "skill", c.Name, "error", err)
			continue
		}
		a.log.Info("installed remote skill", "skill", c.Name, "rating", c.Rating)
		return true, nil
	}
	return false, nil
}

// generateSkill asks the coding model for a complete command component
// and installs it.
func (a *AGI) generateSkill(ctx context.Context, query string) (bool, error) {
	raw, err := a.models.Chat(ctx, llm.TaskCoding,
		[]llm.Message{{Role: llm.RoleUser, Content: fmt.Sprintf("Needed capability: %s", query)}},
		llm.ChatOptions{SystemPrompt: generateSkillPrompt})
	if err != nil {
		return false, err
	}

	parsed, err := utils.ExtractJSONMap(raw)
	if err != nil {
		return false, fmt.Errorf("generated skill was not valid JSON: %w", err)
	}
	name, _ := parsed["name"].(string)
	script, _ := parsed["script"].(string)
	description, _ := parsed["description"].(string)
	if name == "" || script == "" {
		return false, fmt.Errorf("generated skill is missing name or script")
	}
	name = sanitizeComponentName(name)

	manifest, err := json.MarshalIndent(skill.Manifest{
		Name:        name,
		Type:        "command",
		Main:        "agent.py",
		Description: description,
		Category:    "generated",
		Version:     "0.1.0",
	}, "", "  ")
	if err != nil {
		return false, err
	}

	files := map[string]string{
		skill.ManifestName: string(manifest),
		"agent.py":         script,
	}
	if err := a.installComponent(ctx, name, files); err != nil {
		return false, err
	}
	a.log.Info("generated new skill", "skill", name, "query", query)
	return true, nil
}

const generateSkillPrompt = `Write a new skill as a python script. The
script reads a JSON object of inputs from stdin and writes a JSON
object of outputs (including a boolean "success") to stdout, using only
the python standard library. Respond with a single JSON object:
{"name": "<snake_case_name>", "description": "<one line>", "script": "<full python source>"}`

// installComponent writes the component files and registers it.
func (a *AGI) installComponent(ctx context.Context, name string, files map[string]string) error {
	dir := filepath.Join(a.settings.DataDir, "skills", name)
	for rel, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return err
		}
	}

	s, err := skill.LoadComponent(dir)
	if err != nil {
		return err
	}
	if s == nil {
		return fmt.Errorf("component %s has no manifest", name)
	}
	return a.skills.Register(ctx, s)
}

func sanitizeComponentName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			sb.WriteRune(r)
		case r == ' ':
			sb.WriteRune('_')
		}
	}
	if sb.Len() == 0 {
		return "generated_skill"
	}
	return sb.String()
}
