package skill

import (
	"context"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// mcpSkill drives one tool on an MCP server declared by a component
// manifest of type "mcp". The connection is established lazily on the
// first Execute and reused afterwards.
type mcpSkill struct {
	Base
	command string
	args    []string
	env     map[string]string

	mu        sync.Mutex
	client    *client.Client
	toolName  string
	connected bool
}

func newMCPSkill(info *Info, m *Manifest) (*mcpSkill, error) {
	if m.Command == "" {
		return nil, fmt.Errorf("mcp component %q requires a command", info.Name)
	}
	toolName := m.Main
	if toolName == "" {
		toolName = info.Name
	}
	return &mcpSkill{
		Base:     NewBase(info),
		command:  m.Command,
		args:     m.Args,
		env:      m.Env,
		toolName: toolName,
	}, nil
}

func (s *mcpSkill) connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected {
		return nil
	}

	env := make([]string, 0, len(s.env))
	for k, v := range s.env {
		env = append(env, k+"="+v)
	}

	mcpClient, err := client.NewStdioMCPClient(s.command, env, s.args...)
	if err != nil {
		return fmt.Errorf("failed to create MCP client: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: "connex", Version: "1.0.0"}
	initReq.Params.ProtocolVersion = "2024-11-05"
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return fmt.Errorf("failed to initialize MCP session: %w", err)
	}

	s.client = mcpClient
	s.connected = true
	return nil
}

func (s *mcpSkill) Execute(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	if err := s.connect(ctx); err != nil {
		return nil, &Error{Skill: s.Info().Name, Action: "execute", Message: "MCP connection failed", Err: err}
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = s.toolName
	req.Params.Arguments = inputs

	resp, err := s.client.CallTool(ctx, req)
	if err != nil {
		return nil, &Error{Skill: s.Info().Name, Action: "execute", Message: "MCP call failed", Err: err}
	}
	return parseMCPResult(resp), nil
}

// parseMCPResult flattens text content blocks into the output map.
func parseMCPResult(resp *mcp.CallToolResult) map[string]interface{} {
	var text string
	for _, content := range resp.Content {
		if tc, ok := content.(mcp.TextContent); ok {
			text += tc.Text
		}
	}

	if resp.IsError {
		return map[string]interface{}{"success": false, "error": text}
	}
	return map[string]interface{}{"success": true, "result": text}
}

// Close shuts the MCP subprocess down.
func (s *mcpSkill) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil
	}
	s.connected = false
	return s.client.Close()
}

var _ Skill = (*mcpSkill)(nil)
