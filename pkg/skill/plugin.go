package skill

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"net/rpc"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/hashicorp/go-hclog"
	goplugin "github.com/hashicorp/go-plugin"
)

// Handshake guards against launching arbitrary binaries as plugins.
var Handshake = goplugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "CONNEX_PLUGIN",
	MagicCookieValue: "connex-skill-v1",
}

func init() {
	// Input maps travel over net/rpc as gob; register the concrete
	// types JSON decoding produces.
	gob.Register(map[string]interface{}{})
	gob.Register([]interface{}{})
}

// PluginExecutor is the RPC surface a plugin process implements.
type PluginExecutor interface {
	Execute(inputs map[string]interface{}) (map[string]interface{}, error)
}

// ExecuteArgs and ExecuteReply are the RPC wire types.
type ExecuteArgs struct {
	Inputs map[string]interface{}
}

type ExecuteReply struct {
	Outputs map[string]interface{}
	Err     string
}

// skillPlugin implements go-plugin's Plugin for the net/rpc transport.
type skillPlugin struct {
	Impl PluginExecutor
}

func (p *skillPlugin) Server(*goplugin.MuxBroker) (interface{}, error) {
	return &pluginRPCServer{impl: p.Impl}, nil
}

func (p *skillPlugin) Client(b *goplugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &pluginRPCClient{client: c}, nil
}

type pluginRPCServer struct {
	impl PluginExecutor
}

func (s *pluginRPCServer) Execute(args *ExecuteArgs, reply *ExecuteReply) error {
	out, err := s.impl.Execute(args.Inputs)
	reply.Outputs = out
	if err != nil {
		reply.Err = err.Error()
	}
	return nil
}

type pluginRPCClient struct {
	client *rpc.Client
}

func (c *pluginRPCClient) Execute(inputs map[string]interface{}) (map[string]interface{}, error) {
	var reply ExecuteReply
	if err := c.client.Call("Plugin.Execute", &ExecuteArgs{Inputs: inputs}, &reply); err != nil {
		return nil, err
	}
	if reply.Err != "" {
		return reply.Outputs, errors.New(reply.Err)
	}
	return reply.Outputs, nil
}

// ServePlugin is the entry point for plugin binaries.
func ServePlugin(impl PluginExecutor) {
	goplugin.Serve(&goplugin.ServeConfig{
		HandshakeConfig: Handshake,
		Plugins: map[string]goplugin.Plugin{
			"skill": &skillPlugin{Impl: impl},
		},
	})
}

// pluginSkill launches an out-of-process plugin binary declared by a
// component manifest of type "plugin" and proxies Execute over RPC.
type pluginSkill struct {
	Base
	binPath string

	mu       sync.Mutex
	client   *goplugin.Client
	executor PluginExecutor
}

func newPluginSkill(info *Info, m *Manifest, dir string) (*pluginSkill, error) {
	bin := m.Command
	if bin == "" {
		bin = m.Main
	}
	if bin == "" {
		return nil, fmt.Errorf("plugin component %q requires a binary", info.Name)
	}
	if !filepath.IsAbs(bin) {
		bin = filepath.Join(dir, bin)
	}
	return &pluginSkill{Base: NewBase(info), binPath: bin}, nil
}

func (s *pluginSkill) start() (PluginExecutor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.executor != nil {
		return s.executor, nil
	}

	s.client = goplugin.NewClient(&goplugin.ClientConfig{
		HandshakeConfig: Handshake,
		Plugins: map[string]goplugin.Plugin{
			"skill": &skillPlugin{},
		},
		Cmd: exec.Command(s.binPath),
		Logger: hclog.New(&hclog.LoggerOptions{
			Name:  "plugin." + s.Info().Name,
			Level: hclog.Warn,
		}),
	})

	rpcClient, err := s.client.Client()
	if err != nil {
		s.client.Kill()
		s.client = nil
		return nil, fmt.Errorf("failed to start plugin: %w", err)
	}
	raw, err := rpcClient.Dispense("skill")
	if err != nil {
		s.client.Kill()
		s.client = nil
		return nil, fmt.Errorf("failed to dispense plugin: %w", err)
	}

	executor, ok := raw.(PluginExecutor)
	if !ok {
		s.client.Kill()
		s.client = nil
		return nil, fmt.Errorf("plugin does not implement the skill interface")
	}
	s.executor = executor
	return executor, nil
}

func (s *pluginSkill) Execute(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	executor, err := s.start()
	if err != nil {
		return nil, &Error{Skill: s.Info().Name, Action: "execute", Message: "plugin unavailable", Err: err}
	}

	type result struct {
		out map[string]interface{}
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := executor.Execute(inputs)
		done <- result{out, err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return map[string]interface{}{"success": false, "error": res.err.Error()}, nil
		}
		return res.out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close terminates the plugin process.
func (s *pluginSkill) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		s.client.Kill()
		s.client = nil
		s.executor = nil
	}
	return nil
}

var _ Skill = (*pluginSkill)(nil)
