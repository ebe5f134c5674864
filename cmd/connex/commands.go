package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	connex "github.com/connexhq/connex"
	"github.com/connexhq/connex/pkg/agi"
	"github.com/connexhq/connex/pkg/auth"
	"github.com/connexhq/connex/pkg/observability"
	"github.com/connexhq/connex/pkg/server"
	"github.com/connexhq/connex/pkg/skill"
	"github.com/connexhq/connex/pkg/store"
)

// ServeCmd runs the runtime behind the HTTP/SSE server until
// interrupted.
type ServeCmd struct {
	Addr  string `help:"Listen address, overriding the configured one." placeholder:"HOST:PORT"`
	Trace bool   `help:"Export request spans to stderr."`
}

func (c *ServeCmd) Run(g *Globals) error {
	settings, err := g.Settings()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runtime, err := agi.New(settings)
	if err != nil {
		return err
	}
	if err := runtime.Initialize(ctx); err != nil {
		runtime.Shutdown()
		return err
	}
	defer runtime.Shutdown()

	obs := observability.NewManager(observability.Config{
		Tracing: observability.TracerConfig{Enabled: c.Trace, ServiceName: "connex"},
	})
	if err := obs.Initialize(ctx); err != nil {
		return err
	}
	defer obs.Shutdown(context.Background())

	addr := settings.ServerAddr
	if c.Addr != "" {
		addr = c.Addr
	}

	srv := server.New(runtime, server.Options{
		Addr:          addr,
		Validator:     auth.NewValidator(settings.JWTSecret),
		Observability: obs,
	})
	return srv.Start(ctx)
}

// RunCmd executes a single goal and prints the reply.
type RunCmd struct {
	Goal  []string `arg:"" help:"Goal to execute."`
	Speak bool     `help:"Vocalize the reply when a speaker is configured."`
	JSON  bool     `help:"Print the full result as JSON."`
}

func (c *RunCmd) Run(g *Globals) error {
	settings, err := g.Settings()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	runtime, err := agi.New(settings)
	if err != nil {
		return err
	}
	if err := runtime.Initialize(ctx); err != nil {
		runtime.Shutdown()
		return err
	}
	defer runtime.Shutdown()

	res, err := runtime.Execute(ctx, strings.Join(c.Goal, " "), nil, c.Speak)
	if err != nil {
		return err
	}

	if c.JSON {
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	} else {
		fmt.Println(res.Reply)
	}

	if !res.Success {
		return fmt.Errorf("goal did not complete")
	}
	return nil
}

// ConfigCmd manages the persistent system configuration.
type ConfigCmd struct {
	Set  ConfigSetCmd  `cmd:"" help:"Set a configuration value."`
	Get  ConfigGetCmd  `cmd:"" help:"Print one configuration value."`
	List ConfigListCmd `cmd:"" help:"List all configuration values."`
}

func openStore(g *Globals) (*store.Store, error) {
	settings, err := g.Settings()
	if err != nil {
		return nil, err
	}
	if err := settings.EnsureDataDir(); err != nil {
		return nil, err
	}
	return store.OpenSQLite(settings.StoreDBPath)
}

type ConfigSetCmd struct {
	Key    string `arg:"" help:"Configuration key."`
	Value  string `arg:"" optional:"" help:"Value; JSON literals are stored typed."`
	Secret bool   `help:"Prompt for the value without echoing it."`
}

func (c *ConfigSetCmd) Run(g *Globals) error {
	value := c.Value
	if c.Secret && value == "" {
		fmt.Fprintf(os.Stderr, "%s: ", c.Key)
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return err
		}
		value = string(raw)
	}
	if value == "" {
		return fmt.Errorf("no value given for %s", c.Key)
	}

	db, err := openStore(g)
	if err != nil {
		return err
	}
	defer db.Close()

	// "true", "42" and friends are stored as their JSON types.
	var typed interface{}
	if err := json.Unmarshal([]byte(value), &typed); err != nil {
		typed = value
	}
	return db.SetConfig(context.Background(), c.Key, typed)
}

type ConfigGetCmd struct {
	Key string `arg:"" help:"Configuration key."`
}

func (c *ConfigGetCmd) Run(g *Globals) error {
	db, err := openStore(g)
	if err != nil {
		return err
	}
	defer db.Close()

	var value interface{}
	ok, err := db.GetConfig(context.Background(), c.Key, &value)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s is not set", c.Key)
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

type ConfigListCmd struct{}

func (c *ConfigListCmd) Run(g *Globals) error {
	db, err := openStore(g)
	if err != nil {
		return err
	}
	defer db.Close()

	entries, err := db.ListConfig(context.Background())
	if err != nil {
		return err
	}
	for key, value := range entries {
		fmt.Printf("%s=%s\n", key, value)
	}
	return nil
}

// SkillsCmd inspects the persisted skill store.
type SkillsCmd struct {
	List SkillsListCmd `cmd:"" help:"List installed skills."`
}

type SkillsListCmd struct {
	JSON bool `help:"Print skill metadata as JSON."`
}

func (c *SkillsListCmd) Run(g *Globals) error {
	settings, err := g.Settings()
	if err != nil {
		return err
	}

	st, err := skill.OpenStore(settings.SkillDBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	infos, err := st.LoadInfos(context.Background())
	if err != nil {
		return err
	}

	if c.JSON {
		data, err := json.MarshalIndent(infos, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}
	for _, info := range infos {
		fmt.Printf("%-24s %-16s %s\n", info.Name, info.Category, info.Description)
	}
	return nil
}

// TokenCmd mints a bearer token from the configured JWT secret.
type TokenCmd struct {
	Subject string        `help:"Token subject." default:"cli"`
	TTL     time.Duration `help:"Token lifetime." default:"24h"`
}

func (c *TokenCmd) Run(g *Globals) error {
	settings, err := g.Settings()
	if err != nil {
		return err
	}
	v := auth.NewValidator(settings.JWTSecret)
	if v == nil {
		return fmt.Errorf("no JWT secret configured; set CONNEX_JWT_SECRET")
	}
	token, err := v.Issue(c.Subject, c.TTL)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

type VersionCmd struct{}

func (c *VersionCmd) Run(*Globals) error {
	fmt.Println(connex.GetVersion().String())
	return nil
}
