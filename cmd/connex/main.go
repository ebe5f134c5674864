// Command connex runs the personal assistant runtime: an HTTP/SSE
// server, one-shot goal execution and local administration of the
// persistent configuration and skill stores.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"

	"github.com/connexhq/connex/pkg/config"
	"github.com/connexhq/connex/pkg/logger"
)

type Globals struct {
	DataDir  string `help:"Override the data directory." env:"CONNEX_DATA_DIR" placeholder:"DIR"`
	LogLevel string `help:"Log level: debug, info, warn or error." env:"CONNEX_LOG_LEVEL" default:"info"`
	Verbose  bool   `short:"v" help:"Use the verbose log format."`
}

// Settings resolves the runtime configuration and initializes logging.
func (g *Globals) Settings() (*config.Settings, error) {
	if err := config.LoadEnvFiles(); err != nil {
		return nil, err
	}

	settings := config.DefaultSettings()
	if g.DataDir != "" {
		settings.DataDir = g.DataDir
		settings.SkillDBPath = filepath.Join(g.DataDir, "skills.db")
		settings.StoreDBPath = filepath.Join(g.DataDir, "connex.db")
		if os.Getenv("CONNEX_TIME_EVENTS") == "" {
			settings.TimeEventsPath = filepath.Join(g.DataDir, "time_events.json")
		}
	}
	if g.LogLevel != "" {
		settings.LogLevel = g.LogLevel
	}
	if g.Verbose {
		settings.LogFormat = "verbose"
	}

	level, err := logger.ParseLevel(settings.LogLevel)
	if err != nil {
		return nil, err
	}
	logger.Init(level, os.Stderr, settings.LogFormat)
	return settings, nil
}

type CLI struct {
	Globals

	Serve   ServeCmd   `cmd:"" help:"Start the HTTP/SSE server."`
	Run     RunCmd     `cmd:"" help:"Execute one goal and print the reply."`
	Config  ConfigCmd  `cmd:"" help:"Read and write persistent runtime configuration."`
	Skills  SkillsCmd  `cmd:"" help:"Inspect installed skills."`
	Token   TokenCmd   `cmd:"" help:"Mint a bearer token for the HTTP API."`
	Version VersionCmd `cmd:"" help:"Print version information."`
}

func main() {
	cli := &CLI{}
	kctx := kong.Parse(cli,
		kong.Name("connex"),
		kong.Description("Connex personal assistant runtime."),
		kong.UsageOnError(),
	)
	if err := kctx.Run(&cli.Globals); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
