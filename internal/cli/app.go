// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"os"
	"strings"

	urfave "github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/jeranaias/glmchat-tui/internal/config"
	"github.com/jeranaias/glmchat-tui/internal/logging"
)

// BuildInfo is stamped into the binary at build time.
type BuildInfo struct {
	Version   string
	GitCommit string
	BuildDate string
}

// NewApp builds the command tree. Running it without a command starts the
// TUI.
func NewApp(info BuildInfo) *urfave.App {
	return &urfave.App{
		Name:    "glmchat",
		Usage:   "terminal client for a GLM chat backend",
		Version: fmt.Sprintf("%s (%s, %s)", info.Version, info.GitCommit, info.BuildDate),
		Flags: []urfave.Flag{
			&urfave.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
				EnvVars: []string{"GLMCHAT_CONFIG"},
			},
			&urfave.StringFlag{
				Name:  "base-url",
				Usage: "Backend API base `URL`, overriding the config file",
			},
			&urfave.BoolFlag{
				Name:  "debug",
				Usage: "Log at debug level",
			},
		},
		Action: tuiAction,
		Commands: []*urfave.Command{
			{
				Name:   "tui",
				Usage:  "Start the full-screen client",
				Action: tuiAction,
			},
			{
				Name:   "chat",
				Usage:  "Chat line by line in the terminal",
				Action: chatAction,
			},
			askCommand(),
			{
				Name:  "history",
				Usage: "Print the current session's conversation",
				Flags: []urfave.Flag{
					&urfave.BoolFlag{Name: "json", Usage: "Output JSON"},
				},
				Action: func(c *urfave.Context) error {
					return withRuntime(c, func(rt *Runtime) error {
						return RunHistory(rt, c.Bool("json"), c.App.Writer)
					})
				},
			},
			{
				Name:  "clear",
				Usage: "Clear the current session's conversation",
				Action: func(c *urfave.Context) error {
					return withRuntime(c, func(rt *Runtime) error {
						return RunClear(rt, c.App.Writer)
					})
				},
			},
			{
				Name:      "persona",
				Usage:     "Show or set the current session's persona",
				ArgsUsage: "[preset|none|custom prompt]",
				Action: func(c *urfave.Context) error {
					choice := joinArgs(c)
					return withRuntime(c, func(rt *Runtime) error {
						return RunPersona(rt, choice, c.App.Writer)
					})
				},
			},
			{
				Name:  "export",
				Usage: "Write the current session's conversation to a file",
				Flags: []urfave.Flag{
					&urfave.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "markdown", Usage: "markdown or json"},
					&urfave.StringFlag{Name: "dir", Aliases: []string{"d"}, Value: ".", Usage: "Output `DIR`"},
					&urfave.BoolFlag{Name: "stdout", Usage: "Write to stdout instead of a file"},
				},
				Action: func(c *urfave.Context) error {
					return withRuntime(c, func(rt *Runtime) error {
						return RunExport(rt, ExportOptions{
							Format: c.String("format"),
							Dir:    c.String("dir"),
							Stdout: c.Bool("stdout"),
						}, c.App.Writer)
					})
				},
			},
			configCommand(),
			{
				Name:  "mock-server",
				Usage: "Serve a fake backend for local testing",
				Flags: []urfave.Flag{
					&urfave.StringFlag{Name: "listen", Value: ":3000", Usage: "Listen `ADDR`"},
					&urfave.DurationFlag{Name: "chunk-delay", Value: 0, Usage: "Delay between stream chunks"},
					&urfave.BoolFlag{Name: "cors", Value: true, Usage: "Allow browser clients from any origin"},
					&urfave.IntFlag{Name: "rate-limit", Usage: "Requests per client per minute, 0 for none"},
					&urfave.BoolFlag{Name: "line-framing", Usage: "Stream data lines without blank separators"},
				},
				Action: mockAction,
			},
		},
		// main owns error display and exit codes.
		ExitErrHandler: func(*urfave.Context, error) {},
	}
}

func askCommand() *urfave.Command {
	return &urfave.Command{
		Name:      "ask",
		Usage:     "Ask one question and print the reply",
		ArgsUsage: `"question" | -`,
		Flags: []urfave.Flag{
			&urfave.BoolFlag{Name: "no-stream", Usage: "Wait for the whole reply"},
			&urfave.BoolFlag{Name: "json", Usage: "Output JSON"},
			&urfave.BoolFlag{Name: "raw", Usage: "Print the reply without markdown rendering"},
			&urfave.BoolFlag{Name: "new", Usage: "Ask in a new session"},
			&urfave.StringFlag{Name: "persona", Aliases: []string{"p"}, Usage: "Preset id, none, or a custom `PROMPT`"},
		},
		Action: func(c *urfave.Context) error {
			question, err := ReadQuestion(c.Args().Slice(), os.Stdin, IsTTY())
			if err != nil {
				return err
			}
			return withRuntime(c, func(rt *Runtime) error {
				return RunAsk(rt, question, AskOptions{
					Stream:     rt.Config.Chat.Stream && !c.Bool("no-stream"),
					Markdown:   rt.Config.UI.Markdown && !c.Bool("raw"),
					JSON:       c.Bool("json"),
					NewSession: c.Bool("new"),
					Persona:    c.String("persona"),
				}, c.App.Writer)
			})
		},
	}
}

func configCommand() *urfave.Command {
	return &urfave.Command{
		Name:  "config",
		Usage: "Manage configuration",
		Subcommands: []*urfave.Command{
			{
				Name:  "show",
				Usage: "Print the effective configuration",
				Action: func(c *urfave.Context) error {
					cfg, path, err := loadConfig(c)
					if err != nil {
						return err
					}
					return RunConfigShow(cfg, path, c.App.Writer)
				},
			},
			{
				Name:  "init",
				Usage: "Write the default configuration file",
				Flags: []urfave.Flag{
					&urfave.BoolFlag{Name: "force", Usage: "Overwrite an existing file"},
				},
				Action: func(c *urfave.Context) error {
					path, err := configPath(c)
					if err != nil {
						return err
					}
					return RunConfigInit(path, c.Bool("force"), c.App.Writer)
				},
			},
			{
				Name:  "path",
				Usage: "Print the configuration file path",
				Action: func(c *urfave.Context) error {
					path, err := configPath(c)
					if err != nil {
						return err
					}
					fmt.Fprintln(c.App.Writer, path)
					return nil
				},
			},
			{
				Name:      "get",
				Usage:     "Print one setting",
				ArgsUsage: "<section.key>",
				Action: func(c *urfave.Context) error {
					if c.NArg() != 1 {
						return &UsageError{Message: "expected one key", Usage: "glmchat config get <section.key>"}
					}
					cfg, _, err := loadConfig(c)
					if err != nil {
						return err
					}
					return RunConfigGet(cfg, c.Args().First(), c.App.Writer)
				},
			},
			{
				Name:      "set",
				Usage:     "Change one setting in the configuration file",
				ArgsUsage: "<section.key> <value>",
				Action: func(c *urfave.Context) error {
					if c.NArg() != 2 {
						return &UsageError{Message: "expected a key and a value", Usage: "glmchat config set <section.key> <value>"}
					}
					path, err := configPath(c)
					if err != nil {
						return err
					}
					return RunConfigSet(path, c.Args().Get(0), c.Args().Get(1), c.App.Writer)
				},
			},
			{
				Name:  "keys",
				Usage: "List every setting",
				Action: func(c *urfave.Context) error {
					return RunConfigKeys(c.App.Writer)
				},
			},
			{
				Name:  "validate",
				Usage: "Check the configuration file",
				Action: func(c *urfave.Context) error {
					_, path, err := loadConfig(c)
					if err != nil {
						return err
					}
					fmt.Fprintln(c.App.Writer, SuccessStyle.Render(path+" is valid"))
					return nil
				},
			},
		},
	}
}

func tuiAction(c *urfave.Context) error {
	if c.Args().Present() {
		return &UsageError{Message: "unknown command " + c.Args().First(), Usage: "glmchat --help"}
	}
	cfg, path, err := loadConfig(c)
	if err != nil {
		return err
	}
	rt, err := NewRuntime(c.Context, cfg, RuntimeOptions{})
	if err != nil {
		return err
	}
	defer rt.Close()
	return RunTUI(rt, path)
}

func chatAction(c *urfave.Context) error {
	return withRuntime(c, RunChat)
}

func mockAction(c *urfave.Context) error {
	cfg, _, err := loadConfig(c)
	if err != nil {
		return err
	}
	// The fake backend logs to the console; it has no screen to protect.
	log, err := logging.New(logging.Options{Level: cfg.Logging.Level, Development: true})
	if err != nil {
		return err
	}
	defer log.Sync()

	addr := c.String("listen")
	log.Info("MOCK_SERVER_START", zap.String("addr", addr))
	fmt.Fprintf(c.App.Writer, "mock backend on %s, base URL http://localhost%s/api\n", addr, addr)
	return RunMockServer(c.Context, MockOptions{
		Listen:      addr,
		ChunkDelay:  c.Duration("chunk-delay"),
		CORS:        c.Bool("cors"),
		RateLimit:   c.Int("rate-limit"),
		LineFraming: c.Bool("line-framing"),
	}, log)
}

// withRuntime runs fn against a started runtime and closes it afterwards.
func withRuntime(c *urfave.Context, fn func(rt *Runtime) error) error {
	cfg, _, err := loadConfig(c)
	if err != nil {
		return err
	}
	rt, err := NewRuntime(c.Context, cfg, RuntimeOptions{})
	if err != nil {
		return err
	}
	rt.Start()
	defer rt.Close()
	return fn(rt)
}

func configPath(c *urfave.Context) (string, error) {
	if p := c.String("config"); p != "" {
		return p, nil
	}
	p, err := config.Path()
	if err != nil {
		return "", urfave.Exit(err.Error(), ExitConfigError)
	}
	return p, nil
}

// loadConfig loads the file named by --config, or the default one, and
// applies the global flag overrides.
func loadConfig(c *urfave.Context) (*config.Config, string, error) {
	path, err := configPath(c)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.LoadFromPath(path)
	if err != nil {
		return nil, path, urfave.Exit("config: "+err.Error(), ExitConfigError)
	}
	if u := c.String("base-url"); u != "" {
		cfg.API.BaseURL = u
	}
	if c.Bool("debug") {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

func joinArgs(c *urfave.Context) string {
	return strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
}
