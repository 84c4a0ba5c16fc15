// Package config loads server settings from an optional YAML file with
// flag overrides.
package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kballard/go-shellquote"
	"gopkg.in/yaml.v3"

	"github.com/user/webterm/internal/pty"
)

// Modes accepted by the "mode" setting.
const (
	ModeShared    = "shared"
	ModePerClient = "per-client"
)

type Config struct {
	Addr         string `yaml:"addr"`
	Port         int    `yaml:"port"`
	Command      string `yaml:"command"`
	Mode         string `yaml:"mode"`
	HistoryBytes int    `yaml:"history_bytes"`
	Rows         int    `yaml:"rows"`
	Cols         int    `yaml:"cols"`
	WorkDir      string `yaml:"workdir"`
	DBPath       string `yaml:"db_path"`

	ConfigPath string `yaml:"-"`
}

func defaults() *Config {
	return &Config{
		Addr:         "localhost",
		Port:         8765,
		Command:      "bash",
		Mode:         ModeShared,
		HistoryBytes: 64 * 1024,
		Rows:         24,
		Cols:         80,
	}
}

// Load builds the configuration from defaults, the config file (if
// present), and command-line flags, in that order of precedence.
func Load() (*Config, error) {
	cfg := defaults()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	cfg.ConfigPath = filepath.Join(homeDir, ".config", "webterm", "config.yaml")

	if err := cfg.loadFromFile(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	flag.IntVar(&cfg.Port, "port", cfg.Port, "server port (1-65535)")
	flag.StringVar(&cfg.Command, "command", cfg.Command, "shell command to run in each session")
	flag.StringVar(&cfg.Mode, "mode", cfg.Mode, "session mode: shared or per-client")
	flag.IntVar(&cfg.HistoryBytes, "history-bytes", cfg.HistoryBytes, "output history kept per session")
	flag.StringVar(&cfg.WorkDir, "workdir", cfg.WorkDir, "working directory for spawned shells")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "sqlite path for session records (empty disables)")
	flag.Parse()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFromFile() error {
	data, err := os.ReadFile(c.ConfigPath)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse %s: %w", c.ConfigPath, err)
	}
	return nil
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be between 1 and 65535", c.Port)
	}
	if c.Mode != ModeShared && c.Mode != ModePerClient {
		return fmt.Errorf("invalid mode %q: must be %q or %q", c.Mode, ModeShared, ModePerClient)
	}
	if c.HistoryBytes <= 0 {
		return fmt.Errorf("invalid history_bytes %d: must be positive", c.HistoryBytes)
	}
	if c.Rows <= 0 || c.Cols <= 0 {
		return fmt.Errorf("invalid terminal size %dx%d", c.Rows, c.Cols)
	}
	if _, err := c.SpawnCommand(); err != nil {
		return err
	}
	return nil
}

// SpawnCommand parses the configured command line into the spawn spec
// for new sessions. The child inherits our environment plus a terminal
// type browser emulators understand.
func (c *Config) SpawnCommand() (pty.Command, error) {
	argv, err := shellquote.Split(c.Command)
	if err != nil {
		return pty.Command{}, fmt.Errorf("invalid command %q: %w", c.Command, err)
	}
	if len(argv) == 0 {
		return pty.Command{}, fmt.Errorf("command must not be empty")
	}
	return pty.Command{
		Path: argv[0],
		Args: argv[1:],
		Env:  append(os.Environ(), "TERM=xterm-256color"),
		Dir:  c.WorkDir,
	}, nil
}
