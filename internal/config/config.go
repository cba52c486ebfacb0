// Package config loads the dmux agent catalog and daemon defaults from a
// TOML file. Runtime state (panes, settings) lives in the state package;
// this file only describes how to launch and talk to agent CLIs.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
)

// Config is the parsed catalog file.
type Config struct {
	DefaultAgent string               `toml:"default_agent"`
	Editor       string               `toml:"editor"`
	Server       ServerConfig         `toml:"server"`
	Agents       map[string]AgentSpec `toml:"agents"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"` // 0 picks an ephemeral port
}

// AgentSpec describes how to launch one agent CLI and how the harness
// invokes it for one-shot prompts.
type AgentSpec struct {
	// Command launches the interactive agent in a pane.
	Command string `toml:"command"`

	// HarnessArgs switch the CLI into non-interactive prompt mode
	// (prompt on stdin, response on stdout).
	HarnessArgs []string `toml:"harness_args,omitempty"`

	// ModelFlag is the CLI flag selecting a model, empty if unsupported.
	ModelFlag string `toml:"model_flag,omitempty"`

	// Models maps a tier name (cheap, mid) to the model argument.
	Models map[string]string `toml:"models,omitempty"`

	// PermissionFlags maps a permission mode to the extra CLI arguments
	// appended at launch. The empty mode must be present.
	PermissionFlags map[string]string `toml:"permission_flags,omitempty"`
}

// DefaultPath returns the default config file path.
func DefaultPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "dmux", "dmux.toml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "dmux", "dmux.toml")
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DefaultAgent: "",
		Editor:       "",
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 0,
		},
		Agents: map[string]AgentSpec{
			"claude": {
				Command:     "claude",
				HarnessArgs: []string{"-p"},
				ModelFlag:   "--model",
				Models: map[string]string{
					"cheap": "claude-3-5-haiku-latest",
					"mid":   "claude-sonnet-4-5",
				},
				PermissionFlags: map[string]string{
					"":            "",
					"plan":        "--permission-mode plan",
					"acceptEdits": "--permission-mode acceptEdits",
					"skip":        "--dangerously-skip-permissions",
				},
			},
			"opencode": {
				Command:     "opencode",
				HarnessArgs: []string{"run"},
				ModelFlag:   "--model",
				Models: map[string]string{
					"cheap": "anthropic/claude-3-5-haiku-latest",
					"mid":   "anthropic/claude-sonnet-4-5",
				},
				PermissionFlags: map[string]string{
					"": "",
				},
			},
			"codex": {
				Command:     "codex",
				HarnessArgs: []string{"exec"},
				ModelFlag:   "-m",
				Models: map[string]string{
					"cheap": "gpt-5-mini",
					"mid":   "gpt-5.1",
				},
				PermissionFlags: map[string]string{
					"":     "",
					"skip": "--dangerously-bypass-approvals-and-sandbox",
				},
			},
		},
	}
}

// Load reads the config file at path (DefaultPath when empty) and fills
// defaults for anything the file leaves out.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	def := Default()
	if cfg.Server.Host == "" {
		cfg.Server.Host = def.Server.Host
	}
	if cfg.Agents == nil {
		cfg.Agents = def.Agents
	} else {
		// Users may override a single agent; the rest keep their defaults.
		for name, spec := range def.Agents {
			if _, ok := cfg.Agents[name]; !ok {
				cfg.Agents[name] = spec
			}
		}
	}
	if cfg.DefaultAgent != "" {
		if _, ok := cfg.Agents[cfg.DefaultAgent]; !ok {
			return nil, fmt.Errorf("default_agent %q is not defined in [agents]", cfg.DefaultAgent)
		}
	}

	return &cfg, nil
}

// LoadOrDefault loads the config file, falling back to defaults when the
// file does not exist.
func LoadOrDefault(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		return Default()
	}
	return cfg
}

// AgentNames returns the configured agent names, sorted.
func (c *Config) AgentNames() []string {
	names := make([]string, 0, len(c.Agents))
	for name := range c.Agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Agent returns the spec for a configured agent.
func (c *Config) Agent(name string) (AgentSpec, bool) {
	spec, ok := c.Agents[name]
	return spec, ok
}

// LaunchCommand builds the full interactive launch command for an agent
// under the given permission mode. Unknown modes fall back to the default.
func (s AgentSpec) LaunchCommand(permissionMode string) string {
	flags := s.PermissionFlags[permissionMode]
	if flags == "" {
		return s.Command
	}
	return s.Command + " " + flags
}

// CreateDefault writes the default config file and returns its path. It
// refuses to clobber an existing file.
func CreateDefault() (string, error) {
	path := DefaultPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return "", fmt.Errorf("config file already exists: %s", path)
		}
		return "", err
	}
	defer f.Close()

	if err := Print(Default(), f); err != nil {
		return "", err
	}
	return path, nil
}

// Print writes config to a writer in commented TOML format.
func Print(cfg *Config, w io.Writer) error {
	fmt.Fprintln(w, "# dmux configuration")
	fmt.Fprintln(w, "# https://github.com/Dicklesworthstone/dmux")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "# Agent used when a pane does not pick one explicitly.")
	fmt.Fprintln(w, "# Leave empty to be asked when several agents are installed.")
	fmt.Fprintf(w, "default_agent = %q\n", cfg.DefaultAgent)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "# Editor command for the open-editor action ($EDITOR when empty)")
	fmt.Fprintf(w, "editor = %q\n", cfg.Editor)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[server]")
	fmt.Fprintf(w, "host = %q\n", cfg.Server.Host)
	fmt.Fprintln(w, "# 0 picks a free port at startup")
	fmt.Fprintf(w, "port = %d\n", cfg.Server.Port)
	fmt.Fprintln(w)

	names := make([]string, 0, len(cfg.Agents))
	for name := range cfg.Agents {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		spec := cfg.Agents[name]
		fmt.Fprintf(w, "[agents.%s]\n", name)
		fmt.Fprintf(w, "command = %q\n", spec.Command)
		if len(spec.HarnessArgs) > 0 {
			fmt.Fprintf(w, "harness_args = %s\n", tomlStringArray(spec.HarnessArgs))
		}
		if spec.ModelFlag != "" {
			fmt.Fprintf(w, "model_flag = %q\n", spec.ModelFlag)
		}
		if len(spec.Models) > 0 {
			fmt.Fprintf(w, "[agents.%s.models]\n", name)
			printSortedMap(w, spec.Models)
		}
		if len(spec.PermissionFlags) > 0 {
			fmt.Fprintf(w, "[agents.%s.permission_flags]\n", name)
			printSortedMap(w, spec.PermissionFlags)
		}
		fmt.Fprintln(w)
	}

	return nil
}

func tomlStringArray(items []string) string {
	out := "["
	for i, item := range items {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%q", item)
	}
	return out + "]"
}

func printSortedMap(w io.Writer, m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%q = %q\n", k, m[k])
	}
}
