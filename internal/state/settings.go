package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/Dicklesworthstone/dmux/internal/util"
)

// Scope selects which settings file a write lands in.
type Scope string

const (
	ScopeProject Scope = "project"
	ScopeGlobal  Scope = "global"
)

// ErrUnknownSetting is returned for keys outside the recognized set.
var ErrUnknownSetting = errors.New("unknown setting")

// Setting keys.
const (
	SettingDefaultAgent       = "defaultAgent"
	SettingPermissionMode     = "permissionMode"
	SettingAutopilotByDefault = "enableAutopilotByDefault"
	SettingBaseBranch         = "baseBranch"
	SettingBranchPrefix       = "branchPrefix"
	SettingUseTmuxHooks       = "useTmuxHooks"
)

// settingsFile is the on-disk shape shared by the project and global files.
// Pointer fields distinguish "unset" from an explicit zero value.
type settingsFile struct {
	DefaultAgent             *string `json:"defaultAgent,omitempty"`
	PermissionMode           *string `json:"permissionMode,omitempty"`
	EnableAutopilotByDefault *bool   `json:"enableAutopilotByDefault,omitempty"`
	BaseBranch               *string `json:"baseBranch,omitempty"`
	BranchPrefix             *string `json:"branchPrefix,omitempty"`
	UseTmuxHooks             *bool   `json:"useTmuxHooks,omitempty"`
}

// Settings is the resolved view after layering project over global over
// built-in defaults.
type Settings struct {
	DefaultAgent             string
	PermissionMode           string
	EnableAutopilotByDefault bool
	BaseBranch               string
	BranchPrefix             string
	UseTmuxHooks             bool
}

// builtinSettings are the values used when neither file sets a key.
func builtinSettings() Settings {
	return Settings{
		DefaultAgent:             "claude",
		PermissionMode:           "",
		EnableAutopilotByDefault: false,
		BaseBranch:               "main",
		BranchPrefix:             "dmux/",
		UseTmuxHooks:             false,
	}
}

// SettingsStore reads and writes the two settings files for one project.
type SettingsStore struct {
	projectPath string
	globalPath  string
}

// NewSettingsStore creates a settings store for the project. The global
// file location resolves against the current user's home directory; when
// that fails the global layer is simply absent.
func NewSettingsStore(projectRoot string) *SettingsStore {
	global, err := util.GlobalSettingsPath()
	if err != nil {
		global = ""
	}
	return &SettingsStore{
		projectPath: util.ProjectSettingsPath(projectRoot),
		globalPath:  global,
	}
}

// Resolve layers project values over global values over built-in defaults.
func (ss *SettingsStore) Resolve() (Settings, error) {
	out := builtinSettings()

	global, err := readSettingsFile(ss.globalPath)
	if err != nil {
		return out, err
	}
	project, err := readSettingsFile(ss.projectPath)
	if err != nil {
		return out, err
	}

	for _, layer := range []settingsFile{global, project} {
		if layer.DefaultAgent != nil {
			out.DefaultAgent = *layer.DefaultAgent
		}
		if layer.PermissionMode != nil {
			out.PermissionMode = *layer.PermissionMode
		}
		if layer.EnableAutopilotByDefault != nil {
			out.EnableAutopilotByDefault = *layer.EnableAutopilotByDefault
		}
		if layer.BaseBranch != nil {
			out.BaseBranch = *layer.BaseBranch
		}
		if layer.BranchPrefix != nil {
			out.BranchPrefix = *layer.BranchPrefix
		}
		if layer.UseTmuxHooks != nil {
			out.UseTmuxHooks = *layer.UseTmuxHooks
		}
	}
	return out, nil
}

// Get returns the resolved value for one key, formatted as a string.
func (ss *SettingsStore) Get(key string) (string, error) {
	resolved, err := ss.Resolve()
	if err != nil {
		return "", err
	}
	switch key {
	case SettingDefaultAgent:
		return resolved.DefaultAgent, nil
	case SettingPermissionMode:
		return resolved.PermissionMode, nil
	case SettingAutopilotByDefault:
		return strconv.FormatBool(resolved.EnableAutopilotByDefault), nil
	case SettingBaseBranch:
		return resolved.BaseBranch, nil
	case SettingBranchPrefix:
		return resolved.BranchPrefix, nil
	case SettingUseTmuxHooks:
		return strconv.FormatBool(resolved.UseTmuxHooks), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownSetting, key)
	}
}

func (ss *SettingsStore) pathFor(scope Scope) (string, error) {
	if scope == ScopeGlobal {
		if ss.globalPath == "" {
			return "", errors.New("cannot resolve home directory for global settings")
		}
		return ss.globalPath, nil
	}
	return ss.projectPath, nil
}

// Set writes one key into the chosen scope's file. Boolean keys accept
// "true" and "false".
func (ss *SettingsStore) Set(scope Scope, key, value string) error {
	path, err := ss.pathFor(scope)
	if err != nil {
		return err
	}

	file, err := readSettingsFile(path)
	if err != nil {
		return err
	}

	switch key {
	case SettingDefaultAgent:
		file.DefaultAgent = &value
	case SettingPermissionMode:
		file.PermissionMode = &value
	case SettingBaseBranch:
		file.BaseBranch = &value
	case SettingBranchPrefix:
		file.BranchPrefix = &value
	case SettingAutopilotByDefault, SettingUseTmuxHooks:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("setting %s wants true or false, got %q", key, value)
		}
		if key == SettingAutopilotByDefault {
			file.EnableAutopilotByDefault = &b
		} else {
			file.UseTmuxHooks = &b
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownSetting, key)
	}

	return writeSettingsFile(path, file)
}

// Unset removes one key from the chosen scope's file.
func (ss *SettingsStore) Unset(scope Scope, key string) error {
	path, err := ss.pathFor(scope)
	if err != nil {
		return err
	}

	file, err := readSettingsFile(path)
	if err != nil {
		return err
	}

	switch key {
	case SettingDefaultAgent:
		file.DefaultAgent = nil
	case SettingPermissionMode:
		file.PermissionMode = nil
	case SettingAutopilotByDefault:
		file.EnableAutopilotByDefault = nil
	case SettingBaseBranch:
		file.BaseBranch = nil
	case SettingBranchPrefix:
		file.BranchPrefix = nil
	case SettingUseTmuxHooks:
		file.UseTmuxHooks = nil
	default:
		return fmt.Errorf("%w: %s", ErrUnknownSetting, key)
	}

	return writeSettingsFile(path, file)
}

// Keys lists the recognized setting keys in sorted order.
func Keys() []string {
	keys := []string{
		SettingDefaultAgent,
		SettingPermissionMode,
		SettingAutopilotByDefault,
		SettingBaseBranch,
		SettingBranchPrefix,
		SettingUseTmuxHooks,
	}
	sort.Strings(keys)
	return keys
}

func readSettingsFile(path string) (settingsFile, error) {
	var file settingsFile
	if path == "" {
		return file, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return file, nil
		}
		return file, fmt.Errorf("read settings %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return file, fmt.Errorf("parse settings %s: %w", path, err)
	}
	return file, nil
}

func writeSettingsFile(path string, file settingsFile) error {
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	data = append(data, '\n')
	if err := util.AtomicWriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write settings %s: %w", path, err)
	}
	return nil
}
