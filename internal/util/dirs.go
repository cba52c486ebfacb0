package util

import (
	"fmt"
	"os"
	"path/filepath"
)

// ProjectDir returns the path to the project-local .dmux directory.
func ProjectDir(projectRoot string) string {
	return filepath.Join(projectRoot, ".dmux")
}

// WorktreesDir returns the directory holding per-pane worktrees for a project.
func WorktreesDir(projectRoot string) string {
	return filepath.Join(projectRoot, ".dmux", "worktrees")
}

// PaneConfigPath returns the persisted pane list file for a project.
func PaneConfigPath(projectRoot string) string {
	return filepath.Join(projectRoot, ".dmux", "dmux.config.json")
}

// ProjectSettingsPath returns the project-scope settings file.
func ProjectSettingsPath(projectRoot string) string {
	return filepath.Join(projectRoot, ".dmux", "settings.json")
}

// GlobalSettingsPath returns the global settings file in the user's home.
func GlobalSettingsPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".dmux.global.json"), nil
}

// EnsureDir ensures that a directory exists, creating it if necessary.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// ExpandHome expands a leading ~ to the user's home directory.
func ExpandHome(path string) string {
	if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return home
		}
		return path
	}
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
