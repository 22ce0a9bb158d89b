// Package state keeps the sidepanel CLI's saved connection settings. The
// sender token lives in the OS keyring, never in the settings file.
package state

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type CLIState struct {
	Channel string `yaml:"channel,omitempty"`
	APIURL  string `yaml:"api_url,omitempty"`
	TCPAddr string `yaml:"tcp_addr,omitempty"`
	Token   string `yaml:"-"`
}

func DefaultPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".sidebridge", "cli.yaml")
}

// Load returns an empty state when the file does not exist.
func Load(path string) (*CLIState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &CLIState{}, nil
		}
		return nil, err
	}
	var st CLIState
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func Save(path string, st *CLIState) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := yaml.Marshal(st)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
