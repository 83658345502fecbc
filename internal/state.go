package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// StateFileEnv overrides the location of the proxy state file.
const StateFileEnv = "CAPROXY_STATE_FILE"

var statePath string

func stateFile() string {
	if statePath != "" {
		return statePath
	}
	if path := os.Getenv(StateFileEnv); path != "" {
		return path
	}
	return filepath.Join(os.Getenv("HOME"), ".caproxy", "proxies.json")
}

// ProxyState describes a proxy started by `caproxy serve`.
type ProxyState struct {
	PID      int       `json:"pid"`
	Port     int       `json:"port"`
	Scope    string    `json:"scope"`
	BuildDir string    `json:"build_dir"`
	Started  time.Time `json:"started"`
}

// Key identifies a state entry.
func (s ProxyState) Key() string {
	return fmt.Sprintf("%s@%s", s.Scope, s.BuildDir)
}

func loadStates() (map[string]ProxyState, error) {
	data := make(map[string]ProxyState)
	b, err := os.ReadFile(stateFile())
	if errors.Is(err, os.ErrNotExist) {
		return data, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state: %w", err)
	}
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, fmt.Errorf("failed to parse state: %w", err)
	}
	return data, nil
}

func writeStates(data map[string]ProxyState) error {
	path := stateFile()
	if len(data) == 0 {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0600)
}

// SaveState records a running proxy.
func SaveState(s ProxyState) error {
	data, err := loadStates()
	if err != nil {
		return err
	}
	data[s.Key()] = s
	return writeStates(data)
}

// RemoveState forgets a proxy.
func RemoveState(s ProxyState) error {
	data, err := loadStates()
	if err != nil {
		return err
	}
	delete(data, s.Key())
	return writeStates(data)
}

// ListStates returns all recorded proxies ordered by start time.
func ListStates() ([]ProxyState, error) {
	data, err := loadStates()
	if err != nil {
		return nil, err
	}
	states := make([]ProxyState, 0, len(data))
	for _, s := range data {
		states = append(states, s)
	}
	sort.Slice(states, func(i, j int) bool {
		return states[i].Started.Before(states[j].Started)
	})
	return states, nil
}
