// Package config persists S7 connection profiles to and from YAML files.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/lupaulus/s7link/s7"
)

// ConnectionParams is the YAML-serializable form of a PLC connection
// profile. Field names mirror s7.ConnectionParams; this type exists
// separately so the wire-facing s7 package carries no YAML tags.
type ConnectionParams struct {
	IP             string `yaml:"ip"`
	TCPPort        int    `yaml:"tcp_port"`
	ConnectionType uint8  `yaml:"connection_type"`
	LocalTSAP      uint16 `yaml:"local_tsap"`
	RemoteTSAP     uint16 `yaml:"remote_tsap"`

	ConnectTimeoutMs int `yaml:"connect_timeout_ms"`
	ReadTimeoutMs    int `yaml:"read_timeout_ms"`
	WriteTimeoutMs   int `yaml:"write_timeout_ms"`
}

// DefaultConnectionParams returns a profile matching s7.NewClient's
// built-in defaults.
func DefaultConnectionParams() ConnectionParams {
	return ConnectionParams{
		TCPPort:          102,
		ConnectionType:   uint8(s7.ConnectionTypePG),
		ConnectTimeoutMs: 3000,
		ReadTimeoutMs:    1000,
		WriteTimeoutMs:   500,
	}
}

// ToS7 converts the profile to an s7.ConnectionParams value.
func (p ConnectionParams) ToS7() s7.ConnectionParams {
	return s7.ConnectionParams{
		IP:               p.IP,
		TCPPort:          p.TCPPort,
		ConnectionType:   s7.ConnectionType(p.ConnectionType),
		LocalTSAP:        p.LocalTSAP,
		RemoteTSAP:       p.RemoteTSAP,
		ConnectTimeoutMs: p.ConnectTimeoutMs,
		ReadTimeoutMs:    p.ReadTimeoutMs,
		WriteTimeoutMs:   p.WriteTimeoutMs,
	}
}

// DefaultPath returns the conventional location for a connection profile
// file, $HOME/.s7link/connection.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".s7link", "connection.yaml")
}

// Load reads a ConnectionParams profile from path. If path does not
// exist, it returns DefaultConnectionParams() without error.
func Load(path string) (ConnectionParams, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultConnectionParams(), nil
	}
	if err != nil {
		return ConnectionParams{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	params := DefaultConnectionParams()
	if err := yaml.Unmarshal(data, &params); err != nil {
		return ConnectionParams{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return params, nil
}

// Save writes params to path as YAML, creating the parent directory if
// needed.
func Save(path string, params ConnectionParams) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: mkdir for %s: %w", path, err)
	}

	data, err := yaml.Marshal(params)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
