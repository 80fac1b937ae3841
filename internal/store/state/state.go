// Package state persists the user's channel list, server pool and clock
// sources as a single YAML document.
package state

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"

	"github.com/dlcy/iptv-hunan/internal/domain"
	"github.com/dlcy/iptv-hunan/internal/logger"
)

// State is the persisted record set, one collection per concern.
type State struct {
	Channels []domain.Channel    `yaml:"channels"`
	Servers  []string            `yaml:"servers"`
	Clock    domain.ClockSources `yaml:"clock"`
}

// Defaults is the record set written on first run.
func Defaults() State {
	return State{
		Channels: []domain.Channel{
			{Name: "CCTV1 高清", Template: "http://{server}/000000002000/201500000063/1000.m3u8?starttime={timestamp}"},
			{Name: "湖南卫视", Template: "http://{server}/000000002000/201500000067/1000.m3u8?starttime={timestamp}"},
			{Name: "测试RTP-CCTV", Template: "rtp://239.76.253.151:9000"},
		},
		Servers: []string{"124.232.231.172:8089", "218.76.205.6:6410"},
		Clock: domain.ClockSources{
			KnownSources:  []string{"124.232.139.1", "ntp.aliyun.com", "cn.pool.ntp.org", "pool.ntp.org"},
			CurrentSource: "124.232.139.1",
		},
	}
}

// Store reads and atomically writes the state file.
//
// When the file exists but cannot be parsed, the store switches to read-only
// for the rest of the process so a corrupt file is never silently replaced.
type Store struct {
	path string
	log  logger.Logger

	mu       sync.Mutex
	readOnly bool
	lastSeen []byte // content last read or written, used to ignore our own writes
}

func NewStore(path string, log logger.Logger) *Store {
	return &Store{path: path, log: log}
}

func (s *Store) Path() string { return s.path }

// Load returns the persisted state.
//
// A missing file is created with Defaults. A file that cannot be read or
// parsed yields Defaults, is left untouched and the returned error wraps
// domain.ErrStateReadOnly; the caller is expected to continue with the
// returned state.
func (s *Store) Load() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		def := Defaults()
		if err := s.writeLocked(def); err != nil {
			return def, fmt.Errorf("failed to write default state: %w", err)
		}
		s.log.Info("state file created with defaults", logger.String("path", s.path))
		return def, nil
	}
	if err != nil {
		s.readOnly = true
		return Defaults(), fmt.Errorf("%w: read %s: %v", domain.ErrStateReadOnly, s.path, err)
	}

	st, err := decode(data)
	if err != nil {
		s.readOnly = true
		return Defaults(), fmt.Errorf("%w: parse %s: %v", domain.ErrStateReadOnly, s.path, err)
	}
	s.lastSeen = data
	return st, nil
}

// Reload re-reads the file after an external edit. changed is false when the
// content matches what this process last read or wrote. A successful parse
// lifts the read-only mode; a failed one leaves the current state in place.
func (s *Store) Reload() (st State, changed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return State{}, false, fmt.Errorf("failed to read state file: %w", err)
	}
	if bytes.Equal(data, s.lastSeen) {
		return State{}, false, nil
	}
	st, err = decode(data)
	if err != nil {
		return State{}, false, fmt.Errorf("failed to parse state file: %w", err)
	}
	if s.readOnly {
		s.log.Info("state file is valid again, leaving read-only mode", logger.String("path", s.path))
	}
	s.readOnly = false
	s.lastSeen = data
	return st, true, nil
}

// Save atomically replaces the file with st.
func (s *Store) Save(st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.readOnly {
		return fmt.Errorf("%w: %s", domain.ErrStateReadOnly, s.path)
	}
	return s.writeLocked(st)
}

// ReadOnly reports whether saves are currently refused.
func (s *Store) ReadOnly() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readOnly
}

func (s *Store) writeLocked(st State) error {
	data, err := yaml.Marshal(&st)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create state directory: %w", err)
		}
	}
	if err := renameio.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	s.lastSeen = data
	return nil
}

// Read parses the file at path without creating or locking it. A missing
// file is reported as fs.ErrNotExist.
func Read(path string) (State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return State{}, err
	}
	st, err := decode(data)
	if err != nil {
		return State{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return st, nil
}

func decode(data []byte) (State, error) {
	var st State
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&st); err != nil {
		return State{}, err
	}
	return st, nil
}
