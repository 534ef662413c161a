// Package config loads and validates the JSON configuration document that
// drives the polling/discovery/build engine.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
)

// RetryBackoffMode selects how the retry policy grows delays between
// attempts at a transient git operation.
type RetryBackoffMode string

const (
	RetryBackoffFixed       RetryBackoffMode = "fixed"
	RetryBackoffLinear      RetryBackoffMode = "linear"
	RetryBackoffExponential RetryBackoffMode = "exponential"
)

// RepoConfig is one entry of the configured repository set (spec §3, §6).
type RepoConfig struct {
	URL             string   `json:"url"`
	PollIntervalSec uint64   `json:"poll_interval_sec"`
	Branches        []string `json:"branches"`
	BuildDepth      uint8    `json:"build_depth"`
	CredentialsFile string   `json:"credentials_file,omitempty"`

	// ReadCredentials holds the trimmed contents of CredentialsFile, read
	// once at load time. Never serialized back out.
	ReadCredentials string `json:"-"`
}

// Settings is the top-level configuration document (spec §6).
type Settings struct {
	Repos                  []RepoConfig     `json:"repos"`
	Dir                    string           `json:"dir"`
	SupportedArchitectures []string         `json:"supported_architectures"`
	Host                   string           `json:"host"`
	Port                   uint16           `json:"port"`
	NBuildThreads          uint             `json:"n_build_threads"`
	RetryBackoff           RetryBackoffMode `json:"retry_backoff,omitempty"`
}

// EffectiveBuildThreads returns NBuildThreads, or the host CPU count when
// NBuildThreads is zero (spec §4.1, §6).
func (s *Settings) EffectiveBuildThreads() int {
	if s.NBuildThreads > 0 {
		return int(s.NBuildThreads)
	}
	return runtime.NumCPU()
}

// Load reads and validates the configuration document at path. A .env file
// in the current working directory, if present, is loaded first so ${VAR} references inside the
// JSON document can be supplied as environment variables without editing
// the file on disk.
func Load(path string) (*Settings, error) {
	_ = godotenv.Load()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	expanded := os.ExpandEnv(string(raw))

	var s Settings
	if err := json.Unmarshal([]byte(expanded), &s); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if s.Host == "" {
		s.Host = "0.0.0.0"
	}
	if s.Port == 0 {
		s.Port = 8080
	}
	if s.RetryBackoff == "" {
		s.RetryBackoff = RetryBackoffLinear
	}

	if err := s.validate(); err != nil {
		return nil, err
	}

	for i := range s.Repos {
		r := &s.Repos[i]
		if r.CredentialsFile == "" {
			continue
		}
		data, err := os.ReadFile(r.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("config: credentials file %s for repo %s: %w", r.CredentialsFile, r.URL, err)
		}
		r.ReadCredentials = strings.TrimSpace(string(data))
	}

	return &s, nil
}

// validate enforces the startup-fatal Configuration error class (spec §7):
// missing directory, no repos, and unknown architecture tags.
func (s *Settings) validate() error {
	if s.Dir == "" {
		return fmt.Errorf("config: %w: dir is required", errConfiguration)
	}
	if len(s.Repos) == 0 {
		return fmt.Errorf("config: %w: repos must not be empty", errConfiguration)
	}
	for _, arch := range s.SupportedArchitectures {
		if !ValidArchitecture(arch) {
			return fmt.Errorf("config: %w: supported_architectures entry %q is not a recognised architecture tag", errConfiguration, arch)
		}
	}
	for _, r := range s.Repos {
		if r.URL == "" {
			return fmt.Errorf("config: %w: repo url is required", errConfiguration)
		}
		if len(r.Branches) == 0 {
			return fmt.Errorf("config: %w: repo %s: branches must not be empty", errConfiguration, r.URL)
		}
		if r.BuildDepth == 0 {
			return fmt.Errorf("config: %w: repo %s: build_depth must be >= 1", errConfiguration, r.URL)
		}
	}
	return nil
}

var errConfiguration = errors.New("configuration error")

// IsConfigurationError reports whether err is (or wraps) a fatal startup
// configuration error, as opposed to a transient runtime error.
func IsConfigurationError(err error) bool {
	return errors.Is(err, errConfiguration)
}
