package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Settings holds service endpoints and defaults loaded from the
// configuration file, overridable per key via WEAVER_* environment
// variables.
type Settings struct {
	StateTopdir   string `yaml:"state_topdir,omitempty"`
	FarmToken     string `yaml:"farm_token,omitempty"`
	TrackerURL    string `yaml:"tracker_url,omitempty"`
	TrackerToken  string `yaml:"tracker_token,omitempty"`
	LaunchURL     string `yaml:"launch_url,omitempty"`
	LaunchProject string `yaml:"launch_project,omitempty"`
	LaunchToken   string `yaml:"launch_token,omitempty"`
	// PollDelay is the execution poll interval in seconds.
	PollDelay int `yaml:"poll_delay,omitempty"`
	// Workers caps concurrent request submissions.
	Workers int `yaml:"workers,omitempty"`
}

func defaultSettings() Settings {
	return Settings{
		StateTopdir: "/var/tmp/weaver",
		PollDelay:   30,
		Workers:     8,
	}
}

// LoadSettings reads the configuration file and applies environment
// overrides. An explicitly given path must exist; the default path
// (~/.weaver.yaml, or $WEAVER_CONF_FILE) is optional.
func LoadSettings(path string) (Settings, error) {
	s := defaultSettings()

	explicit := path != ""
	if path == "" {
		path = os.Getenv("WEAVER_CONF_FILE")
		explicit = path != ""
	}
	if path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, ".weaver.yaml")
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &s); err != nil {
				return s, fmt.Errorf("parse configuration %s: %w", path, err)
			}
		case os.IsNotExist(err) && !explicit:
			// optional default config
		default:
			return s, fmt.Errorf("read configuration %s: %w", path, err)
		}
	}

	envString("WEAVER_STATE_TOPDIR", &s.StateTopdir)
	envString("WEAVER_FARM_TOKEN", &s.FarmToken)
	envString("WEAVER_TRACKER_URL", &s.TrackerURL)
	envString("WEAVER_TRACKER_TOKEN", &s.TrackerToken)
	envString("WEAVER_LAUNCH_URL", &s.LaunchURL)
	envString("WEAVER_LAUNCH_PROJECT", &s.LaunchProject)
	envString("WEAVER_LAUNCH_TOKEN", &s.LaunchToken)
	if err := envInt("WEAVER_POLL_DELAY", &s.PollDelay); err != nil {
		return s, err
	}
	if err := envInt("WEAVER_WORKERS", &s.Workers); err != nil {
		return s, err
	}
	return s, nil
}

func envString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func envInt(key string, dst *int) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}
