package conf

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ModulesConfig carries per-module settings, loaded from YAML. Every
// module has an always_run switch; modules with side effects that must
// see every message (like mediasave) default it to true.
type ModulesConfig struct {
	Highlight HighlightConfig `yaml:"highlight"`
	Alive     AliveConfig     `yaml:"alive"`
	MediaSave MediaSaveConfig `yaml:"mediasave"`
}

// HighlightConfig configures the highlight group module.
type HighlightConfig struct {
	AlwaysRun bool `yaml:"always_run"`
	// OnlineOnly filters highlight targets to members whose presence
	// is "online".
	OnlineOnly bool `yaml:"online_only"`
}

// AliveConfig configures the liveness responder.
type AliveConfig struct {
	AlwaysRun bool `yaml:"always_run"`
}

// MediaSaveConfig configures the media archiving module.
type MediaSaveConfig struct {
	AlwaysRun bool `yaml:"always_run"`
	// SaveDir is where downloaded media is written. The module is
	// skipped when unset.
	SaveDir string `yaml:"save_dirpath"`
	// PublicURL, when set, is the base URL announced for saved files.
	PublicURL string `yaml:"url_to_access_saved_files"`
	// Hosts are substring patterns a link must match to be archived.
	Hosts []string `yaml:"hosts"`
}

// DefaultModulesConfig returns the settings used when no YAML file is
// present.
func DefaultModulesConfig() *ModulesConfig {
	return &ModulesConfig{
		MediaSave: MediaSaveConfig{
			AlwaysRun: true,
			Hosts:     []string{"4chan.org", "i.4cdn.org"},
		},
	}
}

// LoadModulesConfig loads module settings from a YAML file. An
// explicitly given path must exist. When path is empty, a set of
// conventional locations is tried and absence is not an error; defaults
// apply.
func LoadModulesConfig(path string) (*ModulesConfig, error) {
	paths := []string{path}
	if path == "" {
		paths = []string{
			"configs/modules.yaml",
			"/etc/roombot/modules.yaml",
		}
		if execPath, err := os.Executable(); err == nil {
			paths = append(paths, filepath.Join(filepath.Dir(execPath), "configs", "modules.yaml"))
		}
	}

	cfg := DefaultModulesConfig()
	for _, candidate := range paths {
		data, err := os.ReadFile(candidate)
		if err != nil {
			if os.IsNotExist(err) && path == "" {
				continue
			}
			return nil, fmt.Errorf("conf: failed to read %s: %w", candidate, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("conf: failed to parse %s: %w", candidate, err)
		}
		return cfg, nil
	}
	return cfg, nil
}
