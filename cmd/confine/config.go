package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"
)

// AppConfig holds the driver's own small set of ambient settings, layered
// defaults → global XDG config → project config → CLI flags, the same
// way the teacher's own config.go layers agent-sandbox's settings
// (SPEC_FULL.md §10.2).
type AppConfig struct {
	// PolicyPath is the operator-editable policy file the driver owns
	// and wrappers reread on every retry.
	PolicyPath string `json:"policy_path,omitempty"`
	// CompilerName is the real compiler executable's base name, used by
	// detectRole to recognize a compiler invocation (argv[1]) and resolved
	// on PATH by the driver so the compiler role can exec it directly for
	// query-mode invocations.
	CompilerName string `json:"compiler_name,omitempty"`
	// NonInteractive, when true, answers every problem with GiveUp
	// instead of prompting the operator (useful for CI).
	NonInteractive bool `json:"non_interactive,omitempty"`
	// Debug enables the DebugLogger on stderr.
	Debug bool `json:"debug,omitempty"`

	// EffectiveBaseDir is the directory config paths not given absolute
	// are resolved against; not itself read from a config file.
	EffectiveBaseDir string `json:"-"`
}

const (
	defaultPolicyFileName = "confine-policy.jsonc"
	defaultCompilerName   = "rustc"
)

// DefaultAppConfig returns built-in defaults, the bottom of the layering
// order.
func DefaultAppConfig() AppConfig {
	return AppConfig{
		PolicyPath:   defaultPolicyFileName,
		CompilerName: defaultCompilerName,
	}
}

// LoadAppConfigInput holds the inputs to LoadAppConfig.
type LoadAppConfigInput struct {
	BaseDirOverride  string
	PolicyPathFlag   string
	DebugFlag        bool
	DebugFlagChanged bool
	NonInteractive   bool
	Env              map[string]string
}

// LoadAppConfig loads the driver's ambient configuration with the
// following precedence (later overrides earlier): built-in defaults →
// global XDG config (~/.config/confine/config.jsonc) → project config
// (confine.jsonc / confine.json in the base dir, erroring if both exist)
// → CLI flags.
func LoadAppConfig(input LoadAppConfigInput) (AppConfig, error) {
	baseDir := input.BaseDirOverride
	if baseDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return AppConfig{}, fmt.Errorf("getting working directory: %w", err)
		}

		baseDir = wd
	}

	cfg := DefaultAppConfig()
	cfg.EffectiveBaseDir = baseDir

	globalBase, err := globalConfigBasePath(input.Env)
	if err != nil {
		return AppConfig{}, err
	}

	if globalBase != "" {
		if path, findErr := findConfigFile(globalBase); findErr == nil {
			loaded, parseErr := parseAppConfigFile(path)
			if parseErr != nil {
				return AppConfig{}, parseErr
			}

			cfg = mergeAppConfig(cfg, loaded)
		} else if !errors.Is(findErr, os.ErrNotExist) {
			return AppConfig{}, findErr
		}
	}

	projectBase := filepath.Join(baseDir, "confine")

	if path, findErr := findConfigFile(projectBase); findErr == nil {
		loaded, parseErr := parseAppConfigFile(path)
		if parseErr != nil {
			return AppConfig{}, parseErr
		}

		cfg = mergeAppConfig(cfg, loaded)
	} else if !errors.Is(findErr, os.ErrNotExist) {
		return AppConfig{}, findErr
	}

	if input.PolicyPathFlag != "" {
		cfg.PolicyPath = input.PolicyPathFlag
	}

	if !filepath.IsAbs(cfg.PolicyPath) {
		cfg.PolicyPath = filepath.Join(baseDir, cfg.PolicyPath)
	}

	if input.DebugFlagChanged {
		cfg.Debug = input.DebugFlag
	}

	cfg.NonInteractive = cfg.NonInteractive || input.NonInteractive

	return cfg, nil
}

func mergeAppConfig(base, override AppConfig) AppConfig {
	if override.PolicyPath != "" {
		base.PolicyPath = override.PolicyPath
	}

	if override.CompilerName != "" {
		base.CompilerName = override.CompilerName
	}

	base.NonInteractive = base.NonInteractive || override.NonInteractive
	base.Debug = base.Debug || override.Debug

	return base
}

// globalConfigBasePath returns the extension-less base path for the
// global config file, honoring XDG_CONFIG_HOME from env rather than
// os.Getenv so tests can control it.
func globalConfigBasePath(env map[string]string) (string, error) {
	xdg := env["XDG_CONFIG_HOME"]
	if xdg != "" {
		return filepath.Join(xdg, "confine", "config"), nil
	}

	home := env["HOME"]
	if home == "" {
		return "", nil
	}

	return filepath.Join(home, ".config", "confine", "config"), nil
}

// findConfigFile checks for basePath+".json" and basePath+".jsonc",
// erroring if both exist, and returns os.ErrNotExist (wrapped) if
// neither does.
func findConfigFile(basePath string) (string, error) {
	jsonPath := basePath + ".json"
	jsoncPath := basePath + ".jsonc"

	_, jsonErr := os.Stat(jsonPath)
	_, jsoncErr := os.Stat(jsoncPath)

	jsonExists := jsonErr == nil
	jsoncExists := jsoncErr == nil

	switch {
	case jsonExists && jsoncExists:
		return "", fmt.Errorf("both %s and %s exist; remove one", jsonPath, jsoncPath)
	case jsonExists:
		return jsonPath, nil
	case jsoncExists:
		return jsoncPath, nil
	default:
		return "", fmt.Errorf("no config file at %s(.json|.jsonc): %w", basePath, os.ErrNotExist)
	}
}

func parseAppConfigFile(path string) (AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return AppConfig{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return AppConfig{}, fmt.Errorf("parsing config %s: %w", path, err)
	}

	var cfg AppConfig

	decoder := json.NewDecoder(bytes.NewReader(standardized))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&cfg); err != nil {
		return AppConfig{}, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}
