package config

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/af-corp/conduit/internal/pricing"
)

var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:default} patterns in a string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		submatch := envVarPattern.FindStringSubmatch(match)
		if len(submatch) < 2 {
			return match
		}
		varName := submatch[1]
		defaultVal := ""
		if len(submatch) >= 3 {
			defaultVal = submatch[2]
		}
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return defaultVal
	})
}

// LoadFile reads a YAML file, expands env vars, and unmarshals into dest.
func LoadFile(path string, dest interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	expanded := expandEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(expanded), dest); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Loader manages configuration loading and hot-reload via fsnotify. It
// serves conduit.yaml (service), providers.yaml (orchestrators) and
// pricing.yaml (pricing overrides on top of the built-in table).
type Loader struct {
	configDir string
	mu        sync.RWMutex
	cfg       *Config
	orch      *OrchestratorsConfig
	pricing   pricing.Table
	watchers  []func()
	logger    *slog.Logger
}

func NewLoader(configDir string, logger *slog.Logger) *Loader {
	return &Loader{
		configDir: configDir,
		logger:    logger,
	}
}

func (l *Loader) Load() error {
	cfg := DefaultConfig()
	if err := LoadFile(l.configDir+"/conduit.yaml", cfg); err != nil {
		return fmt.Errorf("load service config: %w", err)
	}

	orch := &OrchestratorsConfig{}
	if err := LoadFile(l.configDir+"/providers.yaml", orch); err != nil {
		return fmt.Errorf("load providers config: %w", err)
	}
	if err := orch.Validate(); err != nil {
		return fmt.Errorf("validate providers config: %w", err)
	}

	table := pricing.DefaultTable()
	pricingPath := l.configDir + "/pricing.yaml"
	if data, err := os.ReadFile(pricingPath); err == nil {
		if err := table.MergeYAML([]byte(expandEnvVars(string(data)))); err != nil {
			return fmt.Errorf("load pricing overrides: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("read pricing overrides: %w", err)
	}

	l.mu.Lock()
	l.cfg = cfg
	l.orch = orch
	l.pricing = table
	l.mu.Unlock()

	l.logger.Info("configuration loaded", "dir", l.configDir, "orchestrators", len(orch.Orchestrators))
	return nil
}

func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

func (l *Loader) Orchestrators() *OrchestratorsConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.orch
}

func (l *Loader) Pricing() pricing.Table {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.pricing
}

// OnReload registers a callback that fires after config is reloaded.
func (l *Loader) OnReload(fn func()) {
	l.watchers = append(l.watchers, fn)
}

// Watch starts watching the config directory for changes and reloads on
// modification.
func (l *Loader) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(l.configDir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch config dir %s: %w", l.configDir, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					l.logger.Info("config file changed, reloading", "file", event.Name)
					if err := l.Load(); err != nil {
						l.logger.Error("failed to reload config", "error", err)
						continue
					}
					for _, fn := range l.watchers {
						fn()
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.logger.Error("fsnotify error", "error", err)
			}
		}
	}()

	return nil
}
