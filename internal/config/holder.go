package config

import "sync"

// Holder hands out the current Config and supports atomic reload. Readers
// always see a complete config; a failed reload keeps the previous one.
type Holder struct {
	mu   sync.RWMutex
	cfg  *Config
	path string
}

// NewHolder wraps an already-loaded Config with the YAML path reloads re-read.
func NewHolder(cfg *Config, yamlPath string) *Holder {
	return &Holder{cfg: cfg, path: yamlPath}
}

// Get returns the current Config.
func (h *Holder) Get() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

// Reload re-runs the full load pipeline against the stored path and swaps the
// config in on success. Components that captured values at construction keep
// them; only holder readers observe the change.
func (h *Holder) Reload() error {
	cfg, err := LoadFrom(h.path)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.cfg = cfg
	h.mu.Unlock()
	return nil
}
