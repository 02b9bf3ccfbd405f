package config

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"contra/internal/logger"
)

const watchDebounce = 500 * time.Millisecond

// Watch reloads the config file on change and hands the validated result to
// onChange. Invalid edits are logged and skipped, so a half-saved file never
// reaches the engine. The returned stop function ends watching.
func Watch(path string, onChange func(*Config)) (func(), error) {
	if onChange == nil {
		return func() {}, nil
	}
	// probe once so a bad path fails at startup, not on first edit
	if _, err := Load(path); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var mu sync.Mutex
	var pending *time.Timer
	stopped := false

	v.OnConfigChange(func(evt fsnotify.Event) {
		mu.Lock()
		defer mu.Unlock()
		if stopped {
			return
		}
		// editors fire multiple events per save, debounce them
		if pending != nil {
			pending.Stop()
		}
		pending = time.AfterFunc(watchDebounce, func() {
			cfg, err := Load(path)
			if err != nil {
				logger.Warnf("config reload skipped (%s): %v", evt.Name, err)
				return
			}
			logger.Infof("config reloaded from %s", path)
			onChange(cfg)
		})
	})
	v.WatchConfig()

	return func() {
		mu.Lock()
		stopped = true
		if pending != nil {
			pending.Stop()
		}
		mu.Unlock()
	}, nil
}
