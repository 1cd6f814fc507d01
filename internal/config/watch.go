package config

import (
	"log"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Watch reloads the config file when it changes and passes the new Config
// to onChange. Invalid edits are logged and ignored, keeping the last good
// config in effect. Does nothing when no config file was loaded.
func Watch(v *viper.Viper, logger *log.Logger, onChange func(*Config)) {
	if v.ConfigFileUsed() == "" {
		return
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := Decode(v)
		if err != nil {
			logger.Printf("Ignoring config change in %s: %v", e.Name, err)
			return
		}
		logger.Printf("Config reloaded from %s", e.Name)
		onChange(cfg)
	})
	v.WatchConfig()
}
