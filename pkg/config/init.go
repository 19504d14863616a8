package config

import (
	"fmt"
	"os"
)

// InitConfigToPath writes a default configuration document to path. It
// fails if a file already exists there unless force is set.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists: %s", path)
		}
	}
	return SaveConfig(GetDefaultConfig(), path)
}

// InitConfig writes a default configuration document to the default
// location ($XDG_CONFIG_HOME/s3lite/config.yaml, or ~/.config/s3lite as a
// fallback) and returns the path written.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}
