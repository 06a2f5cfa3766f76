// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

type Config struct {
	Server struct {
		Host string `json:"host"`
		Port int    `json:"port"`
	} `json:"server"`

	Database struct {
		Path string `json:"path"`
	} `json:"database"`

	Ingest struct {
		// Inbox is the directory watched for edited template bundles.
		// Empty disables the watcher.
		Inbox  string `json:"inbox"`
		Branch string `json:"branch"`
		Author string `json:"author"`
	} `json:"ingest"`

	Environment string `json:"environment"` // dev, prod
	LogLevel    string `json:"log_level"`   // debug, info, warn, error
}

func DefaultPath() string {
	env := os.Getenv("QUILL_ENV")
	if env == "" {
		env = "development"
	}
	return fmt.Sprintf("config/config.%s.json", env)
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var config Config
	if err := json.NewDecoder(file).Decode(&config); err != nil {
		return nil, err
	}

	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.Ingest.Branch == "" {
		config.Ingest.Branch = "main"
	}

	return &config, nil
}
