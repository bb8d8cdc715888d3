package main

import (
	"os"

	"gopkg.in/yaml.v3"
)

// fileConfig is the optional on-disk config `--config` loads. Command-line
// flags always override a value set here; config only supplies render
// defaults.
type fileConfig struct {
	Deterministic bool   `yaml:"deterministic"`
	Output        string `yaml:"output"`
}

func loadConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
