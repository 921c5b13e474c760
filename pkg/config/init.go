package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const sampleHeader = `ps3netsrv Configuration File

Every value can be overridden with an environment variable:
  PS3NETSRV_<SECTION>_<KEY>, e.g. PS3NETSRV_ADAPTERS_NETISO_PORT=38009

Command line flags (-F, -P, -M, -R, -T, -I) override both.`

// sectionComments documents the top-level sections of the sample file.
var sectionComments = map[string]string{
	"logging": "Logging: level DEBUG|INFO|WARN|ERROR, format text|json,\noutput stdout|stderr|<file path> (files are rotated)",
	"server":  "Served folder. Sibling <dir>.INI files list extra roots merged into <dir>.",
	"adapters": "Protocol listener. filter.mode is NONE, ALLOWED or BLOCKED;\n" +
		"filter.addresses takes IPs or CIDR ranges. max_connections 0 = unlimited.",
	"metrics": "Prometheus endpoint served on /metrics when enabled.",
}

// InitConfig writes a sample configuration file at the default location.
//
// Returns the path of the written file. An existing file is only
// replaced when force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a sample configuration file at path.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	return WriteSample(path, GetDefaultConfig())
}

// WriteSample writes cfg as commented YAML, creating parent directories.
func WriteSample(path string, cfg *Config) error {
	data, err := generateYAMLWithComments(cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// generateYAMLWithComments marshals cfg and annotates the document and
// its top-level sections.
func generateYAMLWithComments(cfg *Config) ([]byte, error) {
	var doc yaml.Node
	if err := doc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	doc.HeadComment = sampleHeader

	// a mapping node holds alternating key and value nodes
	for i := 0; i+1 < len(doc.Content); i += 2 {
		key := doc.Content[i]
		if comment, ok := sectionComments[key.Value]; ok {
			key.HeadComment = comment
		}
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return buf.Bytes(), nil
}
