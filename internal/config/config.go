// Package config loads reports.yaml, the shared configuration for the
// ingest daemon and the report generator.
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	RecordingDir string `yaml:"recording_dir"`
	OutputDir    string `yaml:"output_dir"`
	RulesetPath  string `yaml:"ruleset"`
	SchemaPath   string `yaml:"schema"`
	IndexDB      string `yaml:"index_db"`

	ReportTurns []int    `yaml:"report_turns,omitempty"`
	Categories  []string `yaml:"categories,omitempty"`

	Ingest IngestSpec `yaml:"ingest"`
}

type IngestSpec struct {
	Addr           string `yaml:"addr"`
	MaxMessageSize int64  `yaml:"max_message_size"`
	CompressFiles  bool   `yaml:"compress_files"`
	AuditLog       bool   `yaml:"audit_log"`
}

func Load(path string) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("reports.yaml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("reports.yaml: %w", err)
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		RecordingDir: "recordings",
		OutputDir:    "reports",
		IndexDB:      "index/reports.db",
		Ingest: IngestSpec{
			Addr:           ":8090",
			MaxMessageSize: 8 << 20,
			CompressFiles:  true,
			AuditLog:       true,
		},
	}
}

func (c *Config) Normalize() {
	if c == nil {
		return
	}
	if strings.TrimSpace(c.Ingest.Addr) == "" {
		c.Ingest.Addr = ":8090"
	}
	if c.Ingest.MaxMessageSize <= 0 {
		c.Ingest.MaxMessageSize = 8 << 20
	}
	sort.Ints(c.ReportTurns)
	c.ReportTurns = dedupe(c.ReportTurns)
}

func dedupe(xs []int) []int {
	out := xs[:0]
	for i, x := range xs {
		if i == 0 || x != xs[i-1] {
			out = append(out, x)
		}
	}
	return out
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.RecordingDir) == "" {
		return fmt.Errorf("recording_dir must not be empty")
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		return fmt.Errorf("output_dir must not be empty")
	}
	for _, t := range c.ReportTurns {
		if t < 0 {
			return fmt.Errorf("report_turns must be >= 0, got %d", t)
		}
	}
	seen := map[string]bool{}
	for _, name := range c.Categories {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("categories must not contain empty names")
		}
		if seen[name] {
			return fmt.Errorf("duplicate category: %s", name)
		}
		seen[name] = true
	}
	return nil
}
