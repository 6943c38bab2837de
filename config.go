package xlform

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the file form of the library and CLI settings.
type Config struct {
	Database            string       `yaml:"database"`
	LogLevel            string       `yaml:"log_level"`
	HeaderScanRows      *int         `yaml:"header_scan_rows"`
	RecalcPolicy        string       `yaml:"recalc_policy"`
	LookupConcurrency   int          `yaml:"lookup_concurrency"`
	HistoryLimit        int          `yaml:"history_limit"`
	DefaultTemplateName string       `yaml:"default_template_name"`
	DefaultDescription  string       `yaml:"default_description"`
	Password            string       `yaml:"password"`
	Rules               []RuleConfig `yaml:"rules"`
}

// RuleConfig is a custom header rule in a config file.
type RuleConfig struct {
	Field string `yaml:"field"`
	Expr  string `yaml:"expr"`
}

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML config text. Unknown keys are rejected.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// Options converts the config to library options.
func (c *Config) Options() ([]Option, error) {
	var opts []Option
	if c.HeaderScanRows != nil {
		opts = append(opts, WithHeaderScanRows(*c.HeaderScanRows))
	}
	if c.RecalcPolicy != "" {
		p, err := ParseRecalcPolicy(c.RecalcPolicy)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithRecalcPolicy(p))
	}
	if c.LookupConcurrency > 0 {
		opts = append(opts, WithLookupConcurrency(c.LookupConcurrency))
	}
	if c.HistoryLimit > 0 {
		opts = append(opts, WithHistoryLimit(c.HistoryLimit))
	}
	if c.DefaultTemplateName != "" {
		opts = append(opts, WithDefaultTemplateName(c.DefaultTemplateName))
	}
	if c.DefaultDescription != "" {
		opts = append(opts, WithDefaultDescription(c.DefaultDescription))
	}
	if c.Password != "" {
		opts = append(opts, WithCodec(NewExcelizeCodec(WithPassword(c.Password))))
	}
	if len(c.Rules) > 0 {
		rules := make([]HeaderRule, 0, len(c.Rules))
		for i, r := range c.Rules {
			field, err := ParseField(r.Field)
			if err != nil {
				return nil, fmt.Errorf("rules[%d]: %w", i, err)
			}
			rules = append(rules, HeaderRule{Field: field, Expr: r.Expr})
		}
		if _, err := NewRuleSet(rules); err != nil {
			return nil, err
		}
		opts = append(opts, WithRules(rules...))
	}
	return opts, nil
}

// ParseLogLevel maps debug, info, warn and error to slog levels.
func ParseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}
