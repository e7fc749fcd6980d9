package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PipelineLimits is the optional YAML override for batching ceilings and
// pacing bounds, deployed alongside the service when the defaults need
// per-environment tuning.
type PipelineLimits struct {
	MaxBatchFiles        int   `yaml:"max_batch_files"`
	MaxBatchPayloadBytes int64 `yaml:"max_batch_payload_bytes"`
	MaxBatchTokens       int   `yaml:"max_batch_tokens"`
	MaxFileBytes         int64 `yaml:"max_file_bytes"`

	DelayFractionPercent      int `yaml:"delay_fraction_percent"`
	DelayMinMs                int `yaml:"delay_min_ms"`
	DelayMaxMs                int `yaml:"delay_max_ms"`
	DelayFastThresholdSeconds int `yaml:"delay_fast_threshold_seconds"`
}

// ApplyLimitsFile overlays non-zero values from the configured limits file.
// A missing LimitsFile setting is not an error.
func (c *Config) ApplyLimitsFile() error {
	if c.LimitsFile == "" {
		return nil
	}

	raw, err := os.ReadFile(c.LimitsFile)
	if err != nil {
		return fmt.Errorf("read limits file: %w", err)
	}
	var limits PipelineLimits
	if err := yaml.Unmarshal(raw, &limits); err != nil {
		return fmt.Errorf("parse limits file: %w", err)
	}

	if limits.MaxBatchFiles > 0 {
		c.MaxBatchFiles = limits.MaxBatchFiles
	}
	if limits.MaxBatchPayloadBytes > 0 {
		c.MaxBatchPayloadBytes = limits.MaxBatchPayloadBytes
	}
	if limits.MaxBatchTokens > 0 {
		c.MaxBatchTokens = limits.MaxBatchTokens
	}
	if limits.MaxFileBytes > 0 {
		c.MaxFileBytes = limits.MaxFileBytes
	}
	if limits.DelayFractionPercent > 0 {
		c.DelayFractionPercent = limits.DelayFractionPercent
	}
	if limits.DelayMinMs > 0 {
		c.DelayMinMs = limits.DelayMinMs
	}
	if limits.DelayMaxMs > 0 {
		c.DelayMaxMs = limits.DelayMaxMs
	}
	if limits.DelayFastThresholdSeconds > 0 {
		c.DelayFastThresholdSeconds = limits.DelayFastThresholdSeconds
	}
	return nil
}
