package scheduler

import (
	"time"

	"github.com/arnavshah/slot-assignment-api/pkg/models"
)

// Config tunes scoring, confidence, approval and repository access.
type Config struct {
	Weights               models.Weights `json:"weights" yaml:"weights"`
	AutoApprovalThreshold int            `json:"autoApprovalThreshold" yaml:"auto_approval_threshold"`
	// ConfidenceFloor is added to the raw score; ConfidenceCap bounds the result.
	// Neither is a calibrated probability.
	ConfidenceFloor   int           `json:"confidenceFloor" yaml:"confidence_floor"`
	ConfidenceCap     int           `json:"confidenceCap" yaml:"confidence_cap"`
	RepositoryTimeout time.Duration `json:"repositoryTimeout" yaml:"repository_timeout"`
	RetryBackoff      time.Duration `json:"retryBackoff" yaml:"retry_backoff"`
	// MaxWorkers bounds concurrent per-slot scoring. Zero means one worker per slot.
	MaxWorkers int `json:"maxWorkers" yaml:"max_workers"`
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		Weights: models.Weights{
			SkillMatch:  10,
			Performance: 5,
			TimeFit:     20,
		},
		AutoApprovalThreshold: 80,
		ConfidenceFloor:       70,
		ConfidenceCap:         95,
		RepositoryTimeout:     5 * time.Second,
		RetryBackoff:          100 * time.Millisecond,
	}
}

// Validate checks that every tunable is in range.
func (c Config) Validate() error {
	vErr := &ValidationError{}
	if c.Weights.SkillMatch < 0 {
		vErr.add("weights.skillMatch", "must not be negative")
	}
	if c.Weights.Performance < 0 {
		vErr.add("weights.performance", "must not be negative")
	}
	if c.Weights.TimeFit < 0 {
		vErr.add("weights.timeFit", "must not be negative")
	}
	if !inPercentRange(c.AutoApprovalThreshold) {
		vErr.add("autoApprovalThreshold", "must be between 0 and 100")
	}
	if !inPercentRange(c.ConfidenceFloor) {
		vErr.add("confidenceFloor", "must be between 0 and 100")
	}
	if !inPercentRange(c.ConfidenceCap) {
		vErr.add("confidenceCap", "must be between 0 and 100")
	}
	if c.ConfidenceFloor > c.ConfidenceCap {
		vErr.add("confidenceFloor", "must not exceed confidenceCap")
	}
	if c.RepositoryTimeout <= 0 {
		vErr.add("repositoryTimeout", "must be positive")
	}
	if c.RetryBackoff < 0 {
		vErr.add("retryBackoff", "must not be negative")
	}
	if c.MaxWorkers < 0 {
		vErr.add("maxWorkers", "must not be negative")
	}
	if vErr.HasErrors() {
		return vErr
	}
	return nil
}

// WithPreferences overlays request preferences and validates the result.
func (c Config) WithPreferences(p *models.Preferences) (Config, error) {
	if p == nil {
		return c, c.Validate()
	}
	out := c
	out.Weights = out.Weights.Apply(p.Weights)
	if p.AutoApprovalThreshold != nil {
		out.AutoApprovalThreshold = *p.AutoApprovalThreshold
	}
	if p.ConfidenceFloor != nil {
		out.ConfidenceFloor = *p.ConfidenceFloor
	}
	if p.ConfidenceCap != nil {
		out.ConfidenceCap = *p.ConfidenceCap
	}
	if err := out.Validate(); err != nil {
		return c, err
	}
	return out, nil
}

// Confidence converts a suitability score into a 0-100 confidence.
func (c Config) Confidence(score int) int {
	conf := c.ConfidenceFloor + score
	if conf > c.ConfidenceCap {
		conf = c.ConfidenceCap
	}
	return clampPercent(conf)
}

func inPercentRange(v int) bool {
	return v >= 0 && v <= 100
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
