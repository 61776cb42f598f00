package retention

import (
	"sync/atomic"
	"time"

	"mercator-hq/apilog/pkg/config"
)

// Policy controls which records a sweep deletes and how.
type Policy struct {
	Enabled        bool
	RetentionDays  int
	BatchSize      int
	CronExpression string
}

// DefaultPolicy returns the default retention policy: enabled, 7 days,
// batches of 1000, daily at 02:00.
func DefaultPolicy() Policy {
	return Policy{
		Enabled:        config.DefaultRetentionEnabled,
		RetentionDays:  config.DefaultRetentionDays,
		BatchSize:      config.DefaultRetentionBatchSize,
		CronExpression: config.DefaultRetentionCronExpression,
	}
}

// PolicyFromConfig converts the retention configuration section.
func PolicyFromConfig(cfg *config.RetentionConfig) Policy {
	return Policy{
		Enabled:        cfg.Enabled,
		RetentionDays:  cfg.RetentionDays,
		BatchSize:      cfg.BatchSize,
		CronExpression: cfg.CronExpression,
	}
}

// Validate checks the policy with the same rules as the configuration loader.
func (p Policy) Validate() error {
	errs := config.ValidateRetention(&config.RetentionConfig{
		Enabled:        p.Enabled,
		RetentionDays:  p.RetentionDays,
		BatchSize:      p.BatchSize,
		CronExpression: p.CronExpression,
	})
	if len(errs) > 0 {
		return config.ValidationError{Errors: errs}
	}
	return nil
}

// Cutoff returns the instant before which records are eligible for deletion.
func (p Policy) Cutoff(now time.Time) time.Time {
	return now.AddDate(0, 0, -p.RetentionDays)
}

// PolicySource holds the current policy. Readers always see a complete
// policy; a sweep takes one snapshot when it starts.
type PolicySource struct {
	current atomic.Pointer[Policy]
}

// NewPolicySource validates p and returns a source holding it.
func NewPolicySource(p Policy) (*PolicySource, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	s := &PolicySource{}
	s.current.Store(&p)
	return s, nil
}

// Current returns a snapshot of the current policy.
func (s *PolicySource) Current() Policy {
	return *s.current.Load()
}

// Update validates p and makes it current. An invalid policy leaves the
// current one in place.
func (s *PolicySource) Update(p Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.current.Store(&p)
	return nil
}
