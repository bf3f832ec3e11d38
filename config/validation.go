package config

import (
	"time"
)

// ValidationError represents a validation error for a specific field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult holds the result of config validation.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// Validate checks the config for invalid values.
func (c *Config) Validate() ValidationResult {
	var errors []ValidationError

	errors = append(errors, validatePoller(&c.Poller)...)
	errors = append(errors, validateDetection(&c.Detection)...)
	errors = append(errors, validateRetention(&c.Retention)...)
	errors = append(errors, validateFeed(&c.Feed)...)

	return ValidationResult{
		Valid:  len(errors) == 0,
		Errors: errors,
	}
}

func validatePoller(p *PollerConfig) []ValidationError {
	var errors []ValidationError

	if p.Interval < time.Second {
		errors = append(errors, ValidationError{
			Field:   "poller.interval",
			Message: "must be at least 1 second",
		})
	}
	if p.NotifyPacing < 0 {
		errors = append(errors, ValidationError{
			Field:   "poller.notify_pacing",
			Message: "must be non-negative",
		})
	}

	return errors
}

func validateDetection(d *DetectionConfig) []ValidationError {
	var errors []ValidationError

	if d.WhaleThreshold < 1 || d.WhaleThreshold > 100000 {
		errors = append(errors, ValidationError{
			Field:   "detection.whale_threshold",
			Message: "must be between 1 and 100000",
		})
	}
	if d.WhaleDedupWindow < time.Minute {
		errors = append(errors, ValidationError{
			Field:   "detection.whale_dedup_window",
			Message: "must be at least 1 minute",
		})
	}
	if d.MinQualityScore < 0 || d.MinQualityScore > 100 {
		errors = append(errors, ValidationError{
			Field:   "detection.min_quality_score",
			Message: "must be between 0 and 100",
		})
	}
	if d.CoordWallets < 2 || d.CoordWallets > 20 {
		errors = append(errors, ValidationError{
			Field:   "detection.coord_wallets",
			Message: "must be between 2 and 20",
		})
	}
	if d.CoordWindow < 10*time.Second {
		errors = append(errors, ValidationError{
			Field:   "detection.coord_window",
			Message: "must be at least 10 seconds",
		})
	}
	if d.CoordMinTotal < 0 {
		errors = append(errors, ValidationError{
			Field:   "detection.coord_min_total",
			Message: "must be non-negative",
		})
	}
	if d.SpikeRatio < 1 {
		errors = append(errors, ValidationError{
			Field:   "detection.spike_ratio",
			Message: "must be at least 1",
		})
	}
	if d.SpikeAverageHours < 1 {
		errors = append(errors, ValidationError{
			Field:   "detection.spike_average_hours",
			Message: "must be at least 1",
		})
	}

	return errors
}

func validateRetention(r *RetentionConfig) []ValidationError {
	var errors []ValidationError

	if r.MaxAge < 24*time.Hour {
		errors = append(errors, ValidationError{
			Field:   "retention.max_age",
			Message: "must be at least 24 hours",
		})
	}

	return errors
}

func validateFeed(f *FeedConfig) []ValidationError {
	var errors []ValidationError

	if f.BaseURL == "" {
		errors = append(errors, ValidationError{
			Field:   "feed.base_url",
			Message: "must not be empty",
		})
	}
	if f.Timeout < time.Second {
		errors = append(errors, ValidationError{
			Field:   "feed.timeout",
			Message: "must be at least 1 second",
		})
	}
	if f.PageLimit < 1 {
		errors = append(errors, ValidationError{
			Field:   "feed.page_limit",
			Message: "must be at least 1",
		})
	}
	if f.Lookback < time.Minute {
		errors = append(errors, ValidationError{
			Field:   "feed.lookback",
			Message: "must be at least 1 minute",
		})
	}

	return errors
}
