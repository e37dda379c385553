package curation

// Config holds the avoidance thresholds and switching policy.
type Config struct {
	Enabled    bool `json:"enabled"`
	AutoSwitch bool `json:"auto_switch"`
	// MaxConsecutiveFailures is the ceiling at which a provider is Critical
	// and avoided regardless of its history.
	MaxConsecutiveFailures int `json:"max_consecutive_failures"`
	// MinReliability is the effective reliability floor, applied during a
	// failure streak once at least MinRequests outcomes were recorded.
	MinReliability float64 `json:"min_reliability"`
	MinRequests    int     `json:"min_requests"`
}

func DefaultConfig() Config {
	return Config{
		Enabled:                true,
		AutoSwitch:             true,
		MaxConsecutiveFailures: 10,
		MinReliability:         0.3,
		MinRequests:            20,
	}
}
