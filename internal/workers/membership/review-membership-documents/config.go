// internal/workers/membership/review-membership-documents/config.go
package reviewmembershipdocuments

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 10 * time.Second,
	}
}
