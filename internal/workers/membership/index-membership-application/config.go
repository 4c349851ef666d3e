// internal/workers/membership/index-membership-application/config.go
package indexmembershipapplication

import "time"

type Config struct {
	IndexName string
	Timeout   time.Duration
}

func LoadConfig() *Config {
	return &Config{
		IndexName: DefaultIndexName,
		Timeout:   15 * time.Second,
	}
}
