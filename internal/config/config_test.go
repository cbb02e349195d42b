package config

import (
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	tests := []struct {
		name   string
		check  func(*Config) bool
		expect string
	}{
		{
			name:   "default environment is development",
			check:  func(c *Config) bool { return c.Environment == "development" },
			expect: "development",
		},
		{
			name:   "default host is 0.0.0.0",
			check:  func(c *Config) bool { return c.Host == "0.0.0.0" },
			expect: "0.0.0.0",
		},
		{
			name:   "default port is 8080",
			check:  func(c *Config) bool { return c.Port == 8080 },
			expect: "8080",
		},
		{
			name:   "default log level is info",
			check:  func(c *Config) bool { return c.LogLevel == "info" },
			expect: "info",
		},
		{
			name:   "default log format is json",
			check:  func(c *Config) bool { return c.LogFormat == "json" },
			expect: "json",
		},
		{
			name:   "default metrics path",
			check:  func(c *Config) bool { return c.MetricsPath == "/metrics" },
			expect: "/metrics",
		},
		{
			name:   "listen addr format",
			check:  func(c *Config) bool { return c.ListenAddr() == "0.0.0.0:8080" },
			expect: "0.0.0.0:8080",
		},
		{
			name:   "default rate limit anonymous",
			check:  func(c *Config) bool { return c.RateLimitAnonymous == 5 },
			expect: "5",
		},
		{
			name:   "default rate limit authenticated",
			check:  func(c *Config) bool { return c.RateLimitAuthenticated == 20 },
			expect: "20",
		},
		{
			name:   "default image retention days",
			check:  func(c *Config) bool { return c.ImageRetentionDays == 90 },
			expect: "90",
		},
		{
			name:   "content moderation enabled by default",
			check:  func(c *Config) bool { return c.EnableContentModeration },
			expect: "true",
		},
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(cfg) {
				t.Errorf("expected %s", tt.expect)
			}
		})
	}
}
