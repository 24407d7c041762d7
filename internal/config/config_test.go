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
			name:   "default mode is api",
			check:  func(c *Config) bool { return c.Mode == "api" },
			expect: "api",
		},
		{
			name:   "default host is 0.0.0.0",
			check:  func(c *Config) bool { return c.Host == "0.0.0.0" },
			expect: "0.0.0.0",
		},
		{
			name:   "default port is 2542",
			check:  func(c *Config) bool { return c.Port == 2542 },
			expect: "2542",
		},
		{
			name:   "default timezone is Asia/Seoul",
			check:  func(c *Config) bool { return c.Timezone == "Asia/Seoul" },
			expect: "Asia/Seoul",
		},
		{
			name:   "default retention is 90 days",
			check:  func(c *Config) bool { return c.RetentionDays == 90 },
			expect: "90",
		},
		{
			name:   "collection enabled by default",
			check:  func(c *Config) bool { return c.CollectionEnabled },
			expect: "true",
		},
		{
			name:   "force disable collection is off by default",
			check:  func(c *Config) bool { return !c.ForceDisableCollection },
			expect: "false",
		},
		{
			name:   "secudium disabled by default",
			check:  func(c *Config) bool { return !c.SecudiumEnabled },
			expect: "false",
		},
		{
			name:   "default max auth attempts is 5",
			check:  func(c *Config) bool { return c.MaxAuthAttempts == 5 },
			expect: "5",
		},
		{
			name:   "default block duration is 1 hour",
			check:  func(c *Config) bool { return c.BlockDurationHours == 1 },
			expect: "1",
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
			name:   "default max concurrent collections is 2",
			check:  func(c *Config) bool { return c.MaxConcurrentCollections == 2 },
			expect: "2",
		},
		{
			name:   "default collector worker pool size is 4",
			check:  func(c *Config) bool { return c.CollectorWorkerPoolSize == 4 },
			expect: "4",
		},
		{
			name:   "listen addr format",
			check:  func(c *Config) bool { return c.ListenAddr() == "0.0.0.0:2542" },
			expect: "0.0.0.0:2542",
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

func TestCollectionAllowed(t *testing.T) {
	tests := []struct {
		name     string
		enabled  bool
		forceOff bool
		want     bool
	}{
		{"enabled, no override", true, false, true},
		{"disabled, no override", false, false, false},
		{"enabled, forced off", true, true, false},
		{"disabled, forced off", false, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{CollectionEnabled: tt.enabled, ForceDisableCollection: tt.forceOff}
			if got := c.CollectionAllowed(); got != tt.want {
				t.Errorf("CollectionAllowed() = %v, want %v", got, tt.want)
			}
		})
	}
}
