// internal/config/config.go
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Host               string  `yaml:"host"`
	Port               int     `yaml:"port"`
	User               string  `yaml:"user"`
	Pass               string  `yaml:"pass"`
	IntervalMS         int     `yaml:"interval_ms"`   // poll period
	MaxDownKBpS        float64 `yaml:"max_down_kbps"` // graph ceiling, download
	MaxUpKBpS          float64 `yaml:"max_up_kbps"`   // graph ceiling, upload
	InsecureSkipVerify bool    `yaml:"insecure_skip_verify"`
	CAFile             string  `yaml:"ca_file,omitempty"` // PEM bundle, only used when verifying
	TimeoutMS          int     `yaml:"timeout_ms"`        // per fetch
	StartupAttempts    int     `yaml:"startup_attempts"`
	IconWidth          int     `yaml:"icon_width"`
	IconHeight         int     `yaml:"icon_height"`
	PNGPath            string  `yaml:"png_path,omitempty"`       // rewritten every tick when set
	MetricsListen      string  `yaml:"metrics_listen,omitempty"` // e.g. "127.0.0.1:9464"
	Log                Log     `yaml:"log"`
}

type Log struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty"`
}

// Default mirrors the appliance's factory settings.
func Default() *Config {
	return &Config{
		Host:               "ipfire.home",
		Port:               444,
		User:               "admin",
		Pass:               "password",
		IntervalMS:         1000,
		MaxDownKBpS:        1600,
		MaxUpKBpS:          100,
		InsecureSkipVerify: true,
		TimeoutMS:          10000,
		StartupAttempts:    3,
		IconWidth:          16,
		IconHeight:         16,
		Log:                Log{Level: "info"},
	}
}

func (c *Config) Validate() error {
	if c.Host == "" || strings.ContainsAny(c.Host, " \t/\\?#@") {
		return fmt.Errorf("host must be a valid host name or address, got %q", c.Host)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be an integer in 1..65535, got %d", c.Port)
	}
	if c.IntervalMS < 1 {
		return fmt.Errorf("interval_ms must be > 0 (milliseconds), got %d", c.IntervalMS)
	}
	if c.MaxDownKBpS < 1 {
		return fmt.Errorf("max_down_kbps must be >= 1 (KB/s), got %v", c.MaxDownKBpS)
	}
	if c.MaxUpKBpS < 1 {
		return fmt.Errorf("max_up_kbps must be >= 1 (KB/s), got %v", c.MaxUpKBpS)
	}
	if c.TimeoutMS < 0 {
		return fmt.Errorf("timeout_ms cannot be negative")
	}
	if c.StartupAttempts < 1 {
		return fmt.Errorf("startup_attempts must be >= 1, got %d", c.StartupAttempts)
	}
	if c.IconWidth < 1 || c.IconHeight < 1 {
		return fmt.Errorf("icon size must be positive, got %dx%d", c.IconWidth, c.IconHeight)
	}
	return nil
}

func (c *Config) Interval() time.Duration {
	return time.Duration(c.IntervalMS) * time.Millisecond
}

func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// AdminURL is the appliance's web interface.
func (c *Config) AdminURL() string {
	return "https://" + net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
