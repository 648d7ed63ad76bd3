package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Profile holds the trading parameters. Values are loaded from a YAML file
// when one is configured, otherwise the defaults apply.
type Profile struct {
	Symbol           string        `yaml:"symbol"`
	Volume           float64       `yaml:"volume"`
	StopLossOffset   float64       `yaml:"stop_loss_offset"`
	TakeProfitOffset float64       `yaml:"take_profit_offset"`
	Comment          string        `yaml:"comment"`
	PipValue         float64       `yaml:"pip_value"`
	VolumeScale      float64       `yaml:"volume_scale"`
	FallbackPrice    float64       `yaml:"fallback_price"`
	TradeInterval    time.Duration `yaml:"trade_interval"`
	MonitorInterval  time.Duration `yaml:"monitor_interval"`
	MonitorWindow    time.Duration `yaml:"monitor_window"`
	HealthInterval   time.Duration `yaml:"health_interval"`
}

// DefaultProfile returns the built-in gold trading profile.
func DefaultProfile() Profile {
	return Profile{
		Symbol:           "XAUUSD",
		Volume:           0.50,
		StopLossOffset:   -25.0,
		TakeProfitOffset: 50.0,
		Comment:          "tradeops-auto",
		PipValue:         0.10,
		VolumeScale:      100,
		FallbackPrice:    2374.85,
		TradeInterval:    60 * time.Second,
		MonitorInterval:  10 * time.Second,
		MonitorWindow:    5 * time.Minute,
		HealthInterval:   30 * time.Second,
	}
}

// LoadProfile reads a YAML profile from path, filling unset fields from the
// defaults. An empty path returns the defaults unchanged.
func LoadProfile(path string) (Profile, error) {
	p := DefaultProfile()
	if path == "" {
		return p, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read profile: %w", err)
	}
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("parse profile: %w", err)
	}

	def := DefaultProfile()
	if p.Symbol == "" {
		p.Symbol = def.Symbol
	}
	if p.Volume <= 0 {
		p.Volume = def.Volume
	}
	if p.PipValue <= 0 {
		p.PipValue = def.PipValue
	}
	if p.VolumeScale <= 0 {
		p.VolumeScale = def.VolumeScale
	}
	if p.FallbackPrice <= 0 {
		p.FallbackPrice = def.FallbackPrice
	}
	if p.TradeInterval <= 0 {
		p.TradeInterval = def.TradeInterval
	}
	if p.MonitorInterval <= 0 {
		p.MonitorInterval = def.MonitorInterval
	}
	if p.MonitorWindow <= 0 {
		p.MonitorWindow = def.MonitorWindow
	}
	if p.HealthInterval <= 0 {
		p.HealthInterval = def.HealthInterval
	}
	return p, nil
}
