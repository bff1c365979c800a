package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v2"
)

// Panel families. Auto means the family is resolved from the hello
// response at session start.
const (
	PanelTypeAuto = "auto"
	PanelTypeX500 = "x500"
	PanelTypeX700 = "x700"
)

type Config struct {
	Aritech       AritechConfig       `yaml:"aritech"`
	MQTT          MQTTConfig          `yaml:"mqtt"`
	HomeAssistant HomeAssistantConfig `yaml:"homeassistant"`
	Zones         []ZoneConfig        `yaml:"zones"`
	Doors         []DoorConfig        `yaml:"doors"`
	Log           string              `yaml:"log" env:"LOG"`
	Cache         bool                `yaml:"cache" env:"CACHE"`
	CachePath     string              `yaml:"cache_path" env:"CACHE_PATH"`
	MetricsListen string              `yaml:"metrics_listen" env:"METRICS_LISTEN"`
}

type AritechConfig struct {
	Host           string        `yaml:"host" env:"HOST"`
	Port           int           `yaml:"port" env:"PORT"`
	EncryptionKey  string        `yaml:"encryption_key" env:"ENCRYPTION_KEY"`
	PanelType      string        `yaml:"panel_type" env:"PANEL_TYPE"`
	Pin            string        `yaml:"pin" env:"PIN"`
	Username       string        `yaml:"username" env:"USERNAME"`
	Password       string        `yaml:"password" env:"PASSWORD"`
	PollInterval   time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`
	CommandTimeout time.Duration `yaml:"command_timeout" env:"COMMAND_TIMEOUT"`
	ForceArm       bool          `yaml:"force_arm" env:"FORCE_ARM"`
}

type MQTTConfig struct {
	ClientID  string `yaml:"client_id" env:"MQTT_CLIENT_ID"`
	Host      string `yaml:"host" env:"MQTT_HOST"`
	Port      int    `yaml:"port" env:"MQTT_PORT"`
	Username  string `yaml:"username" env:"MQTT_USERNAME"`
	Password  string `yaml:"password" env:"MQTT_PASSWORD"`
	QOS       int    `yaml:"qos" env:"MQTT_QOS"`
	Retain    bool   `yaml:"retain" env:"MQTT_RETAIN"`
	Prefix    string `yaml:"prefix" env:"MQTT_PREFIX"`
	Clean     bool   `yaml:"clean" env:"MQTT_CLEAN"`
	Keepalive int    `yaml:"keepalive" env:"MQTT_KEEPALIVE"`
}

type HomeAssistantConfig struct {
	Discovery bool   `yaml:"discovery" env:"HA_DISCOVERY"`
	Prefix    string `yaml:"prefix" env:"HA_PREFIX"`
}

// ZoneConfig overrides the panel-reported name or the guessed device class
// for a single zone.
type ZoneConfig struct {
	Number      int    `yaml:"number"`
	Name        string `yaml:"name"`
	DeviceClass string `yaml:"device_class"`
}

type DoorConfig struct {
	Number         int           `yaml:"number"`
	Name           string        `yaml:"name"`
	UnlockDuration time.Duration `yaml:"unlock_duration"`
}

func LoadConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// Environment overrides, mostly for containerized deployments.
	if err := env.ParseWithOptions(&config, env.Options{Prefix: "ARITECH2MQTT_"}); err != nil {
		return nil, fmt.Errorf("error parsing environment: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Aritech.Port == 0 {
		c.Aritech.Port = 32000
	}
	if c.Aritech.PanelType == "" {
		c.Aritech.PanelType = PanelTypeAuto
	}
	if c.Aritech.PollInterval == 0 {
		c.Aritech.PollInterval = 30 * time.Second
	}
	if c.Aritech.CommandTimeout == 0 {
		c.Aritech.CommandTimeout = 5 * time.Second
	}
	if c.MQTT.Host == "" {
		c.MQTT.Host = "localhost"
	}
	if c.MQTT.Port == 0 {
		c.MQTT.Port = 1883
	}
	if c.MQTT.Keepalive == 0 {
		c.MQTT.Keepalive = 60
	}
	if c.MQTT.Prefix == "" {
		c.MQTT.Prefix = "aritech2mqtt"
	}
	if c.HomeAssistant.Prefix == "" {
		c.HomeAssistant.Prefix = "homeassistant"
	}
	if c.Log == "" {
		c.Log = "info"
	}
	if c.CachePath == "" {
		c.CachePath = "aritech2mqtt.db"
	}
}

// Validate checks the fields the panel session cannot recover from at
// runtime: endpoint, key format and the auth material for the panel family.
func (c *Config) Validate() error {
	if c.Aritech.Host == "" {
		return fmt.Errorf("aritech.host is required")
	}
	if err := ValidateEncryptionKey(c.Aritech.EncryptionKey); err != nil {
		return err
	}
	switch c.Aritech.PanelType {
	case PanelTypeAuto:
		if c.Aritech.Pin == "" && (c.Aritech.Username == "" || c.Aritech.Password == "") {
			return fmt.Errorf("aritech: either pin or username/password must be set")
		}
	case PanelTypeX500:
		if c.Aritech.Pin == "" {
			return fmt.Errorf("aritech: pin is required for x500 panels")
		}
	case PanelTypeX700:
		if c.Aritech.Username == "" || c.Aritech.Password == "" {
			return fmt.Errorf("aritech: username and password are required for x700 panels")
		}
	default:
		return fmt.Errorf("aritech: unknown panel_type %q", c.Aritech.PanelType)
	}
	return nil
}

// ValidateEncryptionKey checks the 24-digit panel key format.
func ValidateEncryptionKey(key string) error {
	if len(key) != 24 {
		return fmt.Errorf("aritech: encryption_key must be exactly 24 digits, got %d characters", len(key))
	}
	for _, r := range key {
		if r < '0' || r > '9' {
			return fmt.Errorf("aritech: encryption_key must contain only digits")
		}
	}
	return nil
}

// ZoneOverride returns the override for a zone number, if configured.
func (c *Config) ZoneOverride(number int) (ZoneConfig, bool) {
	for _, z := range c.Zones {
		if z.Number == number {
			return z, true
		}
	}
	return ZoneConfig{}, false
}

// DoorOverride returns the override for a door number, if configured.
func (c *Config) DoorOverride(number int) (DoorConfig, bool) {
	for _, d := range c.Doors {
		if d.Number == number {
			return d, true
		}
	}
	return DoorConfig{}, false
}
