package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Link         LinkConfig         `yaml:"link"`
	TelemetryUDP TelemetryUDPConfig `yaml:"telemetry_udp"`
	Matrix       MatrixConfig       `yaml:"matrix"`
	Sensor       SensorConfig       `yaml:"sensor"`
	Loop         LoopConfig         `yaml:"loop"`
	Web          WebConfig          `yaml:"web"`
}

type LinkConfig struct {
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
}

type TelemetryUDPConfig struct {
	Enable bool   `yaml:"enable"`
	Dest   string `yaml:"dest"`
}

type MatrixConfig struct {
	// Backend selects the physical driver: "gpio" or "off".
	Backend  string `yaml:"backend"`
	DataPin  int    `yaml:"data_pin"`
	ClockPin int    `yaml:"clock_pin"`
	LatchPin int    `yaml:"latch_pin"`
}

type SensorConfig struct {
	I2CBus       int           `yaml:"i2c_bus"`
	Addr         uint16        `yaml:"addr"`
	ReadyBackoff time.Duration `yaml:"ready_backoff"`
}

type LoopConfig struct {
	Tick time.Duration `yaml:"tick"`
}

type WebConfig struct {
	Enable bool   `yaml:"enable"`
	Listen string `yaml:"listen"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	if cfg.Link.Device == "" {
		return Config{}, fmt.Errorf("link.device is required")
	}
	if cfg.Link.Baud <= 0 {
		cfg.Link.Baud = 115200
	}

	if cfg.TelemetryUDP.Enable && cfg.TelemetryUDP.Dest == "" {
		return Config{}, fmt.Errorf("telemetry_udp.dest is required when telemetry_udp.enable is true")
	}

	switch cfg.Matrix.Backend {
	case "":
		cfg.Matrix.Backend = "off"
	case "off":
	case "gpio":
		if cfg.Matrix.DataPin <= 0 || cfg.Matrix.ClockPin <= 0 || cfg.Matrix.LatchPin <= 0 {
			return Config{}, fmt.Errorf("matrix.data_pin, matrix.clock_pin and matrix.latch_pin are required for backend=gpio")
		}
	default:
		return Config{}, fmt.Errorf("matrix.backend must be \"gpio\" or \"off\", got %q", cfg.Matrix.Backend)
	}

	if cfg.Sensor.I2CBus == 0 {
		cfg.Sensor.I2CBus = 1
	}
	if cfg.Sensor.ReadyBackoff <= 0 {
		cfg.Sensor.ReadyBackoff = 1 * time.Second
	}

	if cfg.Loop.Tick <= 0 {
		cfg.Loop.Tick = 50 * time.Millisecond
	}

	if cfg.Web.Enable && cfg.Web.Listen == "" {
		return Config{}, fmt.Errorf("web.listen is required when web.enable is true")
	}

	return cfg, nil
}
