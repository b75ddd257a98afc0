package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type MQTTConfig struct {
	Server   string `yaml:"server"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
}

type InfluxConfig struct {
	URL         string `yaml:"url"`
	Token       string `yaml:"token"`
	Org         string `yaml:"org"`
	Bucket      string `yaml:"bucket"`
	Measurement string `yaml:"measurement"`
}

type OutputConfig struct {
	Type   string        `yaml:"type"`
	MQTT   *MQTTConfig   `yaml:"mqtt,omitempty"`
	Influx *InfluxConfig `yaml:"influx,omitempty"`
}

type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

type RadioConfig struct {
	Type    string `yaml:"type"` // cc2500|simulation
	SPIPort string `yaml:"spi_port"`
	GDO0    string `yaml:"gdo0"`
	// SimulatedID is the transmitter id the simulated radio broadcasts as.
	SimulatedID string `yaml:"simulated_id"`
}

type BatteryConfig struct {
	Type       string `yaml:"type"` // ads1115|simulation
	I2CBus     string `yaml:"i2c_bus"`
	I2CAddress int    `yaml:"i2c_address"`
	Channel    int    `yaml:"channel"`
}

type StoreConfig struct {
	Type      string `yaml:"type"` // file|redis
	Path      string `yaml:"path"`
	RedisAddr string `yaml:"redis_addr"`
	RedisKey  string `yaml:"redis_key"`
}

type Config struct {
	Serial  SerialConfig   `yaml:"serial"`
	Console string         `yaml:"console"` // "", "stdin" or a serial device
	Radio   RadioConfig    `yaml:"radio"`
	Battery BatteryConfig  `yaml:"battery"`
	Store   StoreConfig    `yaml:"store"`
	Outputs []OutputConfig `yaml:"outputs"`
	// Protocol is the wire layout: dexbridge|xbridge2.
	Protocol string `yaml:"protocol"`
	// Promiscuous accepts every transmitter instead of pairing.
	Promiscuous bool `yaml:"promiscuous"`
	// TransmitterID seeds the filter when the store holds none, e.g. "6ABCD".
	TransmitterID string `yaml:"transmitter_id"`
	LogLevel      string `yaml:"log_level"`
}

func DefaultConfig() Config {
	return Config{
		Serial:   SerialConfig{Port: "/dev/ttyS0", Baud: 9600},
		Radio:    RadioConfig{Type: "cc2500", GDO0: "GPIO25"},
		Battery:  BatteryConfig{Type: "ads1115", I2CBus: "1", I2CAddress: 0x48},
		Store:    StoreConfig{Type: "file", Path: "xbridge-settings.yaml", RedisKey: "xbridge:settings"},
		Outputs:  []OutputConfig{{Type: "console"}},
		Protocol: "dexbridge",
		LogLevel: "info",
	}
}

// LoadFromFlags loads configuration from a YAML or JSON file (optional) and
// command line flags. Flags override values present in the file.
func LoadFromFlags() (Config, error) {
	return Load(flag.CommandLine, os.Args[1:])
}

// Load is LoadFromFlags on an explicit flag set.
func Load(fs *flag.FlagSet, args []string) (Config, error) {
	cfgPath := fs.String("config", "", "Path to YAML or JSON config file")
	flagSerial := fs.String("serial", "", "Serial device of the receiver link")
	flagBaud := fs.Int("baud", -1, "Serial baud rate")
	flagConsole := fs.String("console", "", "Debug console: stdin or a serial device")
	flagRadio := fs.String("radio", "", "radio type: cc2500|simulation")
	flagSPI := fs.String("spi-port", "", "SPI port of the radio")
	flagGDO0 := fs.String("gdo0", "", "GPIO of the radio packet interrupt")
	flagBattery := fs.String("battery", "", "battery monitor: ads1115|simulation|none")
	flagI2CBus := fs.String("i2c-bus", "", "I2C bus of the battery ADC")
	flagI2CAddr := fs.String("i2c-address", "", "I2C address of the battery ADC (decimal or 0x hex)")
	flagStore := fs.String("store", "", "settings store: file|redis")
	flagStorePath := fs.String("store-path", "", "settings file path")
	flagRedis := fs.String("redis-addr", "", "redis address for the settings store")
	flagOutputs := fs.String("outputs", "", "Comma-separated outputs (console,mqtt,influx)")
	flagMQTTServer := fs.String("mqtt-server", "", "MQTT server (tcp://host:port)")
	flagMQTTTopic := fs.String("mqtt-topic", "", "MQTT topic base")
	flagProtocol := fs.String("protocol", "", "wire protocol: dexbridge|xbridge2")
	flagPromiscuous := fs.Bool("promiscuous", false, "accept packets from any transmitter")
	flagTxID := fs.String("transmitter-id", "", "transmitter id, e.g. 6ABCD")
	flagLogLevel := fs.String("log-level", "", "debug|info|warn|error")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := DefaultConfig()

	if *cfgPath != "" {
		b, err := os.ReadFile(*cfgPath)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	setString(&cfg.Serial.Port, *flagSerial)
	if *flagBaud != -1 {
		cfg.Serial.Baud = *flagBaud
	}
	setString(&cfg.Console, *flagConsole)
	setString(&cfg.Radio.Type, *flagRadio)
	setString(&cfg.Radio.SPIPort, *flagSPI)
	setString(&cfg.Radio.GDO0, *flagGDO0)
	setString(&cfg.Battery.Type, *flagBattery)
	setString(&cfg.Battery.I2CBus, *flagI2CBus)
	if *flagI2CAddr != "" {
		v, err := parseIntOrHex(*flagI2CAddr)
		if err != nil {
			return cfg, fmt.Errorf("i2c-address: %w", err)
		}
		cfg.Battery.I2CAddress = v
	}
	setString(&cfg.Store.Type, *flagStore)
	setString(&cfg.Store.Path, *flagStorePath)
	setString(&cfg.Store.RedisAddr, *flagRedis)
	if *flagOutputs != "" {
		parts := parseCSV(*flagOutputs)
		outs := make([]OutputConfig, 0, len(parts))
		for _, p := range parts {
			outs = append(outs, OutputConfig{Type: p})
		}
		cfg.Outputs = outs
	}
	if *flagMQTTServer != "" || *flagMQTTTopic != "" {
		applied := false
		for i := range cfg.Outputs {
			if strings.ToLower(cfg.Outputs[i].Type) != "mqtt" {
				continue
			}
			if cfg.Outputs[i].MQTT == nil {
				cfg.Outputs[i].MQTT = &MQTTConfig{}
			}
			setString(&cfg.Outputs[i].MQTT.Server, *flagMQTTServer)
			setString(&cfg.Outputs[i].MQTT.Topic, *flagMQTTTopic)
			applied = true
		}
		if !applied {
			cfg.Outputs = append(cfg.Outputs, OutputConfig{Type: "mqtt", MQTT: &MQTTConfig{Server: *flagMQTTServer, Topic: *flagMQTTTopic}})
		}
	}
	setString(&cfg.Protocol, *flagProtocol)
	if *flagPromiscuous {
		cfg.Promiscuous = true
	}
	setString(&cfg.TransmitterID, *flagTxID)
	setString(&cfg.LogLevel, *flagLogLevel)

	if cfg.Serial.Baud <= 0 {
		return cfg, errors.New("baud must be > 0")
	}
	return cfg, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func parseIntOrHex(s string) (int, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseInt(s[2:], 16, 0)
		return int(v), err
	}
	v, err := strconv.Atoi(s)
	return v, err
}

func parseCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
