// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads imulink settings from a YAML file, the environment and
// command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/imulink/imulink/pkg/device"
	"github.com/imulink/imulink/pkg/imuwire"
	"github.com/imulink/imulink/pkg/record"
)

const DefaultAppName = "imulink"
const DefaultConfigName = "config"
const DefaultEnvPrefix = "IMULINK"
const DefaultBaudRate = 115200
const DefaultRate = 60

var userHomeDir, _ = os.UserHomeDir()
var DefaultConfig = filepath.Join(userHomeDir, ".config", DefaultAppName, DefaultConfigName+".yaml")
var DefaultConfigSearchPath0 = filepath.Join(userHomeDir, ".config", DefaultAppName)

const DefaultConfigSearchPath1 = "/etc/" + DefaultAppName
const DefaultConfigSearchPath2 = "./"

// ErrConfigExists is returned by Dump when the target exists and overwrite
// was not requested.
var ErrConfigExists = errors.New("configuration already exists")

type BLEOpt struct {
	Address     string        `yaml:"address" mapstructure:"address"`
	ScanTimeout time.Duration `yaml:"scanTimeout" mapstructure:"scanTimeout"`
}

type SerialOpt struct {
	Port string `yaml:"port" mapstructure:"port"`
	Baud int    `yaml:"baud" mapstructure:"baud"`
}

type WebSocketOpt struct {
	URL         string `yaml:"url" mapstructure:"url"`
	Username    string `yaml:"username" mapstructure:"username"`
	NoSSLVerify bool   `yaml:"noSSLVerify" mapstructure:"noSSLVerify"`
}

type LinkOpt struct {
	BLE            BLEOpt        `yaml:"ble" mapstructure:"ble"`
	Serial         SerialOpt     `yaml:"serial" mapstructure:"serial"`
	WebSocket      WebSocketOpt  `yaml:"websocket" mapstructure:"websocket"`
	RequestTimeout time.Duration `yaml:"requestTimeout" mapstructure:"requestTimeout"`
}

// Link kinds
const (
	LinkBLE       = "ble"
	LinkSerial    = "serial"
	LinkWebSocket = "websocket"
)

// Kind picks the link: a WebSocket URL wins over a serial port, and BLE is
// used when neither is set.
func (o LinkOpt) Kind() string {
	switch {
	case o.WebSocket.URL != "":
		return LinkWebSocket
	case o.Serial.Port != "":
		return LinkSerial
	}
	return LinkBLE
}

type ReconnectOpt struct {
	InitialDelay   time.Duration `yaml:"initialDelay" mapstructure:"initialDelay"`
	MaxDelay       time.Duration `yaml:"maxDelay" mapstructure:"maxDelay"`
	MaxAttempts    int           `yaml:"maxAttempts" mapstructure:"maxAttempts"`
	AttemptTimeout time.Duration `yaml:"attemptTimeout" mapstructure:"attemptTimeout"`
}

type TransferOpt struct {
	StatusTimeout time.Duration `yaml:"statusTimeout" mapstructure:"statusTimeout"`
}

// SensorOpt is the sensor configuration applied when streaming starts.
type SensorOpt struct {
	Enabled []string `yaml:"enabled" mapstructure:"enabled"`
	Rate    uint16   `yaml:"rate" mapstructure:"rate"`
}

// Requested resolves the enabled sensor names.
func (o SensorOpt) Requested() (map[imuwire.SensorType]bool, error) {
	requested := make(map[imuwire.SensorType]bool, len(o.Enabled))
	for _, name := range o.Enabled {
		t, err := imuwire.ParseSensorType(name)
		if err != nil {
			return nil, err
		}
		requested[t] = true
	}
	return requested, nil
}

type InfluxOpt struct {
	Enabled        bool `yaml:"enabled" mapstructure:"enabled"`
	record.InfluxOptions `yaml:",inline" mapstructure:",squash"`
}

type ImulinkOpt struct {
	Link      LinkOpt      `yaml:"link" mapstructure:"link"`
	Reconnect ReconnectOpt `yaml:"reconnect" mapstructure:"reconnect"`
	Transfer  TransferOpt  `yaml:"transfer" mapstructure:"transfer"`
	Sensors   SensorOpt    `yaml:"sensors" mapstructure:"sensors"`
	Influx    InfluxOpt    `yaml:"influx" mapstructure:"influx"`
	Debug     bool         `yaml:"debug" mapstructure:"debug"`
}

// DeviceOptions converts the reconnect and transfer settings.
func (o ImulinkOpt) DeviceOptions() device.Options {
	return device.Options{
		Reconnect: device.ReconnectPolicy{
			InitialDelay:   o.Reconnect.InitialDelay,
			MaxDelay:       o.Reconnect.MaxDelay,
			MaxAttempts:    o.Reconnect.MaxAttempts,
			AttemptTimeout: o.Reconnect.AttemptTimeout,
		},
		StatusTimeout: o.Transfer.StatusTimeout,
	}
}

type ImulinkDesc struct {
	Opt   ImulinkOpt
	Viper *viper.Viper
}

func NewImulinkDesc() ImulinkDesc {
	return ImulinkDesc{
		Opt:   NewImulinkOpt(),
		Viper: nil,
	}
}

func NewImulinkOpt() ImulinkOpt {
	policy := device.DefaultReconnectPolicy()
	return ImulinkOpt{
		Link: LinkOpt{
			BLE:            BLEOpt{ScanTimeout: 10 * time.Second},
			Serial:         SerialOpt{Baud: DefaultBaudRate},
			RequestTimeout: 5 * time.Second,
		},
		Reconnect: ReconnectOpt{
			InitialDelay:   policy.InitialDelay,
			MaxDelay:       policy.MaxDelay,
			MaxAttempts:    policy.MaxAttempts,
			AttemptTimeout: policy.AttemptTimeout,
		},
		Transfer: TransferOpt{StatusTimeout: device.DefaultStatusTimeout},
		Sensors: SensorOpt{
			Enabled: []string{imuwire.Acceleration.String(), imuwire.Quaternion.String()},
			Rate:    DefaultRate,
		},
		Influx: InfluxOpt{
			InfluxOptions: record.InfluxOptions{
				URL:           "http://localhost:8086",
				Bucket:        DefaultAppName,
				BatchSize:     100,
				FlushInterval: time.Second,
			},
		},
		Debug: false,
	}
}

// setDefaults registers every key so that environment variables can
// override keys absent from the file.
func setDefaults(v *viper.Viper, opt ImulinkOpt) {
	v.SetDefault("link.ble.address", opt.Link.BLE.Address)
	v.SetDefault("link.ble.scanTimeout", opt.Link.BLE.ScanTimeout)
	v.SetDefault("link.serial.port", opt.Link.Serial.Port)
	v.SetDefault("link.serial.baud", opt.Link.Serial.Baud)
	v.SetDefault("link.websocket.url", opt.Link.WebSocket.URL)
	v.SetDefault("link.websocket.username", opt.Link.WebSocket.Username)
	v.SetDefault("link.websocket.noSSLVerify", opt.Link.WebSocket.NoSSLVerify)
	v.SetDefault("link.requestTimeout", opt.Link.RequestTimeout)
	v.SetDefault("reconnect.initialDelay", opt.Reconnect.InitialDelay)
	v.SetDefault("reconnect.maxDelay", opt.Reconnect.MaxDelay)
	v.SetDefault("reconnect.maxAttempts", opt.Reconnect.MaxAttempts)
	v.SetDefault("reconnect.attemptTimeout", opt.Reconnect.AttemptTimeout)
	v.SetDefault("transfer.statusTimeout", opt.Transfer.StatusTimeout)
	v.SetDefault("sensors.enabled", opt.Sensors.Enabled)
	v.SetDefault("sensors.rate", opt.Sensors.Rate)
	v.SetDefault("influx.enabled", opt.Influx.Enabled)
	v.SetDefault("influx.url", opt.Influx.URL)
	v.SetDefault("influx.token", opt.Influx.Token)
	v.SetDefault("influx.org", opt.Influx.Org)
	v.SetDefault("influx.bucket", opt.Influx.Bucket)
	v.SetDefault("influx.device", opt.Influx.Device)
	v.SetDefault("influx.batchSize", opt.Influx.BatchSize)
	v.SetDefault("influx.flushInterval", opt.Influx.FlushInterval)
	v.SetDefault("debug", opt.Debug)
}

// flagKeys maps persistent flag names to configuration keys.
var flagKeys = map[string]string{
	"ble":           "link.ble.address",
	"port":          "link.serial.port",
	"baud":          "link.serial.baud",
	"url":           "link.websocket.url",
	"username":      "link.websocket.username",
	"no-ssl-verify": "link.websocket.noSSLVerify",
	"debug":         "debug",
}

// Parse loads the configuration. The file is taken from the --config flag,
// then $IMULINK_CONFIG, then the default search paths; a missing file is not
// an error unless it was named explicitly.
func (o *ImulinkDesc) Parse(cmd *cobra.Command) error {
	vipCfg := viper.New()
	setDefaults(vipCfg, NewImulinkOpt())

	explicit := false
	if configFileCmd, err := cmd.Flags().GetString("config"); err == nil && configFileCmd != "" {
		vipCfg.SetConfigFile(configFileCmd)
		explicit = true
	} else if configFileEnv := os.Getenv(DefaultEnvPrefix + "_CONFIG"); configFileEnv != "" {
		vipCfg.SetConfigFile(configFileEnv)
		explicit = true
	} else {
		vipCfg.SetConfigName(DefaultConfigName)
		vipCfg.SetConfigType("yaml")
		vipCfg.AddConfigPath(DefaultConfigSearchPath0)
		vipCfg.AddConfigPath(DefaultConfigSearchPath1)
		vipCfg.AddConfigPath(DefaultConfigSearchPath2)
	}

	vipCfg.SetEnvPrefix(DefaultEnvPrefix)
	vipCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vipCfg.AutomaticEnv()

	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			_ = vipCfg.BindPFlag(key, f)
		}
	}

	if err := vipCfg.ReadInConfig(); err == nil {
		log.Debugln("using config file:", vipCfg.ConfigFileUsed())
	} else {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
		log.Debugln("no config file found, using defaults")
	}

	if err := vipCfg.Unmarshal(&o.Opt); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}

	o.Viper = vipCfg
	return nil
}

// PostParse applies process-wide settings.
func (o *ImulinkDesc) PostParse() {
	if o.Opt.Debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

// Dump writes opt as YAML to outputPath, creating the parent directory.
func Dump(opt ImulinkOpt, outputPath string, overwrite bool) error {
	buffer, err := yaml.Marshal(opt)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0700); err != nil {
		return fmt.Errorf("cannot create directory: %w", err)
	}

	if !overwrite {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("%s: %w", outputPath, ErrConfigExists)
		}
	}

	log.Infoln("writing configuration to", outputPath)
	return os.WriteFile(outputPath, buffer, 0600)
}
