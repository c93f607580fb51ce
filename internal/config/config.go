// Package config loads the application configuration from a yaml file
// and AIOT_* environment variables.
package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type Application struct {
	Debug   bool    `mapstructure:"debug"`
	Metrics Metrics `mapstructure:"metrics"`
	DB      DB      `mapstructure:"db"`
	MQTT    MQTT    `mapstructure:"mqtt"`
	Ingest  Ingest  `mapstructure:"ingest"`
	Publish Publish `mapstructure:"publish"`
	S3      *S3     `mapstructure:"s3"`
}

type Metrics struct {
	//prometheus listen address, empty disables the endpoint
	Listen string `mapstructure:"listen"`
}

type DB struct {
	Path string `mapstructure:"path"`
	//zone the ts column is written in, e.g. Asia/Seoul
	CivilZone string `mapstructure:"civil_zone"`
}

type MQTT struct {
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	ClientIDPrefix   string        `mapstructure:"client_id_prefix"`
	Username         string        `mapstructure:"username"`
	Password         string        `mapstructure:"password"`
	TLS              bool          `mapstructure:"tls"`
	TLSInsecure      bool          `mapstructure:"tls_insecure"`
	KeepAlive        time.Duration `mapstructure:"keep_alive"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
}

type Ingest struct {
	Topic           string  `mapstructure:"topic"`
	QoS             int     `mapstructure:"qos"`
	KeepRejects     bool    `mapstructure:"keep_rejects"`
	DropNegative    bool    `mapstructure:"drop_negative"`
	StrictPMAllZero bool    `mapstructure:"strict_pm_all_zero"`
	MaxPM           float64 `mapstructure:"max_pm"`
	MaxLux          float64 `mapstructure:"max_lux"`
}

type Publish struct {
	Topic        string        `mapstructure:"topic"`
	QoS          int           `mapstructure:"qos"`
	Room         string        `mapstructure:"room"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// S3 configures the published-partition listing used as the resume
// fallback; leaving the whole section out disables it.
type S3 struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
	Region string `mapstructure:"region"`
	//zone the partition key time-parts are encoded in, utc or the civil zone name
	PartitionZone string `mapstructure:"partition_zone"`
}

// Load reads <configName>.yml from dir (and ./config under it) merged
// over the defaults, then applies AIOT_* environment overrides. A
// missing config file is not an error; the defaults stand.
func Load(dir string, configName string) (*Application, error) {
	v := viper.New()
	v.SetEnvPrefix("aiot")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigType("yml")
	v.AddConfigPath(dir)
	v.AddConfigPath(dir + "/config")
	v.SetConfigName(configName)

	for key, value := range defaults() {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.WithMessage(err, "failed to read config file")
		}
	}

	application := &Application{}
	if err := v.Unmarshal(application); err != nil {
		return nil, errors.WithMessage(err, "failed to unmarshal config")
	}
	if err := application.validate(); err != nil {
		return nil, err
	}
	return application, nil
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"debug":          false,
		"metrics.listen": "",

		"db.path":       "aiot.db",
		"db.civil_zone": "Asia/Seoul",

		"mqtt.host":              "localhost",
		"mqtt.port":              1883,
		"mqtt.client_id_prefix":  "aiot-manager",
		"mqtt.keep_alive":        60 * time.Second,
		"mqtt.operation_timeout": 10 * time.Second,

		"ingest.topic":              "sensor/metrics",
		"ingest.qos":                1,
		"ingest.keep_rejects":       true,
		"ingest.drop_negative":      true,
		"ingest.strict_pm_all_zero": true,
		"ingest.max_pm":             1000.0,
		"ingest.max_lux":            65535.0,

		"publish.topic":         "iot/sensor/minute",
		"publish.qos":           1,
		"publish.room":          "room-306",
		"publish.poll_interval": 5 * time.Second,
	}
}

func (a *Application) validate() error {
	if a.DB.Path == "" {
		return errors.New("db.path can't be empty")
	}
	if a.MQTT.Host == "" {
		return errors.New("mqtt.host can't be empty")
	}
	if a.MQTT.Port <= 0 || a.MQTT.Port > 65535 {
		return errors.Errorf("illegal mqtt.port %d", a.MQTT.Port)
	}
	if a.Ingest.QoS > 1 || a.Publish.QoS > 1 {
		return errors.New("only QoS 0 and 1 are supported")
	}
	if a.Publish.PollInterval <= 0 {
		return errors.New("publish.poll_interval must be positive")
	}
	if a.S3 != nil && a.S3.Bucket == "" {
		return errors.New("s3.bucket can't be empty when the s3 section is present")
	}
	return nil
}
