package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/angas/netload-go/logging"
	"github.com/spf13/viper"
)

type AppConfigInflux struct {
	Url    string
	Token  string
	Org    string
	Bucket string
	// Number of resolution steps the query stop is widened (and the result
	// shifted back) to compensate for right-anchored window buckets, default: 2
	WindowCorrectionPeriods *int `mapstructure:"window_correction_periods"`
}

func (i AppConfigInflux) GetWindowCorrectionPeriods() int {
	if i.WindowCorrectionPeriods == nil {
		return 2
	}
	return *i.WindowCorrectionPeriods
}

type AppConfigDatabase struct {
	Path string
	// How many days computed net load rows are kept before they get purged
	DataRetentionDays *int `mapstructure:"data_retention_days"`
	// How many days daily backup files are kept before they get deleted
	BackupRetentionDays *int `mapstructure:"backup_retention_days"`
}

func (d AppConfigDatabase) GetDataRetentionDays() int {
	if d.DataRetentionDays == nil {
		return 90
	}
	return *d.DataRetentionDays
}

func (d AppConfigDatabase) GetBackupRetentionDays() int {
	if d.BackupRetentionDays == nil {
		return 90
	}
	return *d.BackupRetentionDays
}

type AppConfigMqtt struct {
	Host     string
	Port     int16
	Username string
	Password string
	// Topic the meter gateways publish readings on, default: "meters/+/power"
	Topic *string `mapstructure:"topic"`
}

func (m AppConfigMqtt) GetTopic() string {
	if m.Topic == nil {
		return "meters/+/power"
	}
	return *m.Topic
}

type AppConfigNetLoad struct {
	// Cron expression for when the net load of all active jobs is recomputed
	RunAt string `mapstructure:"run_at"`
	// How many hours back each run recomputes, default: 24
	HistoryHours *int `mapstructure:"history_hours"`
	// Bucket size for the computed curves, e.g. "15m" or "1h", default: "15m"
	Resolution *string `mapstructure:"resolution"`
}

func (n AppConfigNetLoad) GetHistoryHours() int {
	if n.HistoryHours == nil {
		return 24
	}
	return *n.HistoryHours
}

func (n AppConfigNetLoad) GetResolution() string {
	if n.Resolution == nil {
		return "15m"
	}
	return *n.Resolution
}

type AppConfigLogging struct {
	// Min log level for the database sink: "DEBUG", "INFO", "WARN", "ERROR", default: "INFO"
	DbLevel *string `mapstructure:"db_level"`
	// Maximum number of log entries kept in the database, default: 10000
	DbMaxEntries *int `mapstructure:"db_max_entries"`
	// Min log level for the console: "DEBUG", "INFO", "WARN", "ERROR", default: "INFO"
	ConsoleLevel *string `mapstructure:"console_level"`
}

func (l AppConfigLogging) GetDbLevel() slog.Level {
	return logging.LevelFromString(l.DbLevel)
}

func (l AppConfigLogging) GetDbMaxEntries() int {
	if l.DbMaxEntries == nil {
		return 10000
	}
	return *l.DbMaxEntries
}

func (l AppConfigLogging) GetConsoleLevel() slog.Level {
	return logging.LevelFromString(l.ConsoleLevel)
}

type AppConfig struct {
	Influx   AppConfigInflux
	Database AppConfigDatabase
	Mqtt     AppConfigMqtt
	NetLoad  AppConfigNetLoad `mapstructure:"net_load"`
	Logging  AppConfigLogging `mapstructure:"logging"`
}

func Load(path string) (*AppConfig, error) {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.AddConfigPath("config")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var c AppConfig

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("unable to read config file: %w", err)
	}

	if err := viper.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unable to unmarshal config file: %w", err)
	}

	return &c, nil
}
