package config

import (
	"os"
	"path/filepath"
	"reflect"
	"runtime"

	"github.com/spf13/viper"
)

// Config holds the host agent configuration.
type Config struct {
	// Network
	ListenPort int `mapstructure:"listen_port"`

	// Logging
	LogLevel      string `mapstructure:"log_level"`
	LogFormat     string `mapstructure:"log_format"`
	LogFile       string `mapstructure:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`

	// Screen capture
	CaptureFPS       int `mapstructure:"capture_fps"`
	KeyframeInterval int `mapstructure:"keyframe_interval"`
	VideoBitrate     int `mapstructure:"video_bitrate"`

	// OpenH264 shared library search paths. Empty means platform defaults.
	OpenH264Paths []string `mapstructure:"openh264_paths"`

	// Session handling
	ApprovalTimeoutSeconds int      `mapstructure:"approval_timeout_seconds"`
	STUNServers            []string `mapstructure:"stun_servers"`

	// Blocking-work pool for OS automation and command execution
	MaxAutomationWorkers int `mapstructure:"max_automation_workers"`
	AutomationQueueSize  int `mapstructure:"automation_queue_size"`

	// Command presets
	CommandsFile string `mapstructure:"commands_file"`
}

func Default() *Config {
	return &Config{
		ListenPort:             9876,
		LogLevel:               "info",
		LogFormat:              "text",
		LogMaxSizeMB:           20,
		LogMaxBackups:          3,
		CaptureFPS:             30,
		KeyframeInterval:       15,
		VideoBitrate:           5_000_000,
		ApprovalTimeoutSeconds: 30,
		STUNServers: []string{
			"stun:stun.l.google.com:19302",
			"stun:stun1.l.google.com:19302",
		},
		MaxAutomationWorkers: 4,
		AutomationQueueSize:  64,
		CommandsFile:         filepath.Join(DataDir(), "commands.json"),
	}
}

// Load reads the config file (if present) and applies SCREENLINK_* env
// overrides on top of the defaults. A missing config file is not an error.
func Load(cfgFile string) (*Config, error) {
	cfg := Default()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("screenlink")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(configDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("SCREENLINK")
	// Unmarshal only sees keys viper already knows; bind every config key so
	// SCREENLINK_* variables apply even when the file does not set the key.
	fields := reflect.TypeOf(*cfg)
	for i := 0; i < fields.NumField(); i++ {
		if key := fields.Field(i).Tag.Get("mapstructure"); key != "" {
			viper.BindEnv(key)
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if os.IsNotExist(err) {
				return cfg, nil
			}
			return nil, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	if cfg.ListenPort <= 0 || cfg.ListenPort > 65535 {
		cfg.ListenPort = 9876
	}
	if cfg.CaptureFPS < 1 || cfg.CaptureFPS > 60 {
		cfg.CaptureFPS = 30
	}
	if cfg.KeyframeInterval < 1 {
		cfg.KeyframeInterval = 15
	}
	if cfg.ApprovalTimeoutSeconds < 1 {
		cfg.ApprovalTimeoutSeconds = 30
	}

	return cfg, nil
}

// DataDir returns the platform-specific data directory for the host agent.
func DataDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "Screenlink")
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "Screenlink")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "screenlink")
	}
}

func configDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "Screenlink")
	case "darwin":
		return "/usr/local/etc/screenlink"
	default:
		return "/etc/screenlink"
	}
}
