package config

import (
	"errors"

	"github.com/spf13/viper"
)

/**
 * Server configuration parameters
 * @property {string} address - Server listening address (e.g. ":8770")
 * @property {string} mode - Application mode (debug/release/test)
 */
type ServerConfig struct {
	Address string `mapstructure:"address"`
	Mode    string `mapstructure:"mode"`
}

/**
 * Logging configuration
 * @property {string} level - Log level (debug/info/warn/error)
 * @property {string} path - Log file path
 */
type LogConfig struct {
	Level string `mapstructure:"level"`
	Path  string `mapstructure:"path"`
}

/**
 * Update configuration
 * @property {string} service_name - Name the service is registered under in the init system
 * @property {string} branch - Preferred remote branch, tried before the fallback
 * @property {string} fallback_branch - Branch used when the preferred one doesn't exist
 * @property {string} dependency_manifest - Manifest file whose change forces a dependency reinstall
 * @property {string} dependency_dir - Directory holding installed dependencies
 * @property {[]string} install_command - Command used to reinstall dependencies
 * @property {[]string} test_command - Command used to spawn the throwaway test instance
 * @property {[]string} service_command - Command the init system runs to start the service
 */
type UpdateConfig struct {
	ServiceName        string   `mapstructure:"service_name"`
	Branch             string   `mapstructure:"branch"`
	FallbackBranch     string   `mapstructure:"fallback_branch"`
	DependencyManifest string   `mapstructure:"dependency_manifest"`
	DependencyDir      string   `mapstructure:"dependency_dir"`
	InstallCommand     []string `mapstructure:"install_command"`
	TestCommand        []string `mapstructure:"test_command"`
	ServiceCommand     []string `mapstructure:"service_command"`
}

/**
 * Monitor configuration
 * @property {int} interval - Health check interval in seconds
 * @property {int} max_failures - Consecutive failures before a restart is issued
 * @property {int} check_interval - Background update check interval in seconds
 */
type MonitorConfig struct {
	Interval      int `mapstructure:"interval"`
	MaxFailures   int `mapstructure:"max_failures"`
	CheckInterval int `mapstructure:"check_interval"`
}

var ErrUpdateInProgress = errors.New("update already in progress")

type AppConfig struct {
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	Update  UpdateConfig  `mapstructure:"update"`
	Monitor MonitorConfig `mapstructure:"monitor"`
}

/**
 * Load application configuration from YAML file
 */
func LoadConfig() (*AppConfig, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg AppConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

var Config AppConfig

func collectConfig(cfg *AppConfig) *AppConfig {
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8770"
	}
	if cfg.Update.ServiceName == "" {
		cfg.Update.ServiceName = "termhost"
	}
	if cfg.Update.Branch == "" {
		cfg.Update.Branch = "main"
	}
	if cfg.Update.FallbackBranch == "" {
		cfg.Update.FallbackBranch = "master"
	}
	if cfg.Update.DependencyManifest == "" {
		cfg.Update.DependencyManifest = "package.json"
	}
	if cfg.Update.DependencyDir == "" {
		cfg.Update.DependencyDir = "node_modules"
	}
	if len(cfg.Update.InstallCommand) == 0 {
		cfg.Update.InstallCommand = []string{"npm", "install", "--omit=dev"}
	}
	if len(cfg.Update.ServiceCommand) == 0 {
		cfg.Update.ServiceCommand = []string{"npm", "start"}
	}
	if cfg.Monitor.Interval <= 0 {
		cfg.Monitor.Interval = 60
	}
	if cfg.Monitor.MaxFailures <= 0 {
		cfg.Monitor.MaxFailures = 3
	}
	if cfg.Monitor.CheckInterval <= 0 {
		cfg.Monitor.CheckInterval = 3600
	}
	return cfg
}

/**
 * Reload configuration from disk
 * @returns {error} Returns error if reload fails, nil on success
 */
func ReloadConfig() error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	Config = *cfg
	collectConfig(&Config)
	return nil
}

func init() {
	cfg, err := LoadConfig()
	if err == nil {
		Config = *cfg
	}
	collectConfig(&Config)
}
