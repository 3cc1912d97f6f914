//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package config provides configuration management for the tag enricher
// using [Viper] for flexible configuration sources.
//
// Configuration can be provided via:
//   - YAML configuration files
//   - Environment variables with the MTE_ prefix
//   - Programmatic defaults
//
// # Configuration File
//
// By default, the enricher looks for mte-config.yaml in the current
// directory. Override the location using environment variables:
//
//	MTE_CONFIG_PATH=/etc/tagenricher
//	MTE_CONFIG_FILENAME=production-config
//
// Example configuration file:
//
//	log:
//	  level: ".:info"
//	dedup:
//	  strings: true
//	policy:
//	  cache:
//	    dir: /var/cache/tagenricher
//	tag:
//	  delta:
//	    enabled: true
//
// # Environment Variables
//
// All configuration keys can be set via environment variables with the MTE_
// prefix. Dots in key names become underscores:
//
//	MTE_LOG_LEVEL=.:debug
//	MTE_POLICY_CACHE_DIR=/var/cache/tagenricher
//	MTE_TAG_DELTA_ENABLED=false
//
// # Configuration Keys
//
// Available configuration options:
//   - log.level: Log level configuration (default: ".:info")
//   - dedup.strings: Intern duplicate strings in received snapshots (default: true)
//   - disable.cache.if.servicenotfound: Invalidate the local cache file when
//     the service has been deleted upstream (default: true)
//   - policy.cache.dir: Directory holding the tags cache file (default: none)
//   - tag.delta.enabled: Accept incremental tag deltas (default: true)
//   - in.place.tag.update.enabled: Mutate resource tries in place under the
//     write lock when applying deltas (default: true)
//
// [Viper]: https://github.com/spf13/viper
package config

import (
	"errors"
	"os"
	"strings"
	"sync"

	"github.com/manetu/tagenricher/internal/logging"
	"github.com/spf13/viper"
)

// Environment variable and default path constants for configuration loading.
const (
	// EnvVarPrefix is the prefix for all tag enricher environment variables.
	// For example, the key "log.level" becomes MTE_LOG_LEVEL.
	EnvVarPrefix string = "MTE"

	// ConfigPathEnv is the environment variable that specifies the directory
	// containing the configuration file.
	ConfigPathEnv string = "MTE_CONFIG_PATH"

	// ConfigFileNameEnv is the environment variable that specifies the
	// configuration file name (without extension).
	ConfigFileNameEnv string = "MTE_CONFIG_FILENAME"

	// ConfigDefaultPath is the default directory to search for config files.
	ConfigDefaultPath string = "."

	// ConfigDefaultFilename is the default configuration file name (without extension).
	ConfigDefaultFilename string = "mte-config"
)

// Configuration key constants for use with [VConfig].
const (
	logLevel string = "log.level"

	// DedupStrings controls whether duplicate strings in a received
	// service-tags snapshot are interned before indexing. Large snapshots
	// repeat dimension names and attribute keys heavily.
	//
	// Default: true
	// Set via environment: MTE_DEDUP_STRINGS=false
	DedupStrings string = "dedup.strings"

	// DisableCacheIfServiceNotFound controls whether the local tags cache
	// file is renamed out of the way when the retriever reports that the
	// service has been deleted upstream.
	//
	// Default: true
	// Set via environment: MTE_DISABLE_CACHE_IF_SERVICENOTFOUND=false
	DisableCacheIfServiceNotFound string = "disable.cache.if.servicenotfound"

	// PolicyCacheDir is the directory holding the tags cache file. When
	// empty, snapshots are not persisted locally.
	//
	// Set via environment: MTE_POLICY_CACHE_DIR=/var/cache/tagenricher
	PolicyCacheDir string = "policy.cache.dir"

	// TagDeltaEnabled controls whether incremental tag deltas are accepted
	// from the retriever.
	//
	// Default: true
	// Set via environment: MTE_TAG_DELTA_ENABLED=false
	TagDeltaEnabled string = "tag.delta.enabled"

	// InPlaceTagUpdateEnabled controls whether deltas mutate the resource
	// tries in place under the write lock. Read-write locking is engaged
	// only when both this and [TagDeltaEnabled] are true.
	//
	// Default: true
	// Set via environment: MTE_IN_PLACE_TAG_UPDATE_ENABLED=false
	InPlaceTagUpdateEnabled string = "in.place.tag.update.enabled"
)

var (
	once     sync.Once
	loadOnce sync.Once
	loadErr  error

	// VConfig is the global Viper configuration instance for the tag enricher.
	//
	// VConfig provides access to all configuration values. Use the
	// configuration key constants ([DedupStrings], [PolicyCacheDir], etc.)
	// to access specific settings:
	//
	//	if config.VConfig.GetBool(config.DedupStrings) {
	//	    // interning enabled
	//	}
	//
	// VConfig is initialized automatically when [Load] or [Init] is called.
	VConfig *viper.Viper
	logger  = logging.GetLogger("tagenricher.config")
)

// Init initializes the configuration system without loading config files.
//
// Init sets up Viper with configuration file paths, environment variable
// handling (MTE_ prefix), and default values for all configuration keys.
//
// This function is safe to call multiple times; subsequent calls are no-ops.
// Most applications don't need to call Init directly; it's called
// automatically by [Load].
func Init() {
	once.Do(doInitialize)
}

func getConfigPath() string {
	if configPath, ok := os.LookupEnv(ConfigPathEnv); ok {
		return configPath
	}

	return ConfigDefaultPath
}

func getConfigFileName() string {
	if configName, ok := os.LookupEnv(ConfigFileNameEnv); ok {
		return configName
	}

	return ConfigDefaultFilename
}

func doInitialize() {
	VConfig = viper.New()

	// set up config-file loading:  default is './mte-config.yaml' but can be overridden with $(MTE_CONFIG_PATH)/$(MTE_CONFIG_FILENAME).yaml
	VConfig.AddConfigPath(getConfigPath())
	VConfig.SetConfigName(getConfigFileName())
	VConfig.SetConfigType("yaml")

	// set up envvar handling:  keys such as 'log.level' become 'MTE_LOG_LEVEL'
	VConfig.SetEnvPrefix(EnvVarPrefix)
	VConfig.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	VConfig.AutomaticEnv()

	// set up VConfig defaults
	VConfig.SetDefault(logLevel, ".:info")
	VConfig.SetDefault(DedupStrings, true)
	VConfig.SetDefault(DisableCacheIfServiceNotFound, true)
	VConfig.SetDefault(PolicyCacheDir, "")
	VConfig.SetDefault(TagDeltaEnabled, true)
	VConfig.SetDefault(InPlaceTagUpdateEnabled, true)
}

// Load initializes configuration and loads settings from files and environment.
//
// Load performs the following steps:
//  1. Calls [Init] if not already called
//  2. Reads the configuration file (if present; missing files are not an error)
//  3. Applies environment variable overrides
//  4. Updates log levels based on configuration
//
// This function is safe to call concurrently from multiple goroutines.
// Subsequent calls after the first successful load are no-ops that return nil.
//
// Returns the error, if any, reported while applying the log levels.
// Unrecognized level names fall back to info and are not reported.
func Load() error {
	loadOnce.Do(func() {
		Init()

		// Early log level update from environment variable allows us to debug the config loading.
		earlyLoglevel := os.Getenv("MTE_LOG_LEVEL")
		if earlyLoglevel != "" {
			if err := logging.UpdateLogLevels(earlyLoglevel); err != nil {
				logger.SysErrorf("Failed updating early log level %s: %+v", earlyLoglevel, err)
				loadErr = err
				return
			}
		}

		logger.SysDebugf("Loading configuration from %s/%s.yaml", getConfigPath(), getConfigFileName())
		err := VConfig.ReadInConfig()
		if err != nil {
			// Only log if it's an actual error, not just a missing config file
			var configNotFound viper.ConfigFileNotFoundError
			if !errors.As(err, &configNotFound) {
				logger.SysWarnf("error reading config; using defaults: %+v", err)
			}
			logger.SysDebugf("No config file found at %s/%s.yaml", getConfigPath(), getConfigFileName())
		}

		// Update log levels based on final configuration
		loglevel := VConfig.GetString(logLevel)
		if err := logging.UpdateLogLevels(loglevel); err != nil {
			logger.SysErrorf("Failed updating log level %s: %+v", loglevel, err)
			loadErr = err
			return
		}

		if logger.IsDebugEnabled() {
			VConfig.DebugTo(logger.Out())
		}
	})

	return loadErr
}

// ResetConfig clears all configuration and reinitializes with defaults.
//
// WARNING: This function is intended for testing only. It resets the global
// configuration state, which can cause race conditions in concurrent code.
func ResetConfig() {
	VConfig = nil
	once = sync.Once{}
	loadOnce = sync.Once{}
	loadErr = nil
	Init()
	_ = Load()
}
