// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

var (
	ConfigurationFileDirectory string
)

func LoadConfiguration(configFileName string, required bool) bool {
	viper.SetConfigName(configFileName)
	viper.AddConfigPath(ResolvePath(ConfigurationFileDirectory))
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.zapgate")
	viper.AddConfigPath("/usr/local/etc/zapgate/")
	viper.AddConfigPath("/etc/zapgate/")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.MergeInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if required {
				log.Fatal().Msgf("Config file not found: %s", configFileName)
			}
			log.Info().Msgf("Config file not found: %s", configFileName)
			return false
		}

		if required {
			log.Fatal().Err(err).Msgf("Failed to load required config file: %s", configFileName)
		}
		log.Warn().Err(err).Msgf("Failed to load config file: %s", configFileName)
		return false
	}
	log.Info().Msgf("Loaded config file: %s", viper.ConfigFileUsed())

	return true
}

// BindEnvAliases binds each viper key to additional environment variable
// names, so deployments can keep their existing variable names
// (e.g. AWS_ACCESS_KEY_ID for access_key_id).
func BindEnvAliases(aliases map[string][]string) {
	for key, names := range aliases {
		args := append([]string{key}, names...)
		if err := viper.BindEnv(args...); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("failed to bind environment aliases")
		}
	}
}
