// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"os"

	"github.com/LeeDigitalWorks/zapgate/pkg/utils"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "zapgate",
	Short: "ZapGate - An authenticating S3 reverse proxy",
	Long: `ZapGate sits in front of a single S3-compatible bucket.
It verifies AWS Signature V4 on inbound requests with its own key pair,
re-signs them with the upstream credentials and retries range requests
whose responses lost their Content-Range on the way.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&utils.ConfigurationFileDirectory, "config_dir", ".", "Directory for configuration files")
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
