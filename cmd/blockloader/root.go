// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	envPrefix = "BLOCKLOADER"

	homeFlag      = "home"
	logLevelFlag  = "log-level"
	logFormatFlag = "log-format"
)

func defaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".blockloader"
	}
	return filepath.Join(home, ".blockloader")
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:           "blockloader",
		Short:         "Prefetch blocks from a full node with a pool of worker processes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return bindFlagsLoadConfig(v, cmd)
		},
	}
	cmd.PersistentFlags().String(homeFlag, defaultHome(), "directory for config")
	cmd.PersistentFlags().String(logLevelFlag, "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().String(logFormatFlag, "text", "log format (text, json)")
	cmd.AddCommand(
		newRunCmd(v),
		newWorkerCmd(v),
	)
	return cmd
}

// bindFlagsLoadConfig binds the command's flags and the environment to v and
// reads config.{toml,yaml,json} from the home directory if present
func bindFlagsLoadConfig(v *viper.Viper, cmd *cobra.Command) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	// Flags include the persistent flags of the parent
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	homeDir := v.GetString(homeFlag)
	v.SetConfigName("config")
	v.AddConfigPath(homeDir)
	v.AddConfigPath(filepath.Join(homeDir, "config"))
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
	}
	return nil
}
