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
	"os"

	"github.com/blinklabs-io/blockloader/worker"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newWorkerCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:    "worker",
		Short:  "Run a block fetch worker on inherited pipes",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(
				os.Stderr,
				v.GetString(logLevelFlag),
				v.GetString(logFormatFlag),
			)
			if err != nil {
				return err
			}
			logger = logger.With("pid", os.Getpid())
			return worker.Main(cmd.Context(), logger)
		},
	}
}
