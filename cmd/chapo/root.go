// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chapo-dev/chapo/internal/version"
)

var cfgFile string

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:     "chapo",
	Short:   "CHAPO orchestrates a team of assistant agents over your systems",
	Long:    "CHAPO is a conversational systems assistant. It routes user requests through\nan orchestrator that delegates to development, administration and research\nagents, gates risky actions behind approvals, and streams progress over\nWebSocket.",
	Version: version.Get(),
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./chapo.yaml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(jobsCmd)
}
