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
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chapo-dev/chapo/pkg/config"
	"github.com/chapo-dev/chapo/pkg/scheduler"
	"github.com/chapo-dev/chapo/pkg/storage"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage scheduled jobs",
}

// openJobStore opens the configured database directly. The server picks up
// changes on its next restart; live edits go through the assistant itself.
func openJobStore(cmd *cobra.Command) (*scheduler.Store, func(), error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.Path == "" {
		return nil, nil, fmt.Errorf("jobs require a configured database path")
	}
	backend, err := storage.NewSQLiteBackend(cmd.Context(), cfg.Database.Path, zap.NewNop())
	if err != nil {
		return nil, nil, err
	}
	store, err := scheduler.NewStore(backend, zap.NewNop())
	if err != nil {
		_ = backend.Close()
		return nil, nil, err
	}
	return store, func() { _ = backend.Close() }, nil
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scheduled jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, done, err := openJobStore(cmd)
		if err != nil {
			return err
		}
		defer done()

		jobs, err := store.List(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSCHEDULE\tSTATUS\tFAILURES\tLAST RESULT")
		for _, job := range jobs {
			status := string(job.Status)
			if !job.Enabled {
				status += " (disabled)"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%.60s\n",
				job.ID, job.Name, job.CronExpression, status, job.ConsecutiveFailures, job.LastResult)
		}
		return w.Flush()
	},
}

var jobsAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a scheduled job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, done, err := openJobStore(cmd)
		if err != nil {
			return err
		}
		defer done()

		cron, _ := cmd.Flags().GetString("cron")
		instruction, _ := cmd.Flags().GetString("instruction")
		channel, _ := cmd.Flags().GetString("channel")
		oneShot, _ := cmd.Flags().GetBool("one-shot")

		job := &scheduler.ScheduledJob{
			ID:                  uuid.NewString(),
			Name:                args[0],
			CronExpression:      cron,
			Instruction:         instruction,
			NotificationChannel: channel,
			Enabled:             true,
			OneShot:             oneShot,
			Status:              scheduler.StatusActive,
		}
		if err := job.Validate(); err != nil {
			return err
		}
		if err := store.Save(cmd.Context(), job); err != nil {
			return err
		}
		fmt.Println(job.ID)
		return nil
	},
}

var jobsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a scheduled job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, done, err := openJobStore(cmd)
		if err != nil {
			return err
		}
		defer done()
		return store.Delete(cmd.Context(), args[0])
	},
}

func init() {
	jobsAddCmd.Flags().String("cron", "", "cron expression (e.g. '0 7 * * *' or '@every 1h')")
	jobsAddCmd.Flags().String("instruction", "", "instruction the assistant runs")
	jobsAddCmd.Flags().String("channel", "", "notification channel id")
	jobsAddCmd.Flags().Bool("one-shot", false, "disable the job after its first success")
	_ = jobsAddCmd.MarkFlagRequired("cron")
	_ = jobsAddCmd.MarkFlagRequired("instruction")

	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsAddCmd)
	jobsCmd.AddCommand(jobsDeleteCmd)
}
