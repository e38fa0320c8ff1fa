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

// Package scheduler runs persisted cron jobs that drive orchestrator turns
// and notify external channels with the results.
package scheduler

import (
	"fmt"
	"strings"
	"time"
)

// JobStatus is the lifecycle of a scheduled job.
type JobStatus string

const (
	StatusActive          JobStatus = "active"
	StatusDisabledByError JobStatus = "disabled_by_error"
	StatusPaused          JobStatus = "paused"
)

// ScheduledJob is one persisted cron job.
type ScheduledJob struct {
	ID                  string     `json:"id"`
	Name                string     `json:"name"`
	CronExpression      string     `json:"cronExpression"`
	Instruction         string     `json:"instruction"`
	NotificationChannel string     `json:"notificationChannel,omitempty"`
	Enabled             bool       `json:"enabled"`
	OneShot             bool       `json:"oneShot"`
	Status              JobStatus  `json:"status"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	LastRunAt           *time.Time `json:"lastRunAt,omitempty"`
	LastResult          string     `json:"lastResult,omitempty"`
	LastErrorAt         *time.Time `json:"lastErrorAt,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

// Validate checks the fields a job needs before registration.
func (j *ScheduledJob) Validate() error {
	if j.ID == "" {
		return fmt.Errorf("job id is required")
	}
	if strings.TrimSpace(j.Name) == "" {
		return fmt.Errorf("job name is required")
	}
	if strings.TrimSpace(j.CronExpression) == "" {
		return fmt.Errorf("cron expression is required")
	}
	if strings.TrimSpace(j.Instruction) == "" {
		return fmt.Errorf("job instruction is required")
	}
	return nil
}

// Runnable reports whether the job should be registered with the cron
// engine.
func (j *ScheduledJob) Runnable() bool {
	return j.Enabled && j.Status == StatusActive
}

// FailureRecord is one entry of the recent-failure ring buffer.
type FailureRecord struct {
	JobID     string    `json:"jobId"`
	JobName   string    `json:"jobName"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}
