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

package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/chapo-dev/chapo/pkg/storage"
)

// ErrJobNotFound is returned for unknown job ids.
var ErrJobNotFound = errors.New("scheduled job not found")

// Store persists scheduled jobs as rows in the scheduled_jobs table.
type Store struct {
	backend storage.Backend
	logger  *zap.Logger
}

// NewStore creates a job store.
func NewStore(backend storage.Backend, logger *zap.Logger) (*Store, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{backend: backend, logger: logger}, nil
}

// Save writes the job row.
func (s *Store) Save(ctx context.Context, job *ScheduledJob) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job %s: %w", job.ID, err)
	}
	if err := s.backend.PutRow(ctx, storage.TableScheduledJobs, job.ID, raw); err != nil {
		return fmt.Errorf("failed to persist job %s: %w", job.ID, err)
	}
	return nil
}

// Get loads one job.
func (s *Store) Get(ctx context.Context, id string) (*ScheduledJob, error) {
	raw, err := s.backend.GetRow(ctx, storage.TableScheduledJobs, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", id, err)
	}
	var job ScheduledJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("corrupt job row %s: %w", id, err)
	}
	return &job, nil
}

// Delete removes the job row. Deleting a missing job is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.backend.DeleteRow(ctx, storage.TableScheduledJobs, id)
}

// List returns all persisted jobs sorted by name.
func (s *Store) List(ctx context.Context) ([]*ScheduledJob, error) {
	rows, err := s.backend.ListRows(ctx, storage.TableScheduledJobs)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	jobs := make([]*ScheduledJob, 0, len(rows))
	for id, raw := range rows {
		var job ScheduledJob
		if err := json.Unmarshal(raw, &job); err != nil {
			s.logger.Warn("skipping corrupt job row", zap.String("job_id", id), zap.Error(err))
			continue
		}
		jobs = append(jobs, &job)
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].Name < jobs[k].Name })
	return jobs, nil
}
