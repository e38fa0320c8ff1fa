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

package turn

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chapo-dev/chapo/pkg/state"
)

var planOwners = map[string]bool{
	"chapo": true, "devo": true, "scout": true, "caio": true,
}

var planStatuses = map[state.PlanStepStatus]bool{
	state.PlanStepTodo: true, state.PlanStepDoing: true,
	state.PlanStepDone: true, state.PlanStepBlocked: true,
}

// PlanInput is the payload of the setChapoPlan control tool.
type PlanInput struct {
	Title string          `json:"title"`
	Steps []PlanStepInput `json:"steps"`
}

// PlanStepInput is one step of a plan update.
type PlanStepInput struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Owner  string `json:"owner"`
	Status string `json:"status"`
}

// ValidatePlan checks a plan update against the plan rules: non-empty title,
// at least one step, unique ids, owners and statuses from the enums, at most
// one step in "doing".
func ValidatePlan(in PlanInput) error {
	if in.Title == "" {
		return fmt.Errorf("plan title must not be empty")
	}
	if len(in.Steps) == 0 {
		return fmt.Errorf("plan needs at least one step")
	}
	seen := make(map[string]bool, len(in.Steps))
	doing := 0
	for i, step := range in.Steps {
		if step.ID == "" {
			return fmt.Errorf("step %d has no id", i+1)
		}
		if seen[step.ID] {
			return fmt.Errorf("duplicate step id %q", step.ID)
		}
		seen[step.ID] = true
		if !planOwners[step.Owner] {
			return fmt.Errorf("step %q has unknown owner %q", step.ID, step.Owner)
		}
		if !planStatuses[state.PlanStepStatus(step.Status)] {
			return fmt.Errorf("step %q has unknown status %q", step.ID, step.Status)
		}
		if state.PlanStepStatus(step.Status) == state.PlanStepDoing {
			doing++
		}
	}
	if doing > 1 {
		return fmt.Errorf("at most one step may be doing, got %d", doing)
	}
	return nil
}

// ApplyPlan writes a validated plan update into the state, bumping the
// version and archiving the previous plan. Returns the stored plan.
func ApplyPlan(st *state.ConversationState, in PlanInput) state.Plan {
	version := 1
	planID := uuid.NewString()
	if st.CurrentPlan != nil {
		version = st.CurrentPlan.Version + 1
		planID = st.CurrentPlan.PlanID
		st.PlanHistory = append(st.PlanHistory, *st.CurrentPlan)
	}
	steps := make([]state.PlanStep, len(in.Steps))
	for i, s := range in.Steps {
		steps[i] = state.PlanStep{
			ID:     s.ID,
			Text:   s.Text,
			Owner:  s.Owner,
			Status: state.PlanStepStatus(s.Status),
		}
	}
	plan := state.Plan{
		PlanID:    planID,
		Version:   version,
		Title:     in.Title,
		Steps:     steps,
		UpdatedAt: time.Now(),
	}
	st.CurrentPlan = &plan
	if st.TaskContext.GatheredInfo == nil {
		st.TaskContext.GatheredInfo = map[string]interface{}{}
	}
	st.TaskContext.GatheredInfo["chapoPlan"] = plan
	return plan
}
