package engine

import (
	"strings"

	"github.com/solvik/meetwise/pkg/schema"
)

// producedKeys maps each action to the data keys it puts into the
// execution context on success. A required key that some step in the
// plan produces is an intermediate output, not an input, and must never
// block the run before it starts.
var producedKeys = map[schema.Action][]string{
	schema.ActionFindMeeting:           {"meeting_id", "calendar_event", "calendar_event_id"},
	schema.ActionRetrieveCalendarEvent: {"calendar_event", "calendar_event_id"},
	schema.ActionRetrieveTranscript:    {"transcript", "has_transcript"},
	schema.ActionSummarize:             {"summary"},
	schema.ActionRetrieveMemory:        {"memory"},
}

// inputKeys are the keys a caller can supply up front.
var inputKeys = map[string]bool{
	"meeting_id":        true,
	"calendar_event_id": true,
	"client_id":         true,
	"client_name":       true,
	"user_id":           true,
	"meeting_date":      true,
}

// missingPrerequisites checks the plan's required_data against what the
// request supplies and what the plan itself will produce. Keys that are
// neither known inputs nor producible by any action are planner noise
// and are ignored. meeting_date is always optional.
func missingPrerequisites(plan *schema.WorkflowPlan, req Request) []string {
	if len(plan.RequiredData) == 0 {
		return nil
	}

	producedInPlan := make(map[string]bool)
	for _, s := range plan.Steps {
		for _, k := range producedKeys[s.Action] {
			producedInPlan[k] = true
		}
	}
	producible := make(map[string]bool)
	for _, keys := range producedKeys {
		for _, k := range keys {
			producible[k] = true
		}
	}
	avail := availableInputs(req)

	var missing []string
	for _, raw := range plan.RequiredData {
		key := strings.TrimSpace(strings.ToLower(raw))
		if key == "" || key == "meeting_date" {
			continue
		}
		if producedInPlan[key] || avail[key] {
			continue
		}
		if inputKeys[key] || producible[key] {
			missing = append(missing, key)
		}
	}
	return missing
}

func availableInputs(req Request) map[string]bool {
	avail := map[string]bool{"meeting_date": true}
	if req.Selection.MeetingID != nil {
		avail["meeting_id"] = true
	}
	if req.Selection.CalendarEventID != "" {
		avail["calendar_event_id"] = true
	}
	if req.Selection.ClientName != "" {
		avail["client_name"] = true
	}
	if req.ClientID != nil {
		avail["client_id"] = true
	}
	if req.UserID != 0 {
		avail["user_id"] = true
	}
	return avail
}
