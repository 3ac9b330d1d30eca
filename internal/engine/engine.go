// Package engine executes planner-produced workflow plans: it runs each
// step's action, checks prerequisites up front, recovers failures
// through per-step fallback chains, and shapes the terminal result for
// the caller.
package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/solvik/meetwise/internal/calendar"
	"github.com/solvik/meetwise/internal/expressions"
	"github.com/solvik/meetwise/internal/extract"
	"github.com/solvik/meetwise/internal/logging"
	"github.com/solvik/meetwise/internal/resolve"
	"github.com/solvik/meetwise/internal/store"
	"github.com/solvik/meetwise/internal/synthesis"
	"github.com/solvik/meetwise/internal/tools"
	"github.com/solvik/meetwise/pkg/schema"
)

// Engine executes workflow plans. Safe for concurrent use: all per-run
// state lives in the Execute call.
type Engine struct {
	store       store.Store
	cal         calendar.Service
	finder      *resolve.Finder
	transcripts tools.TranscriptService
	ingestor    *tools.Ingestor
	summarizer  *tools.Summarizer
	followups   *tools.FollowupWriter
	briefs      *tools.BriefWriter
	deltas      *tools.DeltaComputer
	cel         *expressions.CELEngine
	logger      *slog.Logger
	now         func() time.Time
}

// Options wires the engine's collaborators. Store, Calendar, Finder,
// Ingestor, and Summarizer are required; the rest have working defaults
// or disable their feature when nil.
type Options struct {
	Store       store.Store
	Calendar    calendar.Service
	Finder      *resolve.Finder
	Transcripts tools.TranscriptService
	Ingestor    *tools.Ingestor
	Summarizer  *tools.Summarizer
	Followups   *tools.FollowupWriter
	Briefs      *tools.BriefWriter
	Deltas      *tools.DeltaComputer
	CEL         *expressions.CELEngine
	Logger      *slog.Logger
	Now         func() time.Time
}

func New(opts Options) (*Engine, error) {
	celEngine := opts.CEL
	if celEngine == nil {
		var err error
		celEngine, err = expressions.NewCELEngine()
		if err != nil {
			return nil, err
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{
		store:       opts.Store,
		cal:         opts.Calendar,
		finder:      opts.Finder,
		transcripts: opts.Transcripts,
		ingestor:    opts.Ingestor,
		summarizer:  opts.Summarizer,
		followups:   opts.Followups,
		briefs:      opts.Briefs,
		deltas:      opts.Deltas,
		cel:         celEngine,
		logger:      logger,
		now:         now,
	}, nil
}

// Request is one workflow execution request: the user's message and
// intent, the plan to run, and the meeting reference already parsed
// from the message.
type Request struct {
	Intent    string
	Message   string
	UserID    int64
	ClientID  *int64
	Selection extract.Selection
	Plan      *schema.WorkflowPlan
	Now       time.Time
}

// Execute runs the plan to completion. A nil result means the request
// carried no executable workflow and the caller should answer directly.
// All workflow-level failures come back as terminal results, not Go
// errors.
func (e *Engine) Execute(ctx context.Context, req Request) (*schema.TerminalResult, error) {
	if req.Plan == nil {
		return nil, nil
	}
	plan := req.Plan.Sanitize()
	if len(plan.Steps) == 0 {
		return nil, nil
	}

	now := req.Now
	if now.IsZero() {
		now = e.now()
	}
	rs := newRunState()
	ec := newExecutionContext()
	ctx = logging.WithRunID(ctx, rs.RunID.String())
	logger := e.logger.With("run_id", rs.RunID, "intent", req.Intent, "user_id", req.UserID)
	logger.InfoContext(ctx, "workflow started", "steps", len(plan.Steps))

	if missing := missingPrerequisites(plan, req); len(missing) > 0 {
		logger.WarnContext(ctx, "workflow rejected", "missing", missing)
		return schema.WorkflowFailure("Missing prerequisites: " + strings.Join(missing, ", ")), nil
	}

	for i, step := range plan.Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if skip, reason := e.stepGated(ctx, step, req, ec); skip {
			ec.record(&schema.StepResult{
				Action: step.Action, Tool: step.Tool,
				Status: schema.StepSkipped, Message: reason,
			})
			continue
		}

		if loopErr := rs.noteStep(step.Action); loopErr != nil {
			logger.ErrorContext(ctx, "workflow loop detected", "action", step.Action)
			return schema.WorkflowFailure(loopErr.Message), nil
		}

		stepCtx := logging.WithAction(ctx, string(step.Action))
		out := e.dispatch(stepCtx, step, req, ec, now)
		ec.record(out.result)
		ec.merge(out)
		logger.InfoContext(ctx, "step finished",
			"step", i, "action", step.Action, "status", out.result.Status)

		if out.terminal != nil {
			return out.terminal, nil
		}
		if out.result.Status == schema.StepSuccess || out.result.Status == schema.StepSkipped {
			continue
		}

		terminal, recovered := e.recoverStep(stepCtx, i, step, out.result, req, ec, rs, now)
		if terminal != nil {
			logger.InfoContext(ctx, "workflow ended during recovery",
				"step", i, "action", step.Action, "error", terminal.Error)
			return terminal, nil
		}
		if !recovered {
			return schema.WorkflowFailure("Step '" + string(step.Action) + "' could not be recovered"), nil
		}
	}

	e.rememberSelection(ctx, req.UserID, ec.MeetingID)
	logger.InfoContext(ctx, "workflow completed", "steps_recorded", len(ec.StepResults))

	if ec.finalOutput != nil {
		return &schema.TerminalResult{ToolName: ec.finalTool, Result: ec.finalOutput}, nil
	}
	return &schema.TerminalResult{
		ToolName: "workflow",
		Result:   synthesis.Generic(ec.StructuredData, ec.StepResults),
	}, nil
}

// stepGated evaluates the step's condition expression, if any. An
// expression that fails to evaluate does not block the step.
func (e *Engine) stepGated(ctx context.Context, step schema.Step, req Request, ec *ExecutionContext) (bool, string) {
	if step.When == "" {
		return false, ""
	}
	ok, err := e.cel.EvaluateBool(ctx, step.When, ec.celData(req.Intent, req.UserID))
	if err != nil {
		e.logger.WarnContext(ctx, "step condition evaluation failed",
			"action", step.Action, "expression", step.When, "error", err)
		return false, ""
	}
	if ok {
		return false, ""
	}
	return true, "condition not met"
}

// rememberSelection stores the resolved meeting so a later
// use_last_selected_meeting fallback can find it. Best-effort.
func (e *Engine) rememberSelection(ctx context.Context, userID int64, meetingID *int64) {
	if meetingID == nil || userID == 0 {
		return
	}
	value, err := json.Marshal(*meetingID)
	if err != nil {
		return
	}
	entry := &store.MemoryEntry{
		UserID: userID,
		Key:    store.MemoryLastSelectedMeeting,
		Value:  value,
	}
	if err := e.store.SetMemory(ctx, entry); err != nil {
		e.logger.WarnContext(ctx, "failed to store meeting selection",
			"user_id", userID, "meeting_id", *meetingID, "error", err)
	}
}
