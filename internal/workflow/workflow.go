// Package workflow implements the DD State Machine (spec section 4.4):
// the enumerated state set, the deterministic transition function,
// parallel TDD/MDD dispatch, the HITL_REVIEW suspension point, per-step
// progress emission, and error containment that degrades rather than
// aborts. Grounded on the teacher's pkg/core/pipeline/orchestrator.go
// sequential-with-validation pattern and pkg/core/debate/orchestrator.go's
// phase-based Run(ctx) with a suspend/resume point.
package workflow

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"ddorchestrator/internal/agents"
	"ddorchestrator/internal/ddrerr"
	"ddorchestrator/internal/eventbus"
	"ddorchestrator/internal/logging"
	"ddorchestrator/internal/model"
	"ddorchestrator/internal/preference"
	"ddorchestrator/internal/session"
)

// Per-state timeouts (spec 4.4).
const (
	timeoutDocParse = 180 * time.Second
	timeoutEachDD   = 120 * time.Second
	timeoutDDQ      = 90 * time.Second
)

// Orchestrator runs the DD State Machine; each Run call drives one
// session, and one Orchestrator may run several sessions concurrently.
type Orchestrator struct {
	Manager     *session.Manager
	Deps        agents.Deps
	FanoutLimit int // per-session concurrency budget for outstanding external calls (spec section 5)

	bpParser  *agents.BPParser
	team      *agents.TeamAnalyst
	market    *agents.MarketAnalyst
	valuation *agents.ValuationAgent
	exit      *agents.ExitAgent
	ddq       *agents.DDQGenerator
}

// NewOrchestrator builds an Orchestrator. modelOverrides is the optional
// per-agent model-ID override table (spec.md design note "Prompt-engineering
// details are data" extended to model choice; see internal/config), keyed by
// agent name ("bp_parser", "team_analyst", "market_analyst",
// "valuation_agent", "exit_agent", "ddq_generator"); a nil or empty map
// leaves every agent on deps.ModelID.
func NewOrchestrator(mgr *session.Manager, deps agents.Deps, modelOverrides map[string]string) *Orchestrator {
	return &Orchestrator{
		Manager:     mgr,
		Deps:        deps,
		FanoutLimit: 16,
		bpParser:    &agents.BPParser{Deps: withModelOverride(deps, modelOverrides, "bp_parser")},
		team:        &agents.TeamAnalyst{Deps: withModelOverride(deps, modelOverrides, "team_analyst")},
		market:      &agents.MarketAnalyst{Deps: withModelOverride(deps, modelOverrides, "market_analyst")},
		valuation:   &agents.ValuationAgent{Deps: withModelOverride(deps, modelOverrides, "valuation_agent")},
		exit:        &agents.ExitAgent{Deps: withModelOverride(deps, modelOverrides, "exit_agent")},
		ddq:         &agents.DDQGenerator{Deps: withModelOverride(deps, modelOverrides, "ddq_generator")},
	}
}

func withModelOverride(deps agents.Deps, overrides map[string]string, name string) agents.Deps {
	if id, ok := overrides[name]; ok && id != "" {
		deps.ModelID = id
	}
	return deps
}

// Input bundles the Start request payload (spec 6.1).
type Input struct {
	BPBytes     []byte
	BPMime      string
	Preferences model.InstitutionPreferences
}

// Run drives sess through the full state machine, publishing progress
// events to the session's bus, and returns the final IM or an error. It
// acquires the per-session transition mutex for each individual
// transition, not for the whole run, so a concurrent Get/Subscribe is
// never blocked by a long-running phase.
func (o *Orchestrator) Run(ctx context.Context, sess *model.Session, in Input) (*model.PreliminaryIM, error) {
	bus, ok := o.Manager.Bus(sess.ID)
	if !ok {
		return nil, ddrerr.New(ddrerr.SessionNotFound, "session bus missing: "+sess.ID)
	}

	sem := agents.NewSemaphore(o.FanoutLimit)
	var nextStepIdx atomic.Int64

	// runStep allocates a step index and holds the per-session transition
	// lock only around the AppendStep/UpdateStep bookkeeping at the start
	// and end of the step, never across fn itself: TDD and MDD call runStep
	// from two concurrently running goroutines (spec 4.4 "TDD ∥ MDD"), and
	// holding the lock across fn would serialize their LLM calls, defeating
	// the whole point of running them concurrently. The index itself comes
	// from an atomic counter so the two goroutines never race on it.
	runStep := func(title string, timeout time.Duration, fn func(ctx context.Context, report agents.ProgressFunc) (map[string]any, bool, error)) (map[string]any, error) {
		idx := int(nextStepIdx.Add(1) - 1)

		unlock, err := o.Manager.Lock(sess.ID)
		if err != nil {
			return nil, err
		}
		step := model.Step{Index: idx, Title: title, Status: model.StepRunning, StartedAt: time.Now()}
		_ = o.Manager.Store().AppendStep(ctx, sess.ID, step)
		unlock()
		bus.Publish(eventbus.Event{Kind: "step_start", Data: map[string]any{"session_id": sess.ID, "step_index": idx, "title": title}})

		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		report := func(percent int, subStep string) {
			step.Percent = percent
			step.SubStep = subStep
			if unlock, lerr := o.Manager.Lock(sess.ID); lerr == nil {
				_ = o.Manager.Store().UpdateStep(ctx, sess.ID, step)
				unlock()
			}
			bus.Publish(eventbus.Event{Kind: "step_progress", Data: map[string]any{"session_id": sess.ID, "step_index": idx, "percent": percent, "sub_step": subStep}})
		}

		result, degraded, err := fn(callCtx, report)

		step.CompletedAt = time.Now()
		if err != nil {
			step.Status = model.StepError
			step.Error = err.Error()
			if unlock, lerr := o.Manager.Lock(sess.ID); lerr == nil {
				_ = o.Manager.Store().UpdateStep(ctx, sess.ID, step)
				unlock()
			}
			bus.Publish(eventbus.Event{Kind: "step_complete", Data: map[string]any{"session_id": sess.ID, "step_index": idx, "status": "error"}})
			return nil, err
		}

		step.Status = model.StepSuccess
		step.Degraded = degraded
		step.Result = result
		if unlock, lerr := o.Manager.Lock(sess.ID); lerr == nil {
			_ = o.Manager.Store().UpdateStep(ctx, sess.ID, step)
			unlock()
		}
		bus.Publish(eventbus.Event{Kind: "step_complete", Data: map[string]any{"session_id": sess.ID, "step_index": idx, "status": "success", "degraded": degraded}})
		return result, nil
	}

	fail := func(phase string, cause error) (*model.PreliminaryIM, error) {
		kind := ddrerr.InternalError
		if ctx.Err() != nil {
			sess.CanceledReason = "canceled"
			_ = o.Manager.Store().MarkTerminal(ctx, sess.ID, model.StateError, "canceled")
		} else {
			_ = o.Manager.Store().MarkTerminal(ctx, sess.ID, model.StateError, "")
		}
		bus.Terminate(eventbus.Event{Kind: "workflow_complete", Data: map[string]any{"session_id": sess.ID, "error": cause.Error(), "phase": phase}})
		return nil, ddrerr.Wrap(kind, fmt.Sprintf("workflow failed in %s", phase), cause)
	}

	// --- DOC_PARSE ---
	_ = o.Manager.Store().UpdateState(ctx, sess.ID, model.StateDocParse)
	var bp model.BPStructuredData
	_, err := runStep("parse business plan", timeoutDocParse, func(cctx context.Context, report agents.ProgressFunc) (map[string]any, bool, error) {
		parsed, degraded := o.bpParser.Analyze(cctx, in.BPBytes, in.BPMime, sess.CompanyName, report)
		bp = parsed
		return map[string]any{"bp": parsed}, degraded, nil
	})
	if err != nil {
		return fail("DOC_PARSE", err)
	}
	sess.Context["bp"] = bp

	// --- PREFERENCE_CHECK ---
	_ = o.Manager.Store().UpdateState(ctx, sess.ID, model.StatePreferenceCheck)
	var prefResult model.PreferenceMatchResult
	_, err = runStep("check institution preferences", timeoutEachDD, func(cctx context.Context, report agents.ProgressFunc) (map[string]any, bool, error) {
		prefResult = preference.Match(bp, in.Preferences)
		return map[string]any{"preference_match": prefResult}, false, nil
	})
	if err != nil {
		return fail("PREFERENCE_CHECK", err)
	}
	sess.Context["preference_match"] = prefResult

	if prefResult.Recommendation == model.RecommendAbort {
		_ = o.Manager.Store().MarkTerminal(ctx, sess.ID, model.StateCompleted, "")
		im := &model.PreliminaryIM{
			CompanyName:     sess.CompanyName,
			PreferenceMatch: &prefResult,
			GeneratedAt:     time.Now(),
		}
		bus.Terminate(eventbus.Event{Kind: "workflow_complete", Data: map[string]any{"session_id": sess.ID, "preliminary_im": im}})
		return im, nil
	}

	// --- TDD ∥ MDD ---
	_ = o.Manager.Store().UpdateState(ctx, sess.ID, model.StateTDD)
	var teamOut model.TeamAnalysisOutput
	var marketOut model.MarketAnalysisOutput
	var teamErr, marketErr error

	agents.Fanout([]func(){
		func() {
			_, teamErr = runStep("team due diligence", timeoutEachDD, func(cctx context.Context, report agents.ProgressFunc) (map[string]any, bool, error) {
				teamOut = o.team.Analyze(cctx, bp, sem, report)
				return map[string]any{"team": teamOut}, teamOut.Degraded, nil
			})
		},
		func() {
			_ = o.Manager.Store().UpdateState(ctx, sess.ID, model.StateMDD)
			_, marketErr = runStep("market due diligence", timeoutEachDD, func(cctx context.Context, report agents.ProgressFunc) (map[string]any, bool, error) {
				marketOut = o.market.Analyze(cctx, bp, sem, report)
				return map[string]any{"market": marketOut}, marketOut.Degraded, nil
			})
		},
	})
	// TDD and MDD have their own fallback outputs, so a step error here
	// (as opposed to a degraded success) only happens on phase_timeout or
	// an uncaught exception outside the agent -- both unrecoverable.
	if teamErr != nil {
		return fail("TDD", teamErr)
	}
	if marketErr != nil {
		return fail("MDD", marketErr)
	}
	sess.Context["team"] = teamOut
	sess.Context["market"] = marketOut

	// --- CROSS_CHECK --- (valuation, then exit, which consumes the MDD
	// output and the valuation, run here in sequence before DD question
	// generation)
	_ = o.Manager.Store().UpdateState(ctx, sess.ID, model.StateCrossCheck)
	var valuationOut model.ValuationOutput
	var exitOut model.ExitOutput
	_, err = runStep("cross-check valuation and exit paths", timeoutEachDD, func(cctx context.Context, report agents.ProgressFunc) (map[string]any, bool, error) {
		valuationOut = o.valuation.Analyze(cctx, bp, sem, report)
		exitOut = o.exit.Analyze(cctx, bp, marketOut, valuationOut, report)
		degraded := valuationOut.Degraded || exitOut.Degraded
		return map[string]any{"valuation": valuationOut, "exit": exitOut}, degraded, nil
	})
	if err != nil {
		return fail("CROSS_CHECK", err)
	}
	sess.Context["valuation"] = valuationOut
	sess.Context["exit"] = exitOut

	// --- DD_QUESTIONS ---
	_ = o.Manager.Store().UpdateState(ctx, sess.ID, model.StateDDQuestions)
	var questions []model.DDQuestion
	_, err = runStep("generate due diligence questions", timeoutDDQ, func(cctx context.Context, report agents.ProgressFunc) (map[string]any, bool, error) {
		questions = o.ddq.Analyze(cctx, bp, teamOut, marketOut, report)
		return map[string]any{"dd_questions": questions}, false, nil
	})
	if err != nil {
		return fail("DD_QUESTIONS", err)
	}
	sess.Context["dd_questions"] = questions

	// --- HITL_REVIEW ---
	_ = o.Manager.Store().UpdateState(ctx, sess.ID, model.StateHITLReview)
	draftIM := &model.PreliminaryIM{
		CompanyName:     sess.CompanyName,
		TeamSection:     &teamOut,
		MarketSection:   &marketOut,
		Valuation:       &valuationOut,
		Exit:            &exitOut,
		DDQuestions:     questions,
		PreferenceMatch: &prefResult,
		GeneratedAt:     time.Now(),
	}
	hitlIdx := int(nextStepIdx.Add(1) - 1)
	hitlStep := model.Step{Index: hitlIdx, Title: "human review required", Status: model.StepPaused, StartedAt: time.Now()}
	_ = o.Manager.Store().AppendStep(ctx, sess.ID, hitlStep)
	bus.Publish(eventbus.Event{Kind: "hitl_required", Data: map[string]any{"session_id": sess.ID, "step_index": hitlIdx, "draft_im": draftIM}})

	resumeSignal, err := o.Manager.AwaitResume(ctx, sess.ID)
	if err != nil {
		return fail("HITL_REVIEW", err)
	}

	hitlStep.Status = model.StepSuccess
	hitlStep.CompletedAt = time.Now()
	hitlStep.Result = map[string]any{"action": resumeSignal.Action, "payload": resumeSignal.Payload}
	_ = o.Manager.Store().UpdateStep(ctx, sess.ID, hitlStep)
	sess.Context["hitl_decision"] = resumeSignal

	if resumeSignal.Action == "revise" {
		logging.Info("session %s: HITL revise received, payload merged into final IM context", sess.ID)
		draftIM.GeneratedAt = time.Now()
	}

	// --- COMPLETED ---
	_ = o.Manager.Store().MarkTerminal(ctx, sess.ID, model.StateCompleted, "")
	bus.Terminate(eventbus.Event{Kind: "workflow_complete", Data: map[string]any{"session_id": sess.ID, "preliminary_im": draftIM}})
	return draftIM, nil
}
