// Package agents implements the Analysis Agents family (spec section 4.3):
// BP Parser, Team Analyst, Market Analyst, Risk/DDQ Generator, Valuation
// Agent, Exit Agent. Every agent shares the same shape -- gather, build
// context, call LLM, parse, fallback -- grounded on the teacher's
// extraction-then-fallback pattern in pkg/core/pipeline/orchestrator.go
// and pkg/core/edgar/statement_agents.go's parallel gather.
package agents

import (
	"context"
	"sync"
	"time"

	"ddorchestrator/internal/prompt"
	"ddorchestrator/internal/serviceclients/externaldata"
	"ddorchestrator/internal/serviceclients/internalknowledge"
	"ddorchestrator/internal/serviceclients/llmgateway"
	"ddorchestrator/internal/serviceclients/websearch"
)

// ProgressFunc reports mid-step progress (spec 4.4's step_progress event:
// {percent, sub_step}); the workflow supplies one bound to the step's index
// and bus, agents call it at whatever internal checkpoint is meaningful to
// them (gather-fanout complete, about to call the LLM, ...). It is always
// non-nil when the workflow calls an agent, but agents called directly from
// a test are free to pass nil.
type ProgressFunc func(percent int, subStep string)

func (f ProgressFunc) report(percent int, subStep string) {
	if f != nil {
		f(percent, subStep)
	}
}

// Deps bundles the four service clients every agent may call; the
// per-session fan-out semaphore is threaded through gatherCall so no agent can
// exceed the session's concurrency budget (spec section 5). Prompts is the
// optional per-agent system-prompt override table (spec.md design note
// "Prompt-engineering details are data"); a nil Prompts leaves every agent
// on its built-in prompt constant.
type Deps struct {
	LLM               *llmgateway.Client
	WebSearch         *websearch.Client
	ExternalData      *externaldata.Client
	InternalKnowledge *internalknowledge.Client
	Prompts           *prompt.Registry
	ModelID           string
	CallTimeout       time.Duration
}

// systemPrompt returns the Prompts override registered under name, falling
// back to fallback when no override is configured.
func (d Deps) systemPrompt(name, fallback string) string {
	if ov, ok := d.Prompts.Get(name); ok {
		return ov
	}
	return fallback
}

func (d Deps) callTimeout() time.Duration {
	if d.CallTimeout > 0 {
		return d.CallTimeout
	}
	return 30 * time.Second
}

// GatherResult wraps one gather-step outcome; Unavailable is set (rather
// than the call aborting the agent) when the underlying service call
// failed, per spec 4.3 step 1.
type GatherResult[T any] struct {
	Value       T
	Unavailable bool
	Err         error
}

// gatherCall runs fn with its own timeout and a semaphore slot, reporting
// failure as Unavailable instead of propagating the error -- the agent
// family's core "never abort on a single failed call" rule.
func gatherCall[T any](ctx context.Context, sem chan struct{}, timeout time.Duration, fn func(ctx context.Context) (T, error)) GatherResult[T] {
	sem <- struct{}{}
	defer func() { <-sem }()

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	v, err := fn(callCtx)
	if err != nil {
		var zero T
		return GatherResult[T]{Value: zero, Unavailable: true, Err: err}
	}
	return GatherResult[T]{Value: v}
}

// Fanout runs a list of thunks concurrently and waits for all to finish;
// it takes no semaphore itself, so any bound comes from the gatherCall
// calls inside the thunks -- the sync.WaitGroup + buffered-channel
// fan-out pattern in pkg/core/edgar/statement_agents.go ParallelExtract,
// generalized to any result type via a closure slice instead of a fixed
// per-section struct.
func Fanout(thunks []func()) {
	var wg sync.WaitGroup
	wg.Add(len(thunks))
	for _, t := range thunks {
		go func(fn func()) {
			defer wg.Done()
			fn()
		}(t)
	}
	wg.Wait()
}

// NewSemaphore builds the counted semaphore spec section 5 requires for
// per-session fan-out limiting.
func NewSemaphore(n int) chan struct{} {
	if n <= 0 {
		n = 16
	}
	return make(chan struct{}, n)
}
