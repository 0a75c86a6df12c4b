// Command server wires the DD Orchestrator's service clients, session
// store, workflow orchestrator, and HTTP transports together and starts
// listening, mirroring the teacher's cmd/api/main.go top-level wiring
// (godotenv load, construct managers, http.HandleFunc registration,
// ListenAndServe) generalized to this module's component set.
package main

import (
	"fmt"
	"net/http"
	"os"

	"ddorchestrator/api/httpapi"
	"ddorchestrator/api/sse"
	"ddorchestrator/api/ws"
	"ddorchestrator/internal/agents"
	"ddorchestrator/internal/config"
	"ddorchestrator/internal/logging"
	"ddorchestrator/internal/prompt"
	"ddorchestrator/internal/serviceclients/externaldata"
	"ddorchestrator/internal/serviceclients/internalknowledge"
	"ddorchestrator/internal/serviceclients/llmgateway"
	"ddorchestrator/internal/serviceclients/websearch"
	"ddorchestrator/internal/session"
	"ddorchestrator/internal/workflow"
)

func main() {
	cfg := config.Load()

	llmClient := llmgateway.New(llmgateway.APIKeyFromEnv(), cfg.LLMModelID)
	webSearchClient := websearch.New(cfg.WebSearchURL)
	externalDataClient := externaldata.New(cfg.ExternalDataURL)

	var knowledgeBackend internalknowledge.Backend = internalknowledge.NewMemoryBackend()
	internalKnowledgeClient := internalknowledge.New(cfg.InternalKnowledgeURL, knowledgeBackend)

	var prompts *prompt.Registry
	if cfg.PromptOverrideDir != "" {
		p, err := prompt.LoadFromDirectory(cfg.PromptOverrideDir)
		if err != nil {
			logging.Warn("server: failed to load prompt overrides from %s: %v", cfg.PromptOverrideDir, err)
		} else {
			prompts = p
			logging.Info("server: loaded %d prompt overrides from %s", prompts.Count(), cfg.PromptOverrideDir)
		}
	}

	deps := agents.Deps{
		LLM:               llmClient,
		WebSearch:         webSearchClient,
		ExternalData:      externalDataClient,
		InternalKnowledge: internalKnowledgeClient,
		ModelID:           cfg.LLMModelID,
		CallTimeout:       cfg.LLMTimeout(),
		Prompts:           prompts,
	}

	store, err := buildStore(cfg)
	if err != nil {
		logging.Error("server: failed to initialize session store: %v", err)
		os.Exit(1)
	}

	mgr := session.NewManager(store)
	mgr.MaxConcurrentSessions = cfg.MaxConcurrentSessions
	orch := workflow.NewOrchestrator(mgr, deps, cfg.AgentModelOverrides)
	orch.FanoutLimit = cfg.PerSessionFanoutLimit

	httpHandler := httpapi.NewHandler(mgr, orch)
	wsHandler := ws.NewHandler(mgr, orch)
	sseHandler := sse.NewHandler(llmClient, cfg.LLMModelID)
	sseHandler.Prompts = prompts

	http.HandleFunc("/api/dd/start", httpHandler.Start)
	http.HandleFunc("/api/dd/get", httpHandler.Get)
	http.HandleFunc("/api/dd/resume", httpHandler.Resume)
	http.Handle("/api/dd/stream", wsHandler)

	http.HandleFunc("/api/roundtable/start", sseHandler.Start)
	http.HandleFunc("/api/roundtable/intervene", sseHandler.Intervene)

	addr := ":8080"
	if v := os.Getenv("PORT"); v != "" {
		addr = ":" + v
	}

	fmt.Printf("due diligence orchestrator listening on %s (session store: %s)\n", addr, cfg.SessionStoreBackend)
	if err := http.ListenAndServe(addr, nil); err != nil {
		logging.Error("server: listen failed: %v", err)
		os.Exit(1)
	}
}

func buildStore(cfg *config.Config) (session.Store, error) {
	if cfg.SessionStoreBackend == "redis" {
		return session.NewRedisStore(cfg.RedisURL)
	}
	return session.NewMemoryStore(), nil
}
