// Package httpapi exposes the completion service over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/af-corp/conduit/internal/auth"
	"github.com/af-corp/conduit/internal/httputil"
	"github.com/af-corp/conduit/internal/llm"
	"github.com/af-corp/conduit/internal/ratelimit"
	"github.com/af-corp/conduit/internal/telemetry"
	"github.com/af-corp/conduit/internal/types"
	"github.com/af-corp/conduit/internal/usage"
)

// CompletionRequest is the POST /v1/completions body.
type CompletionRequest struct {
	Orchestrator string          `json:"orchestrator,omitempty"`
	System       string          `json:"system,omitempty"`
	History      []types.Message `json:"history,omitempty"`
	Prompt       string          `json:"prompt"`
	Images       []string        `json:"images,omitempty"`
	Prefix       string          `json:"prefix,omitempty"`
	JSONOutput   bool            `json:"json_output,omitempty"`
	Stream       bool            `json:"stream,omitempty"`
	AgentID      string          `json:"agent_id,omitempty"`
	ActionID     string          `json:"action_id,omitempty"`
}

// CompletionResponse is the blocking response body.
type CompletionResponse struct {
	Text      string                `json:"text"`
	JSON      json.RawMessage       `json:"json,omitempty"`
	ToolCalls []types.ToolCall      `json:"tool_calls,omitempty"`
	Usage     usage.CompletionUsage `json:"usage"`
}

// Handler serves the completion endpoints.
type Handler struct {
	registry *llm.Registry
	metrics  *telemetry.Metrics
	budget   *ratelimit.BudgetTracker
	logger   *slog.Logger
}

func NewHandler(registry *llm.Registry, metrics *telemetry.Metrics, budget *ratelimit.BudgetTracker, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{registry: registry, metrics: metrics, budget: budget, logger: logger}
}

// Completions serves POST /v1/completions, blocking or streaming out over
// SSE depending on the request's stream flag.
func (h *Handler) Completions(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	var req CompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON body: "+err.Error())
		return
	}
	if req.Prompt == "" && len(req.History) == 0 {
		httputil.WriteBadRequestError(w, reqID, "Request needs a prompt or history")
		return
	}

	orch, ok := h.registry.Get(req.Orchestrator)
	if !ok {
		httputil.WriteBadRequestError(w, reqID, "Unknown orchestrator: "+req.Orchestrator)
		return
	}

	if info, ok := auth.AuthFromContext(r.Context()); ok && !info.ModelAllowed(orch.Model()) {
		httputil.WriteModelError(w, reqID, "API key is not allowed to use model "+orch.Model())
		return
	}

	llmReq := llm.Request{
		System:     req.System,
		History:    req.History,
		Prompt:     req.Prompt,
		Images:     req.Images,
		Prefix:     req.Prefix,
		JSONOutput: req.JSONOutput,
		AgentID:    req.AgentID,
		ActionID:   req.ActionID,
	}

	start := time.Now()
	var result *llm.Result
	var err error
	if req.Stream {
		result, err = h.streamCompletion(w, r, orch, llmReq)
	} else {
		result, err = orch.Complete(r.Context(), llmReq)
	}

	h.report(r, orch, req, result, err, time.Since(start))

	if req.Stream {
		// Errors mid-stream were already surfaced on the wire.
		return
	}
	if err != nil {
		h.writeCompletionError(w, reqID, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(CompletionResponse{
		Text:      result.Text,
		JSON:      result.JSON,
		ToolCalls: result.ToolCalls,
		Usage:     result.Usage,
	})
}

// UsageResponse is the GET /v1/usage body.
type UsageResponse struct {
	Orchestrators map[string]OrchestratorUsage `json:"orchestrators"`
	TotalTokens   int                          `json:"total_tokens"`
	TotalCost     float64                      `json:"total_cost"`
}

type OrchestratorUsage struct {
	Provider    string                  `json:"provider"`
	Model       string                  `json:"model"`
	Completions []usage.CompletionUsage `json:"completions"`
	TotalTokens int                     `json:"total_tokens"`
	TotalCost   float64                 `json:"total_cost"`
}

// Usage serves GET /v1/usage with the aggregated ledger totals.
func (h *Handler) Usage(w http.ResponseWriter, r *http.Request) {
	resp := UsageResponse{Orchestrators: make(map[string]OrchestratorUsage)}
	h.registry.Each(func(name string, orch *llm.Orchestrator) {
		ledger := orch.Ledger()
		entry := OrchestratorUsage{
			Provider:    orch.Provider(),
			Model:       orch.Model(),
			Completions: ledger.Completions(),
			TotalTokens: ledger.TotalTokens(),
			TotalCost:   ledger.TotalCost(),
		}
		resp.Orchestrators[name] = entry
		resp.TotalTokens += entry.TotalTokens
		resp.TotalCost += entry.TotalCost
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *Handler) writeCompletionError(w http.ResponseWriter, reqID string, err error) {
	var balErr *types.BalanceError
	var authErr *types.AuthenticationError
	var modelErr *types.ModelError
	var exhausted *types.RetryExhaustedError
	var soErr *types.StructuredOutputError

	switch {
	case errors.As(err, &balErr):
		httputil.WriteBalanceError(w, reqID, balErr.Message)
	case errors.As(err, &exhausted):
		httputil.WriteRetryExhaustedError(w, reqID, err.Error())
	case errors.As(err, &modelErr):
		httputil.WriteModelError(w, reqID, modelErr.Message)
	case errors.As(err, &authErr):
		// Provider credential failures are a service misconfiguration,
		// never the caller's API key.
		httputil.WriteInternalError(w, reqID, "Provider authentication failed")
	case errors.As(err, &soErr):
		httputil.WriteError(w, reqID, http.StatusBadGateway, "server_error", "structured_output_failed",
			"Model did not return valid JSON")
	default:
		httputil.WriteInternalError(w, reqID, err.Error())
	}
}

// report feeds metrics and the spend budget after a call.
func (h *Handler) report(r *http.Request, orch *llm.Orchestrator, req CompletionRequest, result *llm.Result, err error, elapsed time.Duration) {
	org, team := "", ""
	if info, ok := auth.AuthFromContext(r.Context()); ok {
		org, team = info.OrganizationID, info.TeamID
	}

	operation := "completion"
	if req.Stream {
		operation = "stream"
	}
	status := "ok"
	if err != nil {
		status = "error"
	}

	labels := telemetry.CompletionLabels{
		Org:        org,
		Team:       team,
		Provider:   orch.Provider(),
		Model:      orch.Model(),
		Operation:  operation,
		Status:     status,
		DurationMs: float64(elapsed.Milliseconds()),
	}
	if result != nil {
		labels.PromptTokens = result.Usage.PromptTokens
		labels.ResponseTokens = result.Usage.ResponseTokens
		labels.CachedTokens = result.Usage.CachedTokens
		labels.CacheWriteTokens = result.Usage.CacheWriteTokens
		labels.CostUSD = result.Usage.Cost
	}
	if h.metrics != nil {
		h.metrics.RecordCompletion(labels)
	}

	if h.budget != nil && team != "" && result != nil && result.Usage.Cost > 0 {
		if err := h.budget.RecordSpendUSD(r.Context(), team, result.Usage.Cost); err != nil {
			h.logger.Warn("spend recording failed", "team", team, "error", err)
		}
	}
}
