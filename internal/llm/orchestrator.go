package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/af-corp/conduit/internal/adapters"
	"github.com/af-corp/conduit/internal/config"
	"github.com/af-corp/conduit/internal/observability"
	"github.com/af-corp/conduit/internal/pricing"
	"github.com/af-corp/conduit/internal/types"
	"github.com/af-corp/conduit/internal/usage"
)

const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"
)

// Request is one completion call.
type Request struct {
	System  string
	History []types.Message
	Prompt  string
	Images  []string

	// Prefix primes the assistant's reply; the response continues from it.
	Prefix string

	// JSONOutput parses the reply as a JSON value after fence stripping.
	JSONOutput bool

	// Caller identity for operation records.
	AgentID  string
	ActionID string
}

// Result is the outcome of one completion call. JSON is set only for
// JSONOutput requests.
type Result struct {
	Text      string
	JSON      json.RawMessage
	ToolCalls []types.ToolCall
	Usage     usage.CompletionUsage
}

// Handler receives visible text chunks as they stream. Returning an
// error aborts the stream.
type Handler func(chunk string) error

// Orchestrator drives completion calls against one configured backend,
// optionally chaining a reasoner backend whose output primes the main
// call. Safe for concurrent use; calls sharing an orchestrator share its
// ledger.
type Orchestrator struct {
	cfg       config.ProviderConfig
	adapter   adapters.Adapter
	reasoner  *Orchestrator
	ledger    *usage.Ledger
	retry     RetryPolicy
	collector *observability.Collector
	logger    *slog.Logger

	mu          sync.Mutex
	sessionID   string
	workspaceID string
}

// Option configures an Orchestrator at construction.
type Option func(*options)

type options struct {
	client    *http.Client
	retry     *RetryPolicy
	pricing   *pricing.Config
	collector *observability.Collector
	logger    *slog.Logger
	workspace string
}

func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.client = client }
}

func WithRetryPolicy(policy RetryPolicy) Option {
	return func(o *options) { o.retry = &policy }
}

// WithPricing attaches a pricing configuration; completion costs are
// computed from it at ledger aggregation time.
func WithPricing(cfg pricing.Config) Option {
	return func(o *options) { o.pricing = &cfg }
}

func WithCollector(c *observability.Collector) Option {
	return func(o *options) { o.collector = c }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithWorkspace(id string) Option {
	return func(o *options) { o.workspace = id }
}

// New builds an orchestrator for cfg. A nested reasoner config yields a
// chained reasoner orchestrator with its own ledger and retry state.
func New(cfg config.ProviderConfig, opts ...Option) (*Orchestrator, error) {
	normalized, err := config.NewProviderConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("provider config: %w", err)
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.client == nil {
		o.client = &http.Client{Timeout: 5 * time.Minute}
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	adapter, err := adapters.New(normalized, o.client)
	if err != nil {
		return nil, err
	}

	ledger := usage.NewLedger()
	if o.pricing != nil {
		ledger = usage.NewLedgerWithPricing(*o.pricing)
	} else if cfg, ok := pricing.DefaultTable().Lookup(normalized.Provider, normalized.Model); ok {
		ledger = usage.NewLedgerWithPricing(cfg)
	}

	retry := DefaultRetryPolicy()
	if o.retry != nil {
		retry = *o.retry
	}
	if retry.Logger == nil {
		retry.Logger = o.logger
	}
	retry.provider = normalized.Provider
	retry.model = normalized.Model

	orch := &Orchestrator{
		cfg:         normalized,
		adapter:     adapter,
		ledger:      ledger,
		retry:       retry,
		collector:   o.collector,
		logger:      o.logger,
		workspaceID: o.workspace,
	}

	if normalized.Reasoner != nil {
		reasonerCfg := *normalized.Reasoner
		reasoner, err := New(reasonerCfg,
			WithHTTPClient(o.client),
			WithRetryPolicy(retry),
			WithCollector(o.collector),
			WithLogger(o.logger),
		)
		if err != nil {
			return nil, fmt.Errorf("reasoner: %w", err)
		}
		orch.reasoner = reasoner
	}
	return orch, nil
}

// Provider returns the backend provider id.
func (o *Orchestrator) Provider() string { return o.cfg.Provider }

// Model returns the configured model.
func (o *Orchestrator) Model() string { return o.cfg.Model }

// Ledger exposes the accounting ledger for this orchestrator.
func (o *Orchestrator) Ledger() *usage.Ledger { return o.ledger }

// SessionID returns the lazily minted session identifier.
func (o *Orchestrator) SessionID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sessionID == "" {
		o.sessionID = uuid.NewString()
	}
	return o.sessionID
}

// WorkspaceID returns the lazily minted workspace identifier.
func (o *Orchestrator) WorkspaceID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.workspaceID == "" {
		o.workspaceID = uuid.NewString()
	}
	return o.workspaceID
}

func (o *Orchestrator) adoptSession(sessionID, workspaceID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sessionID = sessionID
	o.workspaceID = workspaceID
}

// Verify probes the backend credentials without running a completion.
func (o *Orchestrator) Verify(ctx context.Context) error {
	return o.adapter.Verify(ctx)
}

// CountTokens estimates the token size of text under the configured model.
func (o *Orchestrator) CountTokens(ctx context.Context, text string) (int, error) {
	return o.adapter.CountTokens(ctx, text)
}

// Complete runs a blocking completion call.
func (o *Orchestrator) Complete(ctx context.Context, req Request) (*Result, error) {
	return o.run(ctx, req, nil, "", "completion")
}

// CompleteStream runs a streaming completion call, forwarding visible
// text to handler as it arrives. The returned result is identical to
// what Complete would produce for the same input.
func (o *Orchestrator) CompleteStream(ctx context.Context, req Request, handler Handler) (*Result, error) {
	if handler == nil {
		return nil, errors.New("nil stream handler")
	}
	return o.run(ctx, req, handler, "", "stream")
}

func (o *Orchestrator) run(ctx context.Context, req Request, handler Handler, stop, operation string) (*Result, error) {
	start := time.Now()

	prefix := req.Prefix
	if o.reasoner != nil {
		reasoning, err := o.runReasoner(ctx, req, handler)
		if err != nil {
			o.record(ctx, req, operation, start, nil, err)
			return nil, fmt.Errorf("reasoner call: %w", err)
		}
		if prefix != "" {
			prefix = reasoning + "\n" + prefix
		} else {
			prefix = reasoning
		}
	}

	messages := o.assemble(req, prefix)

	var result *Result
	var err error
	if handler != nil {
		result, err = o.stream(ctx, messages, prefix, stop, handler)
	} else {
		result, err = o.blocking(ctx, messages, prefix, stop)
	}
	if err != nil {
		o.record(ctx, req, operation, start, nil, err)
		return nil, err
	}

	if latest, ok := o.ledger.LatestCompletion(); ok {
		result.Usage = latest
	}

	if req.JSONOutput {
		raw, jsonErr := DecodeJSONOutput(result.Text)
		if jsonErr != nil {
			o.record(ctx, req, operation, start, result, jsonErr)
			return nil, jsonErr
		}
		result.JSON = raw
	}
	o.record(ctx, req, operation, start, result, nil)

	o.logger.Info("completion finished",
		"provider", o.cfg.Provider,
		"model", o.cfg.Model,
		"operation", operation,
		"completion_id", result.Usage.CompletionID,
		"prompt_tokens", result.Usage.PromptTokens,
		"response_tokens", result.Usage.ResponseTokens,
		"cost", result.Usage.Cost,
		"latency_ms", time.Since(start).Milliseconds())
	return result, nil
}

// runReasoner executes the chained reasoner strictly before the main
// call and returns its output wrapped in think markers, ready to prime
// the assistant reply.
func (o *Orchestrator) runReasoner(ctx context.Context, req Request, handler Handler) (string, error) {
	o.reasoner.adoptSession(o.SessionID(), o.WorkspaceID())

	reasonerReq := Request{
		System:   req.System,
		History:  req.History,
		Prompt:   req.Prompt,
		AgentID:  req.AgentID,
		ActionID: req.ActionID,
	}

	var reasonerHandler Handler
	if handler != nil {
		if err := handler(thinkOpen + "\n"); err != nil {
			return "", err
		}
		reasonerHandler = handler
	}

	res, err := o.reasoner.run(ctx, reasonerReq, reasonerHandler, thinkClose, "reasoning")
	if err != nil {
		return "", err
	}

	if handler != nil {
		if err := handler("\n" + thinkClose + "\n"); err != nil {
			return "", err
		}
	}

	thinking := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(res.Text), thinkClose))
	return thinkOpen + "\n" + thinking + "\n" + thinkClose, nil
}

func (o *Orchestrator) assemble(req Request, prefix string) []types.Message {
	var messages []types.Message
	if req.System != "" {
		messages = append(messages, types.SystemMessage(req.System))
	}
	messages = append(messages, req.History...)
	if req.Prompt != "" || len(req.Images) > 0 {
		messages = append(messages, types.UserMessage(req.Prompt, req.Images...))
	}
	if prefix != "" {
		messages = append(messages, types.AssistantPrefix(prefix))
	}
	return messages
}

func (o *Orchestrator) blocking(ctx context.Context, messages []types.Message, prefix, stop string) (*Result, error) {
	params := adapters.Params{Messages: messages, Stop: stop}

	var resp *http.Response
	err := o.retry.Do(ctx, func() error {
		httpReq, err := o.adapter.Prepare(ctx, &params)
		if err != nil {
			return err
		}
		r, err := o.adapter.Invoke(httpReq)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	completion, err := o.adapter.ParseResponse(resp)
	if err != nil {
		return nil, err
	}

	text := completion.Text
	if prefix != "" && o.adapter.EchoesPrefix() {
		text = strings.TrimPrefix(text, prefix)
	}
	if completion.Usage != nil {
		u := completion.Usage
		o.ledger.RecordCompletion(u.PromptTokens, u.ResponseTokens, u.CachedTokens, u.CacheWriteTokens, u.CompletionID)
	}
	return &Result{Text: text, ToolCalls: completion.ToolCalls}, nil
}

func (o *Orchestrator) stream(ctx context.Context, messages []types.Message, prefix, stop string, handler Handler) (*Result, error) {
	params := adapters.Params{Messages: messages, Stream: true, Stop: stop}

	var resp *http.Response
	err := o.retry.Do(ctx, func() error {
		httpReq, err := o.adapter.Prepare(ctx, &params)
		if err != nil {
			return err
		}
		r, err := o.adapter.Invoke(httpReq)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	suppress := ""
	if prefix != "" && o.adapter.EchoesPrefix() {
		suppress = prefix
	}
	agg := NewAggregator(suppress, func(chunk string) error { return handler(chunk) })

	reader := adapters.NewSSEReader(resp.Body)
	for {
		payload, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read stream: %w", err)
		}
		ev, err := o.adapter.Normalize(payload)
		if err != nil {
			return nil, err
		}
		if err := agg.Consume(ev); err != nil {
			return nil, err
		}
	}

	folded, err := agg.Finish()
	if err != nil {
		return nil, err
	}
	for _, u := range folded.Usage {
		o.ledger.RecordCompletion(u.PromptTokens, u.ResponseTokens, u.CachedTokens, u.CacheWriteTokens, u.CompletionID)
	}
	return &Result{Text: folded.Text, ToolCalls: folded.ToolCalls}, nil
}

func (o *Orchestrator) record(ctx context.Context, req Request, operation string, start time.Time, result *Result, callErr error) {
	rec := observability.OperationRecord{
		SessionID:   o.SessionID(),
		WorkspaceID: o.WorkspaceID(),
		AgentID:     req.AgentID,
		ActionID:    req.ActionID,
		Provider:    o.cfg.Provider,
		Model:       o.cfg.Model,
		Operation:   operation,
		LatencyMS:   time.Since(start).Milliseconds(),
		Success:     callErr == nil,
	}
	if callErr != nil {
		rec.ErrorMessage = callErr.Error()
	}
	if result != nil {
		rec.CompletionID = result.Usage.CompletionID
		rec.PromptTokens = result.Usage.PromptTokens
		rec.ResponseTokens = result.Usage.ResponseTokens
		rec.CachedTokens = result.Usage.CachedTokens
		rec.CacheWriteTokens = result.Usage.CacheWriteTokens
		rec.Cost = result.Usage.Cost
	} else if latest, ok := o.ledger.LatestCompletion(); ok {
		rec.CompletionID = latest.CompletionID
		rec.PromptTokens = latest.PromptTokens
		rec.ResponseTokens = latest.ResponseTokens
		rec.CachedTokens = latest.CachedTokens
		rec.CacheWriteTokens = latest.CacheWriteTokens
		rec.Cost = latest.Cost
	}
	o.collector.Record(ctx, rec)
}
