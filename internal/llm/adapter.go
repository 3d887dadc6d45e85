package llm

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"github.com/yanyan-huang/pmpal/internal/observability"
	"github.com/yanyan-huang/pmpal/internal/protocol"
	"github.com/yanyan-huang/pmpal/internal/reliability"
)

// FailurePrefix starts every user-visible provider failure text.
const FailurePrefix = "❌ Error generating response: "

var errEmptyReply = errors.New("provider returned an empty reply")

// Failure describes a provider call that did not produce a reply.
type Failure struct {
	Kind      reliability.Kind
	Provider  string
	Detail    string
	Retryable bool
}

// Result is the outcome of Generate. Text is always safe to show and to
// store as assistant content; Failure is set when Text is an error notice.
type Result struct {
	Text    string
	Model   string
	Failure *Failure
}

// Adapter is the single entry point the conversation core uses to reach an
// LLM. It never returns an error: provider failures become Results.
type Adapter struct {
	provider Provider
	timeout  time.Duration
	metrics  *observability.Metrics
}

func NewAdapter(provider Provider, timeout time.Duration, metrics *observability.Metrics) *Adapter {
	return &Adapter{provider: provider, timeout: timeout, metrics: metrics}
}

func (a *Adapter) ProviderName() string { return a.provider.Name() }

// ResolveModel returns model, or the provider default when model is empty.
func (a *Adapter) ResolveModel(model string) string {
	return firstNonEmpty(model, a.provider.DefaultModel())
}

// Generate sends the full turn list to the provider and normalizes the
// reply. The caller's turns are not modified.
func (a *Adapter) Generate(ctx context.Context, turns []protocol.Turn, model string) Result {
	model = a.ResolveModel(model)
	callCtx := ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	started := time.Now()
	text, err := a.provider.Complete(callCtx, protocol.CloneTurns(turns), model)
	text = strings.TrimSpace(text)
	if err == nil && text == "" {
		err = errEmptyReply
	}

	if err == nil {
		a.metrics.ObserveProvider(a.provider.Name(), "", time.Since(started))
		return Result{Text: text, Model: model}
	}

	status := statusCode(err)
	kind := reliability.Classify(err, status)
	if errors.Is(err, errEmptyReply) {
		kind = reliability.KindEmpty
	}
	a.metrics.ObserveProvider(a.provider.Name(), string(kind), time.Since(started))
	observability.LoggerFromContext(ctx).Warn("llm provider call failed",
		"provider", a.provider.Name(),
		"model", model,
		"kind", kind,
		"status", status,
		"error", err,
	)

	detail := failureDetail(kind, err)
	return Result{
		Text:  FailurePrefix + detail,
		Model: model,
		Failure: &Failure{
			Kind:      kind,
			Provider:  a.provider.Name(),
			Detail:    detail,
			Retryable: kind.Retryable() || reliability.IsRetryableHTTPStatus(status),
		},
	}
}

func failureDetail(kind reliability.Kind, err error) string {
	switch kind {
	case reliability.KindTimeout:
		return "the model took too long to answer, please try again."
	case reliability.KindRateLimited:
		return "the model is busy right now, please try again in a moment."
	case reliability.KindEmpty:
		return "the model returned an empty answer."
	}
	return clipRunes(strings.TrimSpace(err.Error()), maxFailureDetailRunes)
}

const maxFailureDetailRunes = 300

// clipRunes shortens s to at most n runes, appending "..." when it cuts.
// Invalid bytes are replaced so the result is always valid UTF-8.
func clipRunes(s string, n int) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

// statusCode extracts the upstream HTTP status from SDK error types.
func statusCode(err error) int {
	var oaAPI *openai.APIError
	if errors.As(err, &oaAPI) {
		return oaAPI.HTTPStatusCode
	}
	var oaReq *openai.RequestError
	if errors.As(err, &oaReq) {
		return oaReq.HTTPStatusCode
	}
	var claudeErr *anthropic.Error
	if errors.As(err, &claudeErr) {
		return claudeErr.StatusCode
	}
	var geminiErr genai.APIError
	if errors.As(err, &geminiErr) {
		return geminiErr.Code
	}
	var geminiErrPtr *genai.APIError
	if errors.As(err, &geminiErrPtr) {
		return geminiErrPtr.Code
	}
	var httpErr *StatusError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}
