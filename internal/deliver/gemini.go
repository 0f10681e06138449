package deliver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"stockbrief/internal/cache"
	"stockbrief/internal/config"
	"stockbrief/internal/logging"
	"stockbrief/internal/render"
)

// GeminiDeliverer sends the analysis prompt to the Gemini API instead of a
// browser chat page and returns the narrative in the Outcome.
type GeminiDeliverer struct {
	bridge    *cache.Bridge
	model     string
	timeout   time.Duration
	preprompt string

	generate func(ctx context.Context, prompt string) (string, error)
}

// NewGeminiDeliverer creates a Gemini client from the configuration.
func NewGeminiDeliverer(ctx context.Context, cfg config.GeminiConfig, preprompt string, bridge *cache.Bridge) (*GeminiDeliverer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	g := &GeminiDeliverer{
		bridge:    bridge,
		model:     model,
		timeout:   cfg.GetTimeout(),
		preprompt: preprompt,
	}
	g.generate = func(ctx context.Context, prompt string) (string, error) {
		contents := []*genai.Content{
			genai.NewContentFromText(prompt, genai.RoleUser),
		}
		resp, err := client.Models.GenerateContent(ctx, g.model, contents, nil)
		if err != nil {
			return "", fmt.Errorf("GenAI generate failed: %w", err)
		}
		return resp.Text(), nil
	}
	return g, nil
}

// Deliver sends the pending record's prompt and waits for the reply.
func (g *GeminiDeliverer) Deliver(ctx context.Context) (*Outcome, error) {
	log := logging.WithRequestID(logging.CategoryDeliver, uuid.NewString()).WithField("mode", "gemini")
	out := &Outcome{State: StateIdle, Transitions: []State{StateIdle}, URL: "gemini:" + g.model}

	pending, err := g.bridge.LoadPending(ctx)
	if err != nil {
		return g.fail(out, log, err)
	}
	if pending == nil || !pending.Requested {
		return g.fail(out, log, ErrNothingPending)
	}
	out.Stock = pending.Record.StockName
	out.to(StateArmed, log)

	prompt := render.AnalysisPrompt(pending.Record, g.preprompt)
	out.PromptLength = len(prompt)
	out.to(StateFilled, log)

	reqCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	timer := logging.StartTimer(logging.CategoryDeliver, "gemini generate")
	reply, err := g.generate(reqCtx, prompt)
	timer.StopWithThreshold(30 * time.Second)

	if clearErr := g.bridge.MarkDelivered(ctx); clearErr != nil {
		out.Warnings = append(out.Warnings, clearErr.Error())
	}
	if err != nil {
		return g.fail(out, log, err)
	}
	out.Response = strings.TrimSpace(reply)
	out.SubmitSelector = "api"
	out.to(StateSubmitted, log)
	return out, nil
}

func (g *GeminiDeliverer) fail(out *Outcome, log *logging.RequestLogger, err error) (*Outcome, error) {
	log.Error("gemini delivery failed in %s: %v", out.State, err)
	out.to(StateFailed, log)
	return out, err
}
