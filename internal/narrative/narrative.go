// Package narrative asks a generative model for the day's short note.
package narrative

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// Status values recorded in the AI log.
const (
	StatusSuccess = "Success"
	StatusError   = "AI Error"
	StatusSkipped = "Skipped"
)

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (text, model string, err error)
}

// Advice is the note plus how it was obtained.
type Advice struct {
	Text   string
	Status string
	Model  string
	Err    error
}

// Advise calls gen once and never fails: a missing generator or an error
// yields the fallback text with the matching status.
func Advise(ctx context.Context, gen Generator, prompt, fallback string) Advice {
	if gen == nil {
		return Advice{Text: fallback, Status: StatusSkipped}
	}
	text, model, err := gen.Generate(ctx, prompt)
	if err != nil {
		return Advice{Text: fallback, Status: StatusError, Err: err}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Advice{Text: fallback, Status: StatusError, Model: model, Err: errors.New("empty response")}
	}
	return Advice{Text: text, Status: StatusSuccess, Model: model}
}

// LogText is what goes in the AI log message column.
func (a Advice) LogText() string {
	if a.Status != StatusError || a.Err == nil {
		return a.Text
	}
	msg := a.Err.Error()
	if r := []rune(msg); len(r) > 60 {
		msg = string(r[:60])
	}
	return "AI Error: " + msg
}

// Gemini calls the Gemini API, trying each configured model in order.
type Gemini struct {
	client  *genai.Client
	models  []string
	timeout time.Duration
	log     *zap.Logger
}

type Option func(*Gemini)

// WithTimeout bounds each model call. Zero keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(g *Gemini) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(g *Gemini) { g.log = l }
}

func NewGemini(ctx context.Context, apiKey string, models []string, baseURL string, opts ...Option) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if len(models) == 0 {
		return nil, fmt.Errorf("at least one model is required")
	}
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	g := &Gemini{client: client, models: models, timeout: 30 * time.Second, log: zap.NewNop()}
	for _, o := range opts {
		o(g)
	}
	return g, nil
}

// Generate returns the first model's answer that is not an error.
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, string, error) {
	var errs []error
	for _, model := range g.models {
		text, err := g.generate(ctx, model, prompt)
		if err == nil {
			return text, model, nil
		}
		g.log.Warn("model failed, trying next", zap.String("model", model), zap.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", model, err))
		if ctx.Err() != nil {
			break
		}
	}
	return "", "", errors.Join(errs...)
}

func (g *Gemini) generate(ctx context.Context, model, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("no text in response")
	}
	return text, nil
}
