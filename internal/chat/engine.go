// Package chat answers questions over a knowledge index while keeping the
// conversation history of one session.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/jonathan/intbuddy/internal/knowledge"
	"github.com/jonathan/intbuddy/internal/llm"
	"github.com/jonathan/intbuddy/internal/prompts"
	"github.com/jonathan/intbuddy/internal/types"
)

// ErrEmptyQuestion is returned for blank questions.
var ErrEmptyQuestion = errors.New("question is empty")

// Generator is the slice of llm.Client the engine needs.
type Generator interface {
	GenerateContent(ctx context.Context, prompt string, tier llm.ModelTier) (string, error)
}

// Retriever finds chunks relevant to a question.
type Retriever interface {
	Search(ctx context.Context, question string, k int) ([]knowledge.Match, error)
}

// Answer is the reply to one question with the chunks it was grounded on.
type Answer struct {
	Question   string            `json:"question"`
	Standalone string            `json:"standalone_question,omitempty"`
	Text       string            `json:"answer"`
	Sources    []knowledge.Match `json:"sources"`
}

// Engine is a conversational retrieval chain bound to one index.
type Engine struct {
	retriever Retriever
	generator Generator
	topK      int
	logger    *zap.Logger

	mu      sync.Mutex
	history []types.Turn
}

// Option configures an Engine.
type Option func(*Engine)

// WithTopK sets how many chunks are retrieved per question.
func WithTopK(k int) Option {
	return func(e *Engine) {
		if k > 0 {
			e.topK = k
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates an engine with an empty history.
func NewEngine(retriever Retriever, generator Generator, opts ...Option) *Engine {
	e := &Engine{
		retriever: retriever,
		generator: generator,
		topK:      knowledge.DefaultTopK,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Ask answers a question. Follow-ups are first rewritten into a standalone
// question using the history. The turn is appended only on success.
func (e *Engine) Ask(ctx context.Context, question string) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, ErrEmptyQuestion
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ans := Answer{Question: question}
	history := formatHistory(e.history)

	standalone := question
	if len(e.history) > 0 {
		condensed, err := e.condense(ctx, question, history)
		if err != nil {
			return Answer{}, err
		}
		standalone = condensed
		ans.Standalone = condensed
	}

	matches, err := e.retriever.Search(ctx, standalone, e.topK)
	if err != nil {
		return Answer{}, fmt.Errorf("failed to retrieve context: %w", err)
	}
	ans.Sources = matches

	prompt := prompts.Format(prompts.MustGet(prompts.ChatFile, prompts.KeyAnswer), map[string]string{
		"Context":  formatContext(matches),
		"History":  history,
		"Question": question,
	})

	text, err := e.generator.GenerateContent(ctx, prompt, llm.TierStandard)
	if err != nil {
		return Answer{}, fmt.Errorf("failed to generate answer: %w", err)
	}
	ans.Text = strings.TrimSpace(text)

	e.history = append(e.history, types.Turn{Question: question, Answer: ans.Text})
	e.logger.Debug("answered question",
		zap.Int("turn", len(e.history)),
		zap.Int("sources", len(matches)),
		zap.Bool("condensed", ans.Standalone != ""),
	)
	return ans, nil
}

// History returns a copy of the turns so far, oldest first.
func (e *Engine) History() []types.Turn {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]types.Turn, len(e.history))
	copy(out, e.history)
	return out
}

// Reset clears the history.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.history = nil
	e.mu.Unlock()
}

func (e *Engine) condense(ctx context.Context, question, history string) (string, error) {
	prompt := prompts.Format(prompts.MustGet(prompts.ChatFile, prompts.KeyCondenseQuestion), map[string]string{
		"History":  history,
		"Question": question,
	})
	out, err := e.generator.GenerateContent(ctx, prompt, llm.TierLite)
	if err != nil {
		return "", fmt.Errorf("failed to condense question: %w", err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return question, nil
	}
	return out, nil
}

func formatHistory(turns []types.Turn) string {
	if len(turns) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Human: %s\nAssistant: %s", t.Question, t.Answer)
	}
	return b.String()
}

func formatContext(matches []knowledge.Match) string {
	if len(matches) == 0 {
		return "(no matching interview experiences)"
	}
	parts := make([]string, len(matches))
	for i, m := range matches {
		parts[i] = m.Chunk.Text
	}
	return strings.Join(parts, "\n\n")
}
