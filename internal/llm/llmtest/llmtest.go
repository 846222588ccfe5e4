// Package llmtest provides a scripted generator for tests.
package llmtest

import (
	"context"
	"strings"

	"smartfit-coach/internal/llm"
	"smartfit-coach/internal/shared"
)

type rule struct {
	contains string
	response string
	err      error
}

// Generator answers prompts from a list of substring rules, first match wins.
// Unmatched prompts get Default.
type Generator struct {
	rules   []rule
	Default string
	Prompts []string
	Images  []llm.Image
}

// New returns an empty Generator.
func New() *Generator {
	return &Generator{}
}

// On answers prompts containing substr with response.
func (g *Generator) On(substr, response string) *Generator {
	g.rules = append(g.rules, rule{contains: substr, response: response})
	return g
}

// OnError fails prompts containing substr with err.
func (g *Generator) OnError(substr string, err error) *Generator {
	g.rules = append(g.rules, rule{contains: substr, err: err})
	return g
}

func (g *Generator) GenerateContent(ctx context.Context, prompt string) (llm.ContentResponse, error) {
	g.Prompts = append(g.Prompts, prompt)
	if err := ctx.Err(); err != nil {
		return llm.ContentResponse{}, err
	}

	usage := shared.TokenUsage{PromptTokens: len(prompt) / 4, CompletionTokens: 1, TotalTokens: len(prompt)/4 + 1, Model: "fake"}
	for _, r := range g.rules {
		if strings.Contains(prompt, r.contains) {
			if r.err != nil {
				return llm.ContentResponse{}, r.err
			}
			return llm.ContentResponse{Content: r.response, Usage: usage}, nil
		}
	}
	return llm.ContentResponse{Content: g.Default, Usage: usage}, nil
}

func (g *Generator) GenerateContentWithImage(ctx context.Context, prompt string, image llm.Image) (llm.ContentResponse, error) {
	g.Images = append(g.Images, image)
	return g.GenerateContent(ctx, prompt)
}

// Calls returns how many prompts were received.
func (g *Generator) Calls() int {
	return len(g.Prompts)
}

// CallsContaining counts received prompts that contain substr.
func (g *Generator) CallsContaining(substr string) int {
	n := 0
	for _, p := range g.Prompts {
		if strings.Contains(p, substr) {
			n++
		}
	}
	return n
}

// Reset drops every rule. Received prompts are kept.
func (g *Generator) Reset() {
	g.rules = nil
}
