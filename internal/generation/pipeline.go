package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"smartfit-coach/internal/llm"
	"smartfit-coach/internal/prompt"
	"smartfit-coach/internal/shared"

	"github.com/google/uuid"
)

// Request describes one generation: which template to render with which
// parameters, the expected output shape and an optional image.
type Request struct {
	Template string
	Params   prompt.Params
	Shape    Shape
	Image    *llm.Image
}

// Result is the extracted value plus execution metadata.
type Result struct {
	Value Value
	Meta  shared.AgentMeta
}

// Recorder persists execution metadata.
type Recorder interface {
	RecordMeta(meta shared.AgentMeta) error
}

// Pipeline runs render, model call and extraction for a single generator. It holds
// no per-request state and is safe for concurrent use.
type Pipeline struct {
	gen      llm.TextGenerator
	renderer *prompt.Renderer
	timeout  time.Duration
	recorder Recorder
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTimeout bounds every model call.
func WithTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.timeout = d }
}

// WithRecorder stores metadata of every call that reached the model.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// New creates a Pipeline.
func New(gen llm.TextGenerator, renderer *prompt.Renderer, opts ...Option) *Pipeline {
	p := &Pipeline{gen: gen, renderer: renderer}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes one request. It never retries: a failed call, a timeout or an
// unparsable answer all return a *MalformedOutputError.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	rendered, err := p.renderer.Render(req.Template, req.Params)
	if err != nil {
		return Result{}, err
	}

	var vision llm.VisionGenerator
	if req.Image != nil {
		v, ok := p.gen.(llm.VisionGenerator)
		if !ok {
			return Result{}, fmt.Errorf("%s: generator does not accept images", rendered.ID())
		}
		vision = v
	}

	callCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	invocationID := uuid.NewString()
	start := time.Now()

	var resp llm.ContentResponse
	if vision != nil {
		resp, err = vision.GenerateContentWithImage(callCtx, rendered.Text, *req.Image)
	} else {
		resp, err = p.gen.GenerateContent(callCtx, rendered.Text)
	}

	meta := shared.AgentMeta{
		AgentName:    rendered.ID(),
		InvocationID: invocationID,
		Usage:        resp.Usage,
		Latency:      time.Since(start),
	}
	p.record(meta)

	if err != nil {
		slog.Warn("generation call failed",
			"template", rendered.ID(), "invocation", invocationID, "latency", meta.Latency, "error", err)
		return Result{Meta: meta}, &MalformedOutputError{Template: rendered.ID(), Shape: req.Shape, Err: err}
	}

	value, err := Extract(resp.Content, req.Shape)
	if err != nil {
		var malformed *MalformedOutputError
		if errors.As(err, &malformed) {
			malformed.Template = rendered.ID()
		}
		slog.Warn("generation output rejected",
			"template", rendered.ID(), "invocation", invocationID, "shape", req.Shape, "error", err)
		return Result{Meta: meta}, err
	}

	slog.Debug("generation completed",
		"template", rendered.ID(), "invocation", invocationID, "latency", meta.Latency,
		"prompt_tokens", meta.Usage.PromptTokens, "completion_tokens", meta.Usage.CompletionTokens)

	return Result{Value: value, Meta: meta}, nil
}

// Object runs req expecting a JSON object and decodes it into dst.
func (p *Pipeline) Object(ctx context.Context, req Request, dst any) (shared.AgentMeta, error) {
	req.Shape = ShapeObject
	return p.decode(ctx, req, dst)
}

// Array runs req expecting a JSON array and decodes it into dst.
func (p *Pipeline) Array(ctx context.Context, req Request, dst any) (shared.AgentMeta, error) {
	req.Shape = ShapeArray
	return p.decode(ctx, req, dst)
}

// Number runs req expecting a bare number.
func (p *Pipeline) Number(ctx context.Context, req Request) (float64, shared.AgentMeta, error) {
	req.Shape = ShapeNumber
	res, err := p.Run(ctx, req)
	return res.Value.Number, res.Meta, err
}

// Text runs req expecting free text; the result is trimmed.
func (p *Pipeline) Text(ctx context.Context, req Request) (string, shared.AgentMeta, error) {
	req.Shape = ShapeText
	res, err := p.Run(ctx, req)
	return res.Value.Text, res.Meta, err
}

func (p *Pipeline) decode(ctx context.Context, req Request, dst any) (shared.AgentMeta, error) {
	res, err := p.Run(ctx, req)
	if err != nil {
		return res.Meta, err
	}
	if err := res.Value.Decode(dst); err != nil {
		var malformed *MalformedOutputError
		if errors.As(err, &malformed) {
			malformed.Template = res.Meta.AgentName
		}
		return res.Meta, err
	}
	return res.Meta, nil
}

func (p *Pipeline) record(meta shared.AgentMeta) {
	if p.recorder == nil {
		return
	}
	if err := p.recorder.RecordMeta(meta); err != nil {
		slog.Error("recording generation metrics", "template", meta.AgentName, "error", err)
	}
}

// Pipelines groups the pipelines of each generator role.
type Pipelines struct {
	// Precise runs deterministic extraction and selection at temperature 0.
	Precise *Pipeline
	// Creative runs open-ended generation.
	Creative *Pipeline
	// Vision accepts image requests.
	Vision *Pipeline
}
