package generation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"smartfit-coach/internal/llm"
	"smartfit-coach/internal/llm/llmtest"
	"smartfit-coach/internal/prompt"
	"smartfit-coach/internal/shared"
)

type recorder struct {
	metas []shared.AgentMeta
}

func (r *recorder) RecordMeta(meta shared.AgentMeta) error {
	r.metas = append(r.metas, meta)
	return nil
}

type blockingGenerator struct{}

func (blockingGenerator) GenerateContent(ctx context.Context, prompt string) (llm.ContentResponse, error) {
	<-ctx.Done()
	return llm.ContentResponse{}, ctx.Err()
}

func newRenderer(t *testing.T) *prompt.Renderer {
	t.Helper()
	r, err := prompt.NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer failed: %v", err)
	}
	return r
}

func TestPipelineText(t *testing.T) {
	gen := llmtest.New().On("# Goal Classification", "  bodybuilding\n")
	rec := &recorder{}
	p := New(gen, newRenderer(t), WithRecorder(rec))

	text, meta, err := p.Text(context.Background(), Request{
		Template: prompt.GoalCategory,
		Params:   prompt.Params{"Description": "Voglio aumentare la massa muscolare"},
	})
	if err != nil {
		t.Fatalf("Text failed: %v", err)
	}
	if text != "bodybuilding" {
		t.Errorf("expected bodybuilding, got %q", text)
	}
	if meta.AgentName != "goal_category@v1" || meta.InvocationID == "" {
		t.Errorf("unexpected meta %+v", meta)
	}
	if len(rec.metas) != 1 {
		t.Errorf("expected 1 recorded meta, got %d", len(rec.metas))
	}
}

func TestPipelineArrayDecode(t *testing.T) {
	gen := llmtest.New()
	gen.Default = "Certo! Ecco il risultato:\n```json\n[{\"meal\":\"Pasta\",\"keywords\":[\"pasta\"],\"quantity\":80}]\n```"
	p := New(gen, newRenderer(t))

	var meals []struct {
		Meal     string   `json:"meal"`
		Keywords []string `json:"keywords"`
		Quantity float64  `json:"quantity"`
	}
	if _, err := p.Array(context.Background(), Request{
		Template: prompt.MealParsing,
		Params:   prompt.Params{"Description": "80g di pasta"},
	}, &meals); err != nil {
		t.Fatalf("Array failed: %v", err)
	}
	if len(meals) != 1 || meals[0].Meal != "Pasta" || meals[0].Quantity != 80 {
		t.Errorf("unexpected meals %+v", meals)
	}
}

func TestPipelineMalformed(t *testing.T) {
	gen := llmtest.New()
	gen.Default = "I am not able to help with that."
	p := New(gen, newRenderer(t))

	var out []any
	_, err := p.Array(context.Background(), Request{
		Template: prompt.MealParsing,
		Params:   prompt.Params{"Description": "boh"},
	}, &out)

	var malformed *MalformedOutputError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedOutputError, got %v", err)
	}
	if malformed.Template != "meal_parsing@v1" {
		t.Errorf("expected template to be set, got %q", malformed.Template)
	}
	if malformed.Raw != gen.Default {
		t.Errorf("expected raw output to be kept, got %q", malformed.Raw)
	}
}

func TestPipelineNetworkErrorIsMalformed(t *testing.T) {
	gen := llmtest.New().OnError("# Goal Classification", errors.New("groq api error: status=500"))
	p := New(gen, newRenderer(t))

	_, _, err := p.Text(context.Background(), Request{
		Template: prompt.GoalCategory,
		Params:   prompt.Params{"Description": "x"},
	})
	var malformed *MalformedOutputError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedOutputError, got %v", err)
	}
	if !strings.Contains(malformed.Err.Error(), "status=500") {
		t.Errorf("expected the transport error to be wrapped, got %v", malformed.Err)
	}
	if gen.Calls() != 1 {
		t.Errorf("expected exactly one call (no retries), got %d", gen.Calls())
	}
}

func TestPipelineTimeout(t *testing.T) {
	p := New(blockingGenerator{}, newRenderer(t), WithTimeout(20*time.Millisecond))

	start := time.Now()
	_, _, err := p.Number(context.Background(), Request{
		Template: prompt.SuggestedWeight,
		Params:   prompt.Params{"Exercise": "Squat", "Goal": "forza", "History": "-"},
	})
	var malformed *MalformedOutputError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedOutputError, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded cause, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("timeout was not enforced")
	}
}

func TestPipelineMissingParameter(t *testing.T) {
	gen := llmtest.New()
	p := New(gen, newRenderer(t))

	_, _, err := p.Text(context.Background(), Request{Template: prompt.GoalCategory, Params: prompt.Params{}})
	var missing *prompt.MissingParameterError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingParameterError, got %v", err)
	}
	if gen.Calls() != 0 {
		t.Error("model must not be called when rendering fails")
	}
}

func TestPipelineImageNeedsVision(t *testing.T) {
	p := New(blockingGenerator{}, newRenderer(t))
	img := llm.Image{MIMEType: "image/png", Data: []byte("x")}

	_, err := p.Run(context.Background(), Request{
		Template: prompt.MealParsingImage,
		Params:   prompt.Params{"Hint": "", "Language": "Italian"},
		Shape:    ShapeArray,
		Image:    &img,
	})
	if err == nil || !strings.Contains(err.Error(), "does not accept images") {
		t.Fatalf("expected a vision capability error, got %v", err)
	}

	gen := llmtest.New()
	gen.Default = "[]"
	vp := New(gen, newRenderer(t))
	if _, err := vp.Run(context.Background(), Request{
		Template: prompt.MealParsingImage,
		Params:   prompt.Params{"Hint": "", "Language": "Italian"},
		Shape:    ShapeArray,
		Image:    &img,
	}); err != nil {
		t.Fatalf("vision run failed: %v", err)
	}
	if len(gen.Images) != 1 {
		t.Errorf("expected the image to reach the generator")
	}
}
