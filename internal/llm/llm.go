package llm

import (
	"context"
	"encoding/base64"
	"net/http"

	"smartfit-coach/internal/shared"
)

// ContentResponse contains the generated text and metadata like token usage.
// Content is empty when the model produced nothing.
type ContentResponse struct {
	Content string
	Usage   shared.TokenUsage
}

// Image is a single picture attached to a vision request.
type Image struct {
	MIMEType string
	Data     []byte
}

// NewImage wraps raw bytes, sniffing the MIME type when none is given.
func NewImage(data []byte, mimeType string) Image {
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}
	return Image{MIMEType: mimeType, Data: data}
}

// DataURI encodes the image as data:<mime>;base64,<payload>.
func (i Image) DataURI() string {
	return "data:" + i.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// TextGenerator is an interface for generating text from a prompt.
type TextGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (ContentResponse, error)
}

// VisionGenerator can also answer a prompt about one attached image.
type VisionGenerator interface {
	TextGenerator
	GenerateContentWithImage(ctx context.Context, prompt string, image Image) (ContentResponse, error)
}

// Closer is an interface for closing resources.
type Closer interface {
	Close() error
}
