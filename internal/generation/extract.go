package generation

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Shape is the form of payload a prompt asks the model for.
type Shape string

const (
	ShapeObject Shape = "json_object"
	ShapeArray  Shape = "json_array"
	ShapeNumber Shape = "scalar_number"
	ShapeText   Shape = "scalar_text"
)

// Value is an extracted payload. JSON is set for object and array shapes, Number for
// scalar_number and Text for scalar_text.
type Value struct {
	Shape  Shape
	Raw    string
	JSON   json.RawMessage
	Number float64
	Text   string
}

// Decode unmarshals a JSON payload into dst. A payload that does not fit dst is
// reported as malformed output.
func (v Value) Decode(dst any) error {
	if v.JSON == nil {
		return &MalformedOutputError{Shape: v.Shape, Raw: v.Raw, Err: errors.New("no JSON payload to decode")}
	}
	if err := json.Unmarshal(v.JSON, dst); err != nil {
		return &MalformedOutputError{Shape: v.Shape, Raw: v.Raw, Err: err}
	}
	return nil
}

// Extract pulls the payload of the given shape out of raw model output. JSON
// payloads are located by scanning for the first opening and the last closing
// delimiter so that surrounding prose or code fences are tolerated.
func Extract(raw string, shape Shape) (Value, error) {
	switch shape {
	case ShapeObject:
		return extractJSON(raw, shape, '{', '}')
	case ShapeArray:
		return extractJSON(raw, shape, '[', ']')
	case ShapeNumber:
		text := strings.TrimSpace(raw)
		n, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return Value{}, &MalformedOutputError{Shape: shape, Raw: raw, Err: err}
		}
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return Value{}, &MalformedOutputError{Shape: shape, Raw: raw, Err: errors.New("number is not finite")}
		}
		return Value{Shape: shape, Raw: raw, Number: n}, nil
	case ShapeText:
		return Value{Shape: shape, Raw: raw, Text: strings.TrimSpace(raw)}, nil
	default:
		return Value{}, fmt.Errorf("unknown output shape %q", shape)
	}
}

func extractJSON(raw string, shape Shape, open, close byte) (Value, error) {
	start := strings.IndexByte(raw, open)
	if start == -1 {
		return Value{}, &MalformedOutputError{Shape: shape, Raw: raw, Err: fmt.Errorf("no opening %q", open)}
	}
	end := strings.LastIndexByte(raw, close)
	if end < start {
		return Value{}, &MalformedOutputError{Shape: shape, Raw: raw, Err: fmt.Errorf("no closing %q", close)}
	}

	payload := raw[start : end+1]
	if !json.Valid([]byte(payload)) {
		var probe any
		err := json.Unmarshal([]byte(payload), &probe)
		return Value{}, &MalformedOutputError{Shape: shape, Raw: raw, Err: err}
	}
	return Value{Shape: shape, Raw: raw, JSON: json.RawMessage(payload)}, nil
}
