package generation

import "fmt"

const maxRawInError = 300

// MalformedOutputError reports a generation whose output could not be turned into
// the expected shape. Failed or timed-out model calls are reported the same way,
// with an empty Raw and the transport error in Err.
type MalformedOutputError struct {
	Template string
	Shape    Shape
	Raw      string
	Err      error
}

func (e *MalformedOutputError) Error() string {
	raw := e.Raw
	if len(raw) > maxRawInError {
		raw = raw[:maxRawInError] + "..."
	}
	prefix := "generation"
	if e.Template != "" {
		prefix = e.Template
	}
	return fmt.Sprintf("%s: malformed %s output: %v. Response: %s", prefix, e.Shape, e.Err, raw)
}

func (e *MalformedOutputError) Unwrap() error {
	return e.Err
}
