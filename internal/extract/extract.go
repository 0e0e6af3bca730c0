package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ExtractionError reports a failed PDF text extraction. Extraction is
// deterministic for the same bytes, so these are never retried.
type ExtractionError struct {
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract: %s: %v", e.Reason, e.Err)
	}
	return "extract: " + e.Reason
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Extractor converts PDF bytes into plain text.
type Extractor struct{}

func New() *Extractor { return &Extractor{} }

// Extract parses the given PDF bytes and returns the concatenated text of
// all pages. It fails when the bytes are not a parseable PDF or the document
// has no extractable text layer.
func (x *Extractor) Extract(data []byte) (text string, err error) {
	if len(data) == 0 {
		return "", &ExtractionError{Reason: "empty input"}
	}
	// The pdf package panics on some malformed documents; turn those into
	// extraction errors instead of crashing the request.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = &ExtractionError{Reason: "malformed pdf", Err: fmt.Errorf("%v", r)}
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &ExtractionError{Reason: "unparseable pdf", Err: err}
	}

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		pageText, err := p.GetPlainText(nil)
		if err != nil {
			return "", &ExtractionError{Reason: fmt.Sprintf("page %d", i), Err: err}
		}
		sb.WriteString(pageText)
		sb.WriteString("\n")
	}

	out := sb.String()
	if strings.TrimSpace(out) == "" {
		return "", &ExtractionError{Reason: "no extractable text layer"}
	}
	return out, nil
}
