package extract

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
)

// buildPDF assembles a minimal single-page PDF containing the given text,
// computing xref offsets as it goes.
func buildPDF(text string) []byte {
	var buf bytes.Buffer
	offsets := make([]int, 6)
	buf.WriteString("%PDF-1.4\n")

	writeObj := func(n int, body string) {
		offsets[n] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", n, body)
	}

	writeObj(1, "<< /Type /Catalog /Pages 2 0 R >>")
	writeObj(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	writeObj(3, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] "+
		"/Resources << /Font << /F1 5 0 R >> >> /Contents 4 0 R >>")
	stream := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
	writeObj(4, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream))
	writeObj(5, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")

	xref := buf.Len()
	buf.WriteString("xref\n0 6\n0000000000 65535 f \n")
	for i := 1; i <= 5; i++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size 6 /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", xref)
	return buf.Bytes()
}

func TestExtract(t *testing.T) {
	x := New()
	text, err := x.Extract(buildPDF("Hello"))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.Contains(text, "Hello") {
		t.Fatalf("extracted text %q does not contain %q", text, "Hello")
	}
}

func TestExtractEmptyInput(t *testing.T) {
	x := New()
	_, err := x.Extract(nil)
	var xe *ExtractionError
	if !errors.As(err, &xe) {
		t.Fatalf("expected ExtractionError, got %v", err)
	}
	if xe.Reason != "empty input" {
		t.Fatalf("unexpected reason: %q", xe.Reason)
	}
}

func TestExtractGarbageInput(t *testing.T) {
	x := New()
	_, err := x.Extract([]byte("this is definitely not a pdf"))
	var xe *ExtractionError
	if !errors.As(err, &xe) {
		t.Fatalf("expected ExtractionError, got %v", err)
	}
}

func TestExtractTruncatedPDF(t *testing.T) {
	x := New()
	doc := buildPDF("Hello")
	_, err := x.Extract(doc[:len(doc)/2])
	var xe *ExtractionError
	if !errors.As(err, &xe) {
		t.Fatalf("expected ExtractionError, got %v", err)
	}
}

func TestExtractDeterministic(t *testing.T) {
	x := New()
	doc := buildPDF("Hello")
	first, err := x.Extract(doc)
	if err != nil {
		t.Fatalf("first Extract: %v", err)
	}
	second, err := x.Extract(doc)
	if err != nil {
		t.Fatalf("second Extract: %v", err)
	}
	if first != second {
		t.Fatalf("extraction not deterministic: %q vs %q", first, second)
	}
}
