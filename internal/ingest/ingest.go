package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/actuarial-tools/asopd/internal/store"
	"github.com/actuarial-tools/asopd/provider"
)

// Stage identifies where in the pipeline an ingestion failed.
type Stage string

const (
	StageExtracting Stage = "extracting"
	StageAnalyzing  Stage = "analyzing"
	StagePersisting Stage = "persisting"
)

// ErrInputTooLarge is returned when the extracted text exceeds the configured
// input cap and the oversize effect is reject.
var ErrInputTooLarge = errors.New("extracted text exceeds max input length")

// Extractor converts PDF bytes into plain text.
type Extractor interface {
	Extract(data []byte) (string, error)
}

// RecordStore persists completed upload outcomes.
type RecordStore interface {
	InsertUpload(ctx context.Context, filename, extractedText, analysis string) (store.UploadRecord, error)
}

// Ingestor runs the upload pipeline: extract, analyze, persist. One
// sequential flow per call; a record is written only after both extraction
// and analysis succeed.
type Ingestor struct {
	Extractor Extractor
	LLM       provider.Provider
	Store     RecordStore

	// MaxInputLength caps the text handed to the analysis provider.
	// Zero disables the cap. OversizeEffect is "truncate" or "reject".
	MaxInputLength int
	OversizeEffect string

	// ArchiveDir, when set, receives a copy of each successfully ingested
	// PDF. Archival is best-effort; the database row is the durable record.
	ArchiveDir string

	Logger *log.Logger
}

// Ingest processes one uploaded file through the pipeline and returns the
// persisted record. Stage failures short-circuit and persist nothing.
func (ing *Ingestor) Ingest(ctx context.Context, filename string, data []byte) (store.UploadRecord, error) {
	start := time.Now()

	text, err := ing.Extractor.Extract(data)
	if err != nil {
		recordIngestFailure(ctx, StageExtracting)
		ing.logf("extraction failed for %q: %v", filename, err)
		return store.UploadRecord{}, err
	}

	// The cap applies to the analysis input only; the persisted record keeps
	// the full extraction output.
	analysisInput, err := ing.capInput(text)
	if err != nil {
		recordIngestFailure(ctx, StageAnalyzing)
		return store.UploadRecord{}, err
	}

	analysis, err := ing.LLM.AnalyzeCompliance(ctx, analysisInput)
	if err != nil {
		recordIngestFailure(ctx, StageAnalyzing)
		ing.logf("analysis failed for %q: %v", filename, err)
		return store.UploadRecord{}, err
	}

	// If the caller went away, skip the write. The completed LLM call is not
	// undone; a billed call with no stored record is an accepted risk.
	if err := ctx.Err(); err != nil {
		recordIngestFailure(ctx, StagePersisting)
		return store.UploadRecord{}, err
	}

	rec, err := ing.Store.InsertUpload(ctx, filename, text, analysis)
	if err != nil {
		recordIngestFailure(ctx, StagePersisting)
		ing.logf("persist failed for %q: %v", filename, err)
		return store.UploadRecord{}, err
	}

	recordIngestSuccess(ctx, time.Since(start).Seconds())
	ing.archive(filename, data, rec.ID)
	return rec, nil
}

func (ing *Ingestor) capInput(text string) (string, error) {
	if ing.MaxInputLength <= 0 || len(text) <= ing.MaxInputLength {
		return text, nil
	}
	if ing.OversizeEffect == "reject" {
		return "", fmt.Errorf("%w (%d > %d)", ErrInputTooLarge, len(text), ing.MaxInputLength)
	}
	return strings.ToValidUTF8(text[:ing.MaxInputLength], ""), nil
}

func (ing *Ingestor) archive(filename string, data []byte, id int64) {
	if ing.ArchiveDir == "" {
		return
	}
	if err := os.MkdirAll(ing.ArchiveDir, 0o755); err != nil {
		ing.logf("archive dir for upload %d: %v", id, err)
		return
	}
	name := fmt.Sprintf("%s_%s_%s",
		time.Now().Format("20060102_150405"),
		uuid.NewString()[:8],
		filepath.Base(filename))
	if err := os.WriteFile(filepath.Join(ing.ArchiveDir, name), data, 0o644); err != nil {
		ing.logf("archive write for upload %d: %v", id, err)
	}
}

func (ing *Ingestor) logf(format string, args ...interface{}) {
	if ing.Logger != nil {
		ing.Logger.Printf(format, args...)
	}
}
