package ingest

import (
	"context"
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var (
	ingestMetricsOnce sync.Once
	ingestUploads     otelmetric.Int64Counter
	ingestFailures    otelmetric.Int64Counter
	ingestDuration    otelmetric.Float64Histogram
)

func initIngestMetrics() {
	meter := otel.Meter("asopd/ingest")
	var err error
	ingestUploads, err = meter.Int64Counter(
		"ingest_uploads_total",
		otelmetric.WithDescription("Uploads that completed the full ingestion pipeline"),
	)
	if err != nil {
		log.Printf("ingest metrics init: ingest_uploads_total: %v", err)
	}
	ingestFailures, err = meter.Int64Counter(
		"ingest_failures_total",
		otelmetric.WithDescription("Ingestion pipeline failures by stage"),
	)
	if err != nil {
		log.Printf("ingest metrics init: ingest_failures_total: %v", err)
	}
	ingestDuration, err = meter.Float64Histogram(
		"ingest_duration_seconds",
		otelmetric.WithDescription("Wall time of successful ingestion pipeline runs"),
		otelmetric.WithUnit("s"),
	)
	if err != nil {
		log.Printf("ingest metrics init: ingest_duration_seconds: %v", err)
	}
}

func recordIngestSuccess(ctx context.Context, seconds float64) {
	ingestMetricsOnce.Do(initIngestMetrics)
	if ingestUploads != nil {
		ingestUploads.Add(ctx, 1)
	}
	if ingestDuration != nil {
		ingestDuration.Record(ctx, seconds)
	}
}

func recordIngestFailure(ctx context.Context, stage Stage) {
	ingestMetricsOnce.Do(initIngestMetrics)
	if ingestFailures != nil {
		ingestFailures.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("stage", string(stage))))
	}
}
