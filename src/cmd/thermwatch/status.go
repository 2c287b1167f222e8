// FILE: thermwatch/src/cmd/thermwatch/status.go
package main

import (
	"context"
	"time"

	"thermwatch/src/internal/service"
)

const statusInterval = 30 * time.Second

// Periodically logs pipeline status
func statusReporter(ctx context.Context, pipeline *service.Pipeline) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pipeline.Done():
			return
		case <-ticker.C:
			func() {
				defer func() {
					if r := recover(); r != nil {
						logger.Error("msg", "Panic in status reporter",
							"component", "status_reporter",
							"panic", r)
					}
				}()
				logPipelineStatus(pipeline.GetStats())
			}()
		}
	}
}

func logPipelineStatus(stats map[string]any) {
	fields := []any{
		"msg", "Pipeline status",
		"component", "status_reporter",
		"run_id", stats["run_id"],
		"state", stats["state"],
		"lines_read", stats["total_lines_read"],
		"parse_errors", stats["total_parse_errors"],
		"anomalies", stats["total_anomalies"],
	}

	if persist, ok := stats["persist"].(map[string]any); ok {
		fields = append(fields,
			"committed", persist["committed"],
			"committed_local", persist["committed_local"],
			"degraded", persist["degraded"],
			"failed", persist["failed"])
	}
	if stage, ok := stats["stage"].(map[string]any); ok {
		fields = append(fields, "annotations_in_flight", stage["in_flight"])
	}
	if src, ok := stats["source"].(map[string]any); ok {
		if details, ok := src["details"].(map[string]any); ok {
			fields = append(fields,
				"offset", details["offset"],
				"rotations", details["rotations"])
		}
	}

	logger.Debug(fields...)
}
