package main

import (
	"context"
	"fmt"

	"flowattr-lab/internal/domain/models"
	"flowattr-lab/internal/infrastructure/database/repository"
	"flowattr-lab/internal/infrastructure/pcapfile"
	"flowattr-lab/pkg/logger"
)

// recordSink persists imported flow records
type recordSink interface {
	Write(ctx context.Context, records []models.FlowRecord) (int, error)
}

type postgresSink struct {
	repo *repository.FlowRecordRepository
}

func (s postgresSink) Write(ctx context.Context, records []models.FlowRecord) (int, error) {
	n, err := s.repo.InsertBatch(ctx, records)
	return int(n), err
}

type importResult struct {
	Packets int
	Skipped int
	Flows   int
	Written int
}

// importFiles reads every capture and writes its records to sink. A nil sink
// only parses.
func importFiles(ctx context.Context, reader *pcapfile.Reader, sink recordSink, files []string, log *logger.Logger) (importResult, error) {
	var result importResult

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		records, stats, err := reader.ReadFile(path)
		if err != nil {
			return result, fmt.Errorf("read %s: %w", path, err)
		}
		result.Packets += stats.Packets
		result.Skipped += stats.Skipped
		result.Flows += stats.Flows

		written := 0
		if sink != nil && len(records) > 0 {
			written, err = sink.Write(ctx, records)
			if err != nil {
				return result, fmt.Errorf("write %s: %w", path, err)
			}
		}
		result.Written += written

		log.Info().
			Str("file", path).
			Int("packets", stats.Packets).
			Int("skipped", stats.Skipped).
			Int("flows", stats.Flows).
			Int("written", written).
			Msg("capture imported")
	}
	return result, nil
}
