package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"journalread/config"
	"journalread/internal/dto"
	"journalread/internal/elasticsearch"
	"journalread/internal/kafka"
	"journalread/internal/metrics"
	"journalread/internal/model"
	"journalread/internal/timescaledb"
)

// SourcedRecord is a record together with the export file it was read from.
type SourcedRecord struct {
	Path   string
	Record *model.LogRecord
}

// RecordSink ships batches of records to an external store. Any error it
// returns ends the forwarding run.
type RecordSink interface {
	Name() string
	Write(ctx context.Context, batch []SourcedRecord) error
}

type ForwardStats struct {
	Read     ReadStats
	Batches  int
	Shipped  int
	Duration time.Duration
}

type ForwardService interface {
	Forward(ctx context.Context, paths []string, spec dto.FilterSpec) (ForwardStats, error)
}

type forwardService struct {
	reader    JournalReaderService
	sink      RecordSink
	batchSize int
	maxWait   time.Duration
}

func NewForwardService(cfg *config.Config, reader JournalReaderService, sink RecordSink) ForwardService {
	batchSize := cfg.Forward.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}
	return &forwardService{
		reader:    reader,
		sink:      sink,
		batchSize: batchSize,
		maxWait:   cfg.Forward.MaxBatchWait,
	}
}

func (s *forwardService) Forward(ctx context.Context, paths []string, spec dto.FilterSpec) (ForwardStats, error) {
	log.Info().Str("sink", s.sink.Name()).Int("file_count", len(paths)).Msg("Starting record forwarding")
	startTime := time.Now()

	var stats ForwardStats
	batch := make([]SourcedRecord, 0, s.batchSize)
	var batchStart time.Time
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.sink.Write(ctx, batch); err != nil {
			return fmt.Errorf("%s sink: %w", s.sink.Name(), err)
		}
		stats.Batches++
		stats.Shipped += len(batch)
		batch = make([]SourcedRecord, 0, s.batchSize)
		return nil
	}

	readStats, err := s.reader.Stream(ctx, paths, spec, func(path string, rec *model.LogRecord) error {
		if len(batch) == 0 {
			batchStart = time.Now()
		}
		batch = append(batch, SourcedRecord{Path: path, Record: rec})
		// A batch older than maxWait ships early so slow inputs still reach
		// the sink.
		if len(batch) >= s.batchSize || (s.maxWait > 0 && time.Since(batchStart) >= s.maxWait) {
			return flush()
		}
		return nil
	})
	stats.Read = readStats
	if err != nil {
		return stats, err
	}
	if err := flush(); err != nil {
		return stats, err
	}

	stats.Duration = time.Since(startTime)
	log.Info().
		Str("sink", s.sink.Name()).
		Int("files_opened", stats.Read.FilesOpened).
		Int("records_shipped", stats.Shipped).
		Int("batches", stats.Batches).
		Dur("duration", stats.Duration).
		Msg("Finished record forwarding")
	return stats, nil
}

type kafkaSink struct {
	producer kafka.RecordProducer
}

func NewKafkaSink(producer kafka.RecordProducer) RecordSink {
	return &kafkaSink{producer: producer}
}

func (s *kafkaSink) Name() string { return "kafka" }

func (s *kafkaSink) Write(ctx context.Context, batch []SourcedRecord) error {
	return s.producer.Produce(ctx, documents(batch))
}

type elasticsearchSink struct {
	store elasticsearch.DocumentStore
}

func NewElasticsearchSink(store elasticsearch.DocumentStore) RecordSink {
	return &elasticsearchSink{store: store}
}

func (s *elasticsearchSink) Name() string { return "elasticsearch" }

func (s *elasticsearchSink) Write(ctx context.Context, batch []SourcedRecord) error {
	return s.store.StoreDocuments(ctx, documents(batch))
}

type timescaleSink struct {
	extractor metrics.Extractor
	store     timescaledb.MetricStore
}

func NewTimescaleSink(extractor metrics.Extractor, store timescaledb.MetricStore) RecordSink {
	return &timescaleSink{extractor: extractor, store: store}
}

func (s *timescaleSink) Name() string { return "timescale" }

func (s *timescaleSink) Write(ctx context.Context, batch []SourcedRecord) error {
	events := make([]model.MetricEvent, 0, len(batch)*2)
	for _, r := range batch {
		events = append(events, s.extractor.ExtractMetricEvents(r.Record)...)
	}
	return s.store.StoreMetricEvents(ctx, events)
}

func documents(batch []SourcedRecord) []model.JournalDocument {
	docs := make([]model.JournalDocument, len(batch))
	for i, r := range batch {
		docs[i] = model.NewJournalDocument(r.Record, r.Path)
	}
	return docs
}
