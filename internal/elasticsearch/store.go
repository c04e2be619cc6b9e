package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esutil"
	"github.com/rs/zerolog/log"
	"go.uber.org/fx"

	"journalread/config"
	"journalread/internal/model"
)

type DocumentStore interface {
	StoreDocuments(ctx context.Context, docs []model.JournalDocument) error
	Close(ctx context.Context) error
}

type elasticDocumentStore struct {
	bulkIndexer     esutil.BulkIndexer
	indexPrefix     string
	countSuccessful uint64
	countFailed     uint64
}

func NewElasticDocumentStore(lc fx.Lifecycle, cfg *config.Config) (DocumentStore, error) {
	if len(cfg.Elasticsearch.Addresses) == 0 {
		log.Error().Msg("Elasticsearch addresses are not configured.")
		return nil, errors.New("elasticsearch configuration missing")
	}
	transport := &http.Transport{
		MaxIdleConnsPerHost:   10,
		ResponseHeaderTimeout: time.Second * 10,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
	}
	esCfg := elasticsearch.Config{
		Addresses: cfg.Elasticsearch.Addresses,
		Username:  cfg.Elasticsearch.Username,
		Password:  cfg.Elasticsearch.Password,
		Transport: transport,
	}

	esClient, err := connect(esCfg)
	if err != nil {
		return nil, err
	}

	store := &elasticDocumentStore{indexPrefix: cfg.Elasticsearch.IndexPrefix}
	bi, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Client:        esClient,
		NumWorkers:    cfg.Elasticsearch.BulkWorkers,
		FlushBytes:    cfg.Elasticsearch.FlushBytes,
		FlushInterval: cfg.Elasticsearch.FlushInterval,
		OnError: func(ctx context.Context, err error) {
			log.Error().Err(err).Msg("BulkIndexer error")
		},
		OnFlushStart: func(ctx context.Context) context.Context {
			log.Debug().Msg("BulkIndexer flush starting")
			return ctx
		},
		OnFlushEnd: func(ctx context.Context) {
			log.Debug().Msg("BulkIndexer flush ended")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("error creating the BulkIndexer: %w", err)
	}
	store.bulkIndexer = bi
	log.Info().Msg("Elasticsearch BulkIndexer initialized")

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Info().Msg("Closing Elasticsearch BulkIndexer...")
			return store.Close(ctx)
		},
	})
	return store, nil
}

// NewDocumentStore builds a store on an existing bulk indexer.
func NewDocumentStore(bi esutil.BulkIndexer, indexPrefix string) DocumentStore {
	return &elasticDocumentStore{bulkIndexer: bi, indexPrefix: indexPrefix}
}

func connect(esCfg elasticsearch.Config) (*elasticsearch.Client, error) {
	var esClient *elasticsearch.Client
	operation := func() error {
		client, err := elasticsearch.NewClient(esCfg)
		if err != nil {
			log.Warn().Err(err).Msg("Attempt failed: Error creating the Elasticsearch client")
			return err
		}

		// Verify connection (ping)
		res, err := client.Info(client.Info.WithContext(context.Background()))
		if err != nil {
			log.Warn().Err(err).Msg("Attempt failed: Error during Elasticsearch Info() call (transport level)")
			return err
		}
		defer res.Body.Close()
		if res.IsError() {
			errMsg := fmt.Errorf("elasticsearch Info() returned error status: %s", res.Status())
			log.Warn().Err(errMsg).Msg("Attempt failed: Elasticsearch ping returned error status")
			return errMsg
		}
		esClient = client
		log.Info().Msg("Elasticsearch client initialized and connection verified")
		return nil
	}

	connectBackoff := backoff.NewExponentialBackOff()
	connectBackoff.InitialInterval = 2 * time.Second
	connectBackoff.MaxInterval = 15 * time.Second
	connectBackoff.MaxElapsedTime = 90 * time.Second

	log.Info().Msg("Attempting to connect to Elasticsearch with retries...")
	if err := backoff.Retry(operation, connectBackoff); err != nil {
		return nil, fmt.Errorf("failed to connect to Elasticsearch: %w", err)
	}
	return esClient, nil
}

// StoreDocuments queues docs on the bulk indexer, each into the daily index
// of its own timestamp.
func (s *elasticDocumentStore) StoreDocuments(ctx context.Context, docs []model.JournalDocument) error {
	if len(docs) == 0 {
		return nil
	}
	if failed := atomic.LoadUint64(&s.countFailed); failed > 0 {
		return fmt.Errorf("elasticsearch rejected %d documents", failed)
	}

	for _, doc := range docs {
		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to marshal journal document for Elasticsearch: %w", err)
		}

		err = s.bulkIndexer.Add(ctx, esutil.BulkIndexerItem{
			Action: "index",
			Index:  IndexName(s.indexPrefix, doc.Timestamp),
			Body:   bytes.NewReader(data),
			OnSuccess: func(ctx context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem) {
				atomic.AddUint64(&s.countSuccessful, 1)
			},
			OnFailure: func(ctx context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
				atomic.AddUint64(&s.countFailed, 1)
				if err != nil {
					log.Error().Err(err).Str("index", item.Index).Msg("Failed to index journal document")
				} else {
					log.Error().Str("index", item.Index).Str("type", res.Error.Type).Str("reason", res.Error.Reason).Msg("Failed to index journal document")
				}
			},
		})
		if err != nil {
			return fmt.Errorf("failed to add item to BulkIndexer: %w", err)
		}
	}
	log.Debug().Int("count", len(docs)).Msg("Added journal documents to Elasticsearch BulkIndexer queue")
	return nil
}

// Close flushes the indexer. Documents rejected at any point make it fail.
func (s *elasticDocumentStore) Close(ctx context.Context) error {
	err := s.bulkIndexer.Close(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Error closing BulkIndexer")
	}

	stats := s.bulkIndexer.Stats()
	log.Info().
		Uint64("indexed", stats.NumIndexed).
		Uint64("added", stats.NumAdded).
		Uint64("flushed", stats.NumFlushed).
		Uint64("failed", stats.NumFailed).
		Uint64("requests", stats.NumRequests).
		Msg("Elasticsearch BulkIndexer final stats")

	if err != nil {
		return err
	}
	if failed := atomic.LoadUint64(&s.countFailed); failed > 0 {
		return fmt.Errorf("elasticsearch rejected %d documents", failed)
	}
	return nil
}

// IndexName is the daily index for ts, e.g. "journal-2024-01-02". Documents
// without a timestamp go to the index of the current day.
func IndexName(prefix string, ts time.Time) string {
	if ts.IsZero() {
		ts = time.Now()
	}
	return fmt.Sprintf("%s-%s", prefix, ts.UTC().Format("2006-01-02"))
}
