package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"journalread/config"
	"journalread/internal/dto"
	"journalread/internal/elasticsearch"
	"journalread/internal/kafka"
	"journalread/internal/metrics"
	"journalread/internal/service"
	"journalread/internal/source"
	"journalread/internal/timescaledb"
)

const (
	sinkKafka         = "kafka"
	sinkElasticsearch = "elasticsearch"
	sinkTimescale     = "timescale"
)

func newForwardCmd(st *cliState) *cobra.Command {
	var (
		opts filterOptions
		sink string
	)
	cmd := &cobra.Command{
		Use:   "forward --sink kafka|elasticsearch|timescale [flags] FILE...",
		Short: "Ship entries of export files to an external store",
		Long: `Decode and filter export files exactly like "read", then ship the surviving
entries in batches of FORWARD_BATCH_SIZE:

  kafka          one JSON document per entry, keyed by unit (KAFKA_*)
  elasticsearch  bulk indexed into daily <ELASTICSEARCH_INDEX>-YYYY-MM-DD indices
  timescale      journal_event and error_event metric rows (TIMESCALEDB_DSN)`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := st.location(false)
			if err != nil {
				return err
			}
			spec, err := opts.spec(cmd, loc, time.Now())
			if err != nil {
				return err
			}
			sinkModule, err := sinkOptions(sink)
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer cancel()
			return runForward(ctx, st.cfg, sinkModule, args, spec)
		},
	}
	addFilterFlags(cmd, &opts)
	cmd.Flags().StringVar(&sink, "sink", sinkKafka, "destination: kafka, elasticsearch or timescale")
	return cmd
}

func sinkOptions(sink string) (fx.Option, error) {
	switch sink {
	case sinkKafka:
		return fx.Provide(kafka.NewKafkaRecordProducer, service.NewKafkaSink), nil
	case sinkElasticsearch:
		return fx.Provide(elasticsearch.NewElasticDocumentStore, service.NewElasticsearchSink), nil
	case sinkTimescale:
		return fx.Provide(timescaledb.NewTimescaleMetricStore, metrics.NewJournalExtractor, service.NewTimescaleSink), nil
	default:
		return nil, fmt.Errorf("unknown sink %q (valid: %s, %s, %s)", sink, sinkKafka, sinkElasticsearch, sinkTimescale)
	}
}

func runForward(ctx context.Context, cfg *config.Config, sinkModule fx.Option, paths []string, spec dto.FilterSpec) error {
	var forwarder service.ForwardService
	app := fx.New(
		fx.NopLogger,
		fx.Supply(cfg),
		fx.Provide(
			source.NewFileOpener,
			NewJournalReaderService,
			service.NewForwardService,
		),
		sinkModule,
		fx.Populate(&forwarder),
	)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancelStart := context.WithTimeout(ctx, 15*time.Second)
	defer cancelStart()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	_, fwdErr := forwarder.Forward(ctx, paths, spec)
	if fwdErr != nil {
		log.Error().Err(fwdErr).Msg("Forwarding stopped")
	}

	// Stopping flushes and closes the sink.
	stopCtx, cancelStop := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStop()
	return errors.Join(fwdErr, app.Stop(stopCtx))
}
