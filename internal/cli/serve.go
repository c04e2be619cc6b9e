package cli

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/fx"

	"journalread/config"
	"journalread/internal/controller"
	"journalread/internal/formatter"
	"journalread/internal/service"
	"journalread/internal/source"
)

func newServeCmd(st *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve export files over HTTP",
		Long: `Serve the export files of EXPORT_DIRECTORY over HTTP:

  GET /health
  GET /api/v1/files
  GET /api/v1/entries?files=a.export,b.export&unit=&since=&until=&lines=&output=`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), st.cfg)
		},
	}
	cmd.Flags().String("port", "", "listen port (default SERVER_PORT)")
	cmd.Flags().String("dir", "", "export directory (default EXPORT_DIRECTORY)")
	_ = viper.BindPFlag("SERVER_PORT", cmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("EXPORT_DIRECTORY", cmd.Flags().Lookup("dir"))
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	app := fx.New(
		fx.NopLogger,
		fx.Supply(cfg),
		fx.Provide(
			source.NewFileOpener,
			NewJournalReaderService,
			NewFormatterOptions,
			service.NewEntryQueryService,
			controller.NewEntryController,
			NewGinEngine,
		),
		fx.Invoke(RegisterAPIRoutes),
	)

	startCtx, cancelStart := context.WithTimeout(ctx, 15*time.Second)
	defer cancelStart()
	if err := app.Start(startCtx); err != nil {
		return err
	}
	<-app.Done()

	stopCtx, cancelStop := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStop()
	log.Info().Msg("Shutting down...")
	return app.Stop(stopCtx)
}

func NewJournalReaderService(opener source.Opener) service.JournalReaderService {
	return service.NewJournalReaderService(opener)
}

// NewFormatterOptions renders API timestamps in the configured zone.
func NewFormatterOptions(cfg *config.Config) (formatter.Options, error) {
	loc, err := (&cliState{cfg: cfg}).location(false)
	if err != nil {
		return formatter.Options{}, err
	}
	return formatter.Options{
		Location:       loc,
		BinaryEncoding: formatter.BinaryEncoding(cfg.Output.BinaryEncoding),
	}, nil
}

func NewGinEngine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(controller.RequestLogger())

	r.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "X-Request-ID"},
		ExposeHeaders: []string{"Content-Length", "X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}))
	return r
}

func RegisterAPIRoutes(lifecycle fx.Lifecycle, router *gin.Engine, cfg *config.Config, entryController *controller.EntryController) {
	controller.RegisterEntryRoutes(router, entryController)

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", server.Addr)
			if err != nil {
				return err
			}
			log.Info().Str("port", cfg.Server.Port).Str("export_directory", cfg.Server.ExportDirectory).Msg("Starting HTTP server")
			go func() {
				if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
					log.Error().Err(err).Msg("HTTP server Serve error")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info().Msg("Shutting down HTTP server...")
			return server.Shutdown(ctx)
		},
	})
}
