package commands

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/procural/quotes-go/adapters/nats"
	promadapter "github.com/procural/quotes-go/adapters/prometheus"
	"github.com/procural/quotes-go/core/notify"
)

// notifier follows the quotation event log and records one email
// notification per quotation sent to a subcontractor. It runs until
// interrupted; the consumption cursor is durable, so a restart resumes
// where it left off.
func notifierCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "notifier",
		Short: "Run the notification process manager",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			source, err := nats.NewEventStore(ctx, nats.EventStoreConfig{
				Connect:    connect,
				Log:        log,
				StreamName: cfg.QuotesStream,
			})
			if err != nil {
				return err
			}
			defer source.Close()

			target, err := nats.NewEventStore(ctx, nats.EventStoreConfig{
				Connect:       connect,
				Log:           log,
				StreamName:    cfg.NotifyStream,
				SubjectPrefix: "notify.es",
			})
			if err != nil {
				return err
			}
			defer target.Close()

			cursors, err := nats.NewCursorStore(ctx, nats.CursorStoreConfig{
				Connect: connect,
				Bucket:  cfg.CursorBucket,
			})
			if err != nil {
				return err
			}
			defer cursors.Close()

			reg := prometheus.NewRegistry()
			pm, err := notify.NewProcessManager(notify.ProcessManagerConfig{
				Source:       source,
				Target:       target,
				Cursors:      cursors,
				Log:          log,
				Metrics:      promadapter.NewESMetrics(reg),
				PageSize:     cfg.LogPageSize,
				PollInterval: cfg.PollInterval,
			})
			if err != nil {
				return err
			}

			metricsSrv := serveMetrics(reg)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = metricsSrv.Shutdown(shutdownCtx)
			}()

			if err := pm.Run(ctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

func serveMetrics(reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		log.Info("serving metrics", slog.String("addr", cfg.MetricsAddr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	return srv
}
