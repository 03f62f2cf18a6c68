// Package commands implements the quotes CLI.
package commands

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/procural/quotes-go/adapters/nats"
	"github.com/procural/quotes-go/core/quotation"
	"github.com/procural/quotes-go/internal/config"
)

var (
	cfg     config.Config
	log     *slog.Logger
	connect nats.Connector
	verbose bool
)

func Execute() error {
	root := &cobra.Command{
		Use:           "quotes",
		Short:         "Event-sourced quotation workflow",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			log = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
			slog.SetDefault(log)

			cfg = config.Load()
			if cfg.NATSURL != "" {
				connect = nats.ReuseConnection(nats.ConnectURL(cfg.NATSURL))
			} else {
				connect = nats.ReuseConnection(nats.ConnectDefault())
			}
		},
	}

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		createCmd(),
		addItemCmd(),
		sendCmd(),
		rejectCmd(),
		approveCmd(),
		getCmd(),
		notifierCmd(),
	)
	return root.Execute()
}

// withService opens the quotation store and runs fn with a service on it.
func withService(ctx context.Context, fn func(context.Context, *quotation.Service) error) error {
	store, err := nats.NewEventStore(ctx, nats.EventStoreConfig{
		Connect:    connect,
		Log:        log,
		StreamName: cfg.QuotesStream,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	svc := quotation.NewService(log, store)
	defer svc.Close()

	return fn(ctx, svc)
}
