package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nijaru/yt-transcript/db"
	"github.com/nijaru/yt-transcript/handlers"
	"github.com/nijaru/yt-transcript/server"
	"github.com/nijaru/yt-transcript/transcription"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			log, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			retriever, err := ctx.newRetriever()
			if err != nil {
				return err
			}

			var store handlers.LookupStore
			if cfg.Database.Path != "" {
				s, err := db.Open(runCtx, cfg.Database)
				if err != nil {
					return err
				}
				defer func() {
					if err := s.Close(); err != nil {
						log.WithError(err).Error("Failed to close lookup store")
					}
				}()
				store = s
			} else {
				log.Info("Lookup log disabled")
			}

			log.WithFields(logrus.Fields{
				"strategy":         cfg.YouTube.Strategy,
				"default_language": retriever.DefaultLanguage(),
			}).Info("Starting server")

			return server.New(cfg, log.Logger, handlers.New(transcription.NewService(retriever, log.Logger), store)).Run(runCtx)
		},
	}
}
