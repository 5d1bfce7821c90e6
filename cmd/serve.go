package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/savid/radio-schedule/config"
	"github.com/savid/radio-schedule/handlers"
	"github.com/savid/radio-schedule/internal/logging"
	"github.com/savid/radio-schedule/pkg/data"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func newServeCLI(opts *options) *cobra.Command {
	defaults := config.Default()

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Refresh schedules in the background and serve them over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			return serve(cmd, opts, cfg)
		},
	}

	serveCmd.Flags().IntVarP(&opts.flags.Port, "port", "p", defaults.Port, "Port to listen on")
	serveCmd.Flags().DurationVarP(&opts.flags.RefreshInterval, "interval", "i", defaults.RefreshInterval, "Interval between refresh cycles")

	return serveCmd
}

func serve(cmd *cobra.Command, opts *options, cfg *config.Config) error {
	logger, closeLog, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	defer func() {
		_ = closeLog()
	}()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	repo := newRepository(cfg, loc, logger)
	scheduler := data.NewScheduler(repo, cfg.RefreshInterval, logger,
		data.WithReferenceClock(func() time.Time { return time.Now().In(loc) }))
	api := handlers.NewAPI(repo, scheduler, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      api.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return scheduler.Start(ctx)
	})

	g.Go(func() error {
		logger.WithFields(logrus.Fields{
			"port":     cfg.Port,
			"base_url": cfg.BaseURL,
			"interval": cfg.RefreshInterval,
		}).Info("Starting radio schedule server")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if opts.configFile != "" {
		g.Go(func() error {
			return config.Watch(ctx, opts.configFile, config.Default(), logger, func(next *config.Config) {
				opts.override(cmd, next)
				applyReload(scheduler, logger, next)
			})
		})
	}

	err = g.Wait()
	logger.Info("Server stopped")
	return err
}

// applyReload pushes the settings that can change at runtime.
func applyReload(scheduler *data.Scheduler, logger *logrus.Logger, cfg *config.Config) {
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	if cfg.RefreshInterval != scheduler.Interval() {
		if err := scheduler.SetInterval(cfg.RefreshInterval); err != nil {
			logger.WithError(err).Warn("Ignoring refresh interval from config file")
		}
	}
}
