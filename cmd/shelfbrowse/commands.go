package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shelfarr/shelfbrowse/internal/api"
	"github.com/shelfarr/shelfbrowse/internal/catalog"
	"github.com/shelfarr/shelfbrowse/internal/config"
	"github.com/shelfarr/shelfbrowse/internal/db"
	"github.com/shelfarr/shelfbrowse/internal/logger"
	"github.com/shelfarr/shelfbrowse/internal/metrics"
	"github.com/shelfarr/shelfbrowse/internal/openlibrary"
	"github.com/shelfarr/shelfbrowse/internal/realtime"
	"github.com/shelfarr/shelfbrowse/internal/scheduler"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var envFile string
	var cfg *config.Config

	root := &cobra.Command{
		Use:           "shelfbrowse",
		Short:         "Browse the Open Library catalog by topic",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if cfg, err = config.Load(envFile); err != nil {
				return err
			}
			return logger.Setup(cfg.LogLevel, cfg.LogFormat, os.Stderr)
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional file with SHELFBROWSE_* variables")

	root.AddCommand(
		newServeCmd(func() *config.Config { return cfg }),
		newBrowseCmd(func() *config.Config { return cfg }),
		newTopicsCmd(func() *config.Config { return cfg }),
	)
	return root
}

func newServeCmd(cfg func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and websocket feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg())
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logrus.StandardLogger()

	gdb, err := db.Initialize(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if err := db.Close(gdb); err != nil {
			log.WithError(err).Warn("Failed to close database")
		}
	}()
	if err := db.Migrate(gdb); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	activity := db.NewActivityStore(gdb, log)

	client := openlibrary.NewClientWithOptions(cfg.OpenLibraryOptions())

	opts := []catalog.Option{
		catalog.WithDefaultTopic(cfg.DefaultTopic),
		catalog.WithLogger(log),
		catalog.WithObserver(activity),
	}
	var rec *metrics.Recorder
	if cfg.EnableMetrics {
		rec = metrics.NewRecorder()
		opts = append(opts, catalog.WithObserver(rec))
	}

	ctrl, err := catalog.New(client, cfg.Topics, opts...)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	sched := scheduler.NewScheduler(log)
	sched.SetupDefaultTasks(scheduler.PruneActivityTask(activity, cfg.ActivityRetention, log))
	sched.Start()
	defer sched.Stop()

	hub := realtime.NewHub(log)
	go hub.Run(ctx)

	srv := api.NewServer(cfg, api.Deps{
		Catalog:  ctrl,
		Hub:      hub,
		Activity: activity,
		Tasks:    sched,
		Metrics:  rec,
		Probe:    client.Test,
		Logger:   log,
	})

	snapshots, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()
	go realtime.ForwardSnapshots(ctx, hub, snapshots, srv.Render)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info("Shutting down")
	return srv.Shutdown(shutdownCtx)
}

func newBrowseCmd(cfg func() *config.Config) *cobra.Command {
	var topic string
	var page int

	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Fetch one page of a topic and print it",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cfg()
			ctrl, err := catalog.New(
				openlibrary.NewClientWithOptions(c.OpenLibraryOptions()),
				c.Topics,
				catalog.WithDefaultTopic(c.DefaultTopic),
				catalog.WithLogger(logrus.StandardLogger()),
			)
			if err != nil {
				return err
			}
			defer ctrl.Close()

			if topic != "" {
				if err := ctrl.SetTopic(catalog.Topic(topic)); err != nil {
					return err
				}
			}
			if page != 1 {
				if err := ctrl.SetPage(page); err != nil {
					return err
				}
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), c.RequestTimeout+5*time.Second)
			defer cancel()
			snap, err := ctrl.Wait(ctx)
			if err != nil {
				return err
			}
			printView(cmd.OutOrStdout(), catalog.NewView(snap, ctrl.Topics()))
			return nil
		},
	}
	cmd.Flags().StringVarP(&topic, "topic", "t", "", "topic to browse (default: configured default topic)")
	cmd.Flags().IntVarP(&page, "page", "p", 1, "page number, starting at 1")
	return cmd
}

func newTopicsCmd(cfg func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "topics",
		Short: "List the configured topics",
		Run: func(cmd *cobra.Command, args []string) {
			c := cfg()
			for _, t := range c.Topics {
				marker := " "
				if t == c.DefaultTopic {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %-12s %s\n", marker, t, catalog.TopicLabel(t))
			}
		},
	}
}

func printView(w io.Writer, v catalog.View) {
	fmt.Fprintf(w, "%s, page %d of %d\n", catalog.TopicLabel(v.Topic), v.Pagination.Page, v.Pagination.TotalPages)
	if v.Error != "" {
		fmt.Fprintf(w, "%s: %s\n", v.Status, v.Error)
		return
	}
	if len(v.Books) == 0 {
		fmt.Fprintln(w, "(no books on this page)")
		return
	}
	for i, b := range v.Books {
		fmt.Fprintf(w, "\n%2d. %s\n    Author: %s\n    %s\n    %s\n", i+1, b.Title, b.Authors, b.Blurb, b.URL)
	}
}
