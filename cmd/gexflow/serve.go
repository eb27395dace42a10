package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dgnsrekt/gexflow/internal/notify"
	"github.com/dgnsrekt/gexflow/internal/pricing"
	"github.com/dgnsrekt/gexflow/internal/server"
	"github.com/dgnsrekt/gexflow/internal/session"
	"github.com/dgnsrekt/gexflow/internal/sse"
	"github.com/dgnsrekt/gexflow/internal/ws"
)

func serveCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket analytics server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if port != "" {
				cfg.Server.Port = port
			}
			return serve(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "listen port (overrides server.port)")
	return cmd
}

func serve(ctx context.Context) error {
	now := time.Now()

	expiry, err := cfg.ResolveExpiry(now)
	if err != nil {
		return fmt.Errorf("resolving expiry: %w", err)
	}

	sess, err := session.New(cfg.SessionParams(expiry), logger)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}

	// A pinned expiry never rolls
	var calendar *pricing.ExpiryCalendar
	if cfg.Instrument.Expiry == "" {
		calendar, err = cfg.ExpiryCalendar()
		if err != nil {
			return fmt.Errorf("building expiry calendar: %w", err)
		}
	}
	resets := server.NewResetManager(sess, calendar, logger)

	logger.Info("configuration loaded",
		zap.String("symbol", cfg.Instrument.Symbol),
		zap.Time("expiry", expiry),
		zap.String("port", cfg.Server.Port),
		zap.Bool("wsEnabled", cfg.WebSocket.Enabled),
		zap.Bool("notifyEnabled", cfg.Notify.Enabled),
		zap.String("resetSchedule", cfg.Session.ResetSchedule),
	)

	g, gctx := errgroup.WithContext(ctx)

	hub := ws.NewHub(logger)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	streamInterval := cfg.WebSocket.StreamInterval
	if streamInterval <= 0 {
		streamInterval = time.Second
	}
	streamer, err := ws.NewStreamer(hub, sess, resets, ws.StreamerConfig{
		Interval:         streamInterval,
		EvaluateInterval: cfg.Alerts.EvaluateInterval,
		Compression:      cfg.WebSocket.Compression,
		StrikeWindow:     cfg.Instrument.StrikeWindow,
		StrikeInterval:   cfg.Instrument.StrikeInterval,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating streamer: %w", err)
	}
	g.Go(func() error {
		return streamer.Run(gctx)
	})

	notifyCfg := notify.FromConfig(cfg)
	if notifyCfg.Enabled {
		dispatcher := notify.NewDispatcher(notify.New(notifyCfg, logger), notifyCfg.QueueSize, logger)
		unsubscribe, err := sess.Subscribe(dispatcher.Enqueue)
		if err != nil {
			return err
		}
		defer unsubscribe()
		g.Go(func() error {
			return dispatcher.Run(gctx)
		})
		logger.Info("alert notifications enabled",
			zap.String("topic", notifyCfg.Topic),
			zap.String("minSeverity", string(notifyCfg.MinSeverity)),
		)
	}

	if cfg.Session.ResetSchedule != "" {
		loc, err := time.LoadLocation(cfg.Instrument.Timezone)
		if err != nil {
			return fmt.Errorf("loading timezone: %w", err)
		}
		scheduler := cron.New(cron.WithLocation(loc))
		if _, err := scheduler.AddFunc(cfg.Session.ResetSchedule, func() {
			resets.ScheduledReset(time.Now(), cfg.Session.BusinessDaysOnly)
		}); err != nil {
			return fmt.Errorf("scheduling session reset: %w", err)
		}
		scheduler.Start()
		g.Go(func() error {
			<-gctx.Done()
			<-scheduler.Stop().Done()
			return nil
		})
	}

	events := sse.NewBroadcaster(sess, cfg.Instrument.Symbol, cfg.Server.EventsHeartbeat, logger)
	g.Go(func() error {
		return events.Run(gctx)
	})

	streams := &server.Streams{AlertEvents: events.HandleSSE}
	if cfg.WebSocket.Enabled {
		streams.WebSocket = hub
	}

	srv := server.NewServer(sess, resets, cfg, logger)
	router, err := server.NewRouter(srv, streams, logger)
	if err != nil {
		return fmt.Errorf("creating router: %w", err)
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	g.Go(func() error {
		logger.Info("starting server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
