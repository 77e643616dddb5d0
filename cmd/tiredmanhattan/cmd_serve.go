package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/tiredmanhattan/internal/config"
	"github.com/user/tiredmanhattan/internal/gateway"
	"github.com/user/tiredmanhattan/internal/moderation"
	"github.com/user/tiredmanhattan/internal/scheduler"
	"github.com/user/tiredmanhattan/internal/state"
	"github.com/user/tiredmanhattan/internal/stream"
	"github.com/user/tiredmanhattan/internal/twitter"
	"github.com/user/tiredmanhattan/internal/webhook"
)

const (
	requestTimeout = 30 * time.Second
	drainTimeout   = 30 * time.Second
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the mention responder daemon",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func credentials(cfg *config.Config) twitter.Credentials {
	return twitter.Credentials{
		APIKey:            cfg.Twitter.APIKey,
		APIKeySecret:      cfg.Twitter.APIKeySecret,
		AccessToken:       cfg.Twitter.AccessToken,
		AccessTokenSecret: cfg.Twitter.AccessTokenSecret,
		BearerToken:       cfg.Twitter.BearerToken,
	}
}

// clients holds the authenticated adapters built from the config.
type clients struct {
	stream    *twitter.Stream
	publisher *twitter.Publisher
}

func newClients(ctx context.Context, cfg *config.Config) (*clients, error) {
	creds := credentials(cfg)
	logger := slog.Default().With("component", "twitter-http")

	api := twitter.NewHTTPClient(requestTimeout, twitter.WithLogger(logger))
	long := twitter.NewHTTPClient(0, twitter.WithLogger(logger))

	appClient, err := twitter.AppClient(ctx, api, creds, cfg.Twitter.APIBaseURL)
	if err != nil {
		return nil, err
	}
	appStream, err := twitter.AppClient(ctx, long, creds, cfg.Twitter.APIBaseURL)
	if err != nil {
		return nil, err
	}
	userClient, err := twitter.UserClient(ctx, requestTimeout, creds, twitter.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	userPost, err := twitter.UserClient(ctx, requestTimeout, creds, twitter.WithMaxRetries(0), twitter.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	return &clients{
		stream: twitter.NewStream(twitter.StreamConfig{
			BaseURL:      cfg.Twitter.APIBaseURL,
			Client:       appClient,
			StreamClient: appStream,
		}),
		publisher: twitter.NewPublisher(twitter.PublisherConfig{
			BaseURL:       cfg.Twitter.APIBaseURL,
			UploadBaseURL: cfg.Twitter.UploadBaseURL,
			UploadClient:  userClient,
			PostClient:    userPost,
		}),
	}, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	floor, ceiling, transient, err := cfg.Stream.Timings()
	if err != nil {
		return err
	}

	// Assets are loaded once; a missing background is fatal.
	compositor, err := newCompositor(cfg)
	if err != nil {
		return err
	}
	words, err := loadWordList(cfg)
	if err != nil {
		return fmt.Errorf("load word list: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tw, err := newClients(ctx, cfg)
	if err != nil {
		return fmt.Errorf("twitter clients: %w", err)
	}

	handle := cfg.Twitter.ScreenName
	if handle == "" {
		lookupCtx, lookupCancel := context.WithTimeout(ctx, requestTimeout)
		handle, err = tw.publisher.Me(lookupCtx)
		lookupCancel()
		if err != nil {
			return fmt.Errorf("resolve screen name: %w", err)
		}
	}

	pid := pidFileFor(cfg.DataDir)
	if err := pid.write(); err != nil {
		return err
	}
	defer pid.remove()

	runLog := state.NewRunLog(state.DefaultCapacity)

	gate := moderation.NewGate(handle, words)
	responder := gateway.NewResponder(gate, compositor, tw.publisher)

	gw := gateway.New(responder.ProcessRun, int64(cfg.MaxConcurrent))
	gw.SetOnFinish(func(run *gateway.Run) {
		if err := runLog.Append(context.Background(), state.RecordFromRun(run)); err != nil {
			slog.Warn("failed to record run", "run_id", run.ID, "error", err)
		}
	})
	gw.Start(ctx)
	defer gw.Stop()

	sup := stream.NewSupervisor(tw.stream, handle, gw,
		stream.WithBackoff(stream.NewBackoff(floor, ceiling)),
		stream.WithTransientDelay(transient),
	)

	// The rule can be deleted out from under a healthy connection.
	sched := scheduler.New()
	err = sched.Add(scheduler.Job{
		Name:     "rule-check",
		Schedule: cfg.Stream.RuleCheck,
		Run: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, requestTimeout)
			defer cancel()
			return sup.EnsureRule(ctx)
		},
	})
	if err != nil {
		return err
	}

	supCtx, stopStream := context.WithCancel(ctx)
	defer stopStream()
	supDone := make(chan struct{})
	go func() {
		defer close(supDone)
		if err := sup.Run(supCtx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("stream supervisor stopped", "error", err)
		}
	}()
	sched.Start(supCtx)
	defer sched.Stop()

	slog.Info("tiredmanhattan started",
		"handle", handle,
		"data_dir", cfg.DataDir,
		"log_level", cfg.LogLevel,
		"max_concurrent", cfg.MaxConcurrent,
		"words", words.Len(),
		"pid_file", string(pid),
	)

	if cfg.HTTP.Enabled {
		srv := webhook.NewServer(webhook.Deps{
			Handle:      handle,
			Renderer:    compositor,
			Poster:      responder,
			Filter:      words,
			StreamState: func() string { return sup.State().String() },
			Runs:        runLog,
		})
		httpServer := &http.Server{
			Addr:              cfg.HTTP.Listen,
			Handler:           srv,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("http server started", "listen", cfg.HTTP.Listen)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("http server error", "error", err)
			}
		}()
		go func() {
			<-ctx.Done()
			httpServer.Close()
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan
		if sig == syscall.SIGHUP {
			slog.Info("received SIGHUP, restarting")
			execPath, err := os.Executable()
			if err != nil {
				slog.Error("failed to get executable path", "error", err)
				continue
			}
			pid.remove()
			if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
				slog.Error("failed to re-exec", "error", err)
				if writeErr := pid.write(); writeErr != nil {
					slog.Error("failed to re-write PID file", "error", writeErr)
				}
				continue
			}
		}

		slog.Info("shutting down", "signal", sig)
		stopStream()
		<-supDone
		drainRuns(gw, drainTimeout, cancel)
		return nil
	}
}

// drainRuns waits for in-flight replies once no new mentions arrive. Runs
// still going after timeout are cancelled through abort.
func drainRuns(gw *gateway.Gateway, timeout time.Duration, abort context.CancelFunc) bool {
	active := gw.Active()
	if active == 0 {
		return true
	}
	slog.Info("waiting for in-flight replies", "active", active, "timeout", timeout)
	if gw.WaitIdle(timeout) {
		return true
	}
	slog.Warn("cancelling replies still in flight", "active", gw.Active())
	abort()
	return false
}
