// Package main is a terminal chat client: one conversation, read from stdin,
// printed as it changes.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/johndosdos/conecta/internal/auth"
	"github.com/johndosdos/conecta/internal/channel"
	"github.com/johndosdos/conecta/internal/chat"
	"github.com/johndosdos/conecta/internal/config"
	"github.com/johndosdos/conecta/internal/handler"
	"github.com/johndosdos/conecta/internal/metrics"
	"github.com/johndosdos/conecta/internal/setup"
)

func main() {
	envErr := godotenv.Load()

	target := flag.String("to", channel.PublicSentinel, "participant to chat with; "+channel.PublicSentinel+" is the public room")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	log := config.NewLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if envErr != nil {
		log.Debug("no .env file loaded", "error", envErr)
	}

	if err := run(cfg, log, *target); err != nil {
		log.Error("conecta stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger, target string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	backends, err := setup.Open(ctx, cfg, log, m)
	if err != nil {
		return err
	}
	defer backends.Close()

	var server *http.Server
	if cfg.HTTPAddr != "" {
		identify := handler.StaticIdentity(cfg.Identity.Static)
		if cfg.Identity.JWTSecret != "" {
			identify = handler.BearerIdentity(cfg.Identity.JWTSecret, cfg.Identity.JWTIssuer, log)
		}
		server = &http.Server{
			Addr: cfg.HTTPAddr,
			Handler: handler.NewRouter(&handler.Server{
				Open: func(ctx context.Context, identity auth.Provider, target string) (*chat.Session, error) {
					return chat.Start(ctx, backends.Deps(identity), target)
				},
				Identify:       identify,
				Gatherer:       reg,
				Log:            log,
				OriginPatterns: cfg.WSOrigins,
			}),
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       30 * time.Second,
		}
		go func() {
			log.Info("http server starting", "addr", cfg.HTTPAddr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("http server error", "error", err)
				stop()
			}
		}()
	}

	sess, err := chat.Start(ctx, backends.Deps(setup.Identity(cfg.Identity, log)), target)
	if err != nil {
		return fmt.Errorf("open conversation: %w", err)
	}

	updates, stopWatch, err := sess.Watch(ctx)
	if err != nil {
		_ = sess.Close()
		return err
	}
	rendered := make(chan struct{})
	go func() {
		defer close(rendered)
		render(os.Stdout, updates, sess.Self())
	}()

	lines := make(chan string)
	go readLines(os.Stdin, lines)

	fmt.Fprintf(os.Stdout, "chatting in %s as %s\n", sess.Channel().Key, sess.Self())

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case msg := <-sess.Advisories():
			fmt.Fprintf(os.Stdout, "! %s\n", msg)
		case err := <-sess.Errors():
			fmt.Fprintf(os.Stdout, "! history unavailable: %v\n", err)
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			if _, err := sess.Send(ctx, line); err != nil {
				fmt.Fprintf(os.Stdout, "! not sent: %v\n", err)
			}
		}
	}

	log.Info("shutting down")
	stopWatch()
	<-rendered

	var errs []error
	if err := sess.Close(); err != nil {
		errs = append(errs, err)
	}
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func readLines(f *os.File, out chan<- string) {
	defer close(out)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		out <- sc.Text()
	}
}
