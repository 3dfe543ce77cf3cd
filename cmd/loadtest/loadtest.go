// Command loadtest pushes messages through real sessions against the
// configured store and broker and reports throughput.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"

	"github.com/johndosdos/conecta/internal/auth"
	"github.com/johndosdos/conecta/internal/channel"
	"github.com/johndosdos/conecta/internal/chat"
	"github.com/johndosdos/conecta/internal/config"
	"github.com/johndosdos/conecta/internal/setup"
)

type result struct {
	sent     atomic.Int64
	skipped  atomic.Int64
	failures atomic.Int64
	rejected atomic.Int64
}

func main() {
	_ = godotenv.Load()

	senders := flag.Int("senders", 4, "concurrent sessions")
	perSender := flag.Int("n", 100, "messages per session")
	target := flag.String("to", channel.PublicSentinel, "conversation target")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	// Sends are measured, not throttled.
	cfg.Send.RatePerMinute = 0
	log := config.NewLogger(io.Discard, cfg.Log.Level, cfg.Log.Format)

	if err := run(cfg, log, *target, *senders, *perSender); err != nil {
		fmt.Fprintf(os.Stderr, "loadtest: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger, target string, senders, perSender int) error {
	ctx := context.Background()

	backends, err := setup.Open(ctx, cfg, log, nil)
	if err != nil {
		return err
	}
	defer backends.Close()

	sessions := make([]*chat.Session, 0, senders)
	defer func() {
		for _, s := range sessions {
			_ = s.Close()
		}
	}()
	for i := range senders {
		self := fmt.Sprintf("loadtest%d", i)
		s, err := chat.Start(ctx, backends.Deps(auth.Static(self)), target)
		if err != nil {
			return fmt.Errorf("start session %s: %w", self, err)
		}
		sessions = append(sessions, s)
	}

	var res result
	var wg sync.WaitGroup
	start := time.Now()
	for _, s := range sessions {
		wg.Add(1)
		go func(s *chat.Session) {
			defer wg.Done()
			for i := range perSender {
				out, err := s.Send(ctx, fmt.Sprintf("%s #%d", s.Self(), i))
				switch {
				case errors.Is(err, chat.ErrPersistFailed):
					res.failures.Add(1)
				case err != nil:
					res.rejected.Add(1)
				case out.Outcome == chat.Sent:
					res.sent.Add(1)
				default:
					res.skipped.Add(1)
				}
			}
		}(s)
	}
	wg.Wait()
	elapsed := time.Since(start)

	live := 0
	for _, s := range sessions {
		if s.Live() {
			live++
		}
	}

	fmt.Printf("sessions:   %d (%d live)\n", senders, live)
	fmt.Printf("sent:       %d\n", res.sent.Load())
	fmt.Printf("skipped:    %d\n", res.skipped.Load())
	fmt.Printf("failed:     %d\n", res.failures.Load())
	fmt.Printf("rejected:   %d\n", res.rejected.Load())
	fmt.Printf("elapsed:    %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("throughput: %.1f msg/s\n", float64(res.sent.Load())/elapsed.Seconds())
	return nil
}
