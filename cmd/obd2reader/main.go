package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/VancePeterson/obd2-reader/internal/elm"
	"github.com/VancePeterson/obd2-reader/internal/logger"
	"github.com/VancePeterson/obd2-reader/internal/obd"
	"github.com/VancePeterson/obd2-reader/internal/poller"
	"github.com/VancePeterson/obd2-reader/internal/server"
)

// adapter is satisfied by both elm.Session and elm.Demo.
type adapter interface {
	Name() string
	Connect() error
	Close() error
	Query(obd.PID) (obd.Outcome, error)
}

func main() {
	configPath := flag.String("config", "/etc/obd2-reader/config.yaml", "Path to config file")
	demo := flag.Bool("demo", false, "Run with a simulated adapter")
	listenAddr := flag.String("listen", "", "Override listen address (e.g. :8080)")
	portPath := flag.String("port", "", "Override serial port path")
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("[main] obd2-reader starting")

	cfg := server.LoadConfig(*configPath)
	if *demo {
		cfg.Adapter.Type = "demo"
	}
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}
	if *portPath != "" {
		cfg.Adapter.PortPath = *portPath
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("[main] received %v, shutting down", sig)
		cancel()
	}()

	var adp adapter
	switch cfg.Adapter.Type {
	case "elm327":
		adp = elm.NewSession(elm.Config{
			PortPath:     cfg.Adapter.PortPath,
			BaudRate:     cfg.Adapter.BaudRate,
			QueryTimeout: cfg.QueryTimeout(),
			InitTimeout:  cfg.InitTimeout(),
		})
	default:
		adp = elm.NewDemo()
	}
	defer adp.Close()

	rec := logger.New(logger.Config{
		Enabled: cfg.Logging.Enabled,
		Path:    cfg.Logging.Path,
	})
	defer rec.Close()

	srv := server.New(cfg, rec)
	poll := poller.New(adp, srv, cfg.PollDelay())
	poll.SetPIDs(cfg.SelectedPIDs())
	srv.SetPoller(poll)

	// Supervise the adapter: connect with backoff, poll until the
	// channel fails, reconnect. The server keeps running throughout
	// so clients stay attached across adapter drops.
	go superviseAdapter(ctx, adp, poll)

	if err := srv.Run(ctx); err != nil {
		log.Printf("[main] server exited: %v", err)
	}
}

// superviseAdapter connects the adapter (retrying with exponential
// backoff) and runs the poll loop, restarting the sequence whenever
// the session reports a channel failure.
func superviseAdapter(ctx context.Context, adp adapter, poll *poller.Poller) {
	for ctx.Err() == nil {
		if !connectWithRetry(ctx, adp) {
			return
		}
		err := poll.Run(ctx)
		adp.Close()
		if err == nil {
			// Cooperative stop, not a failure.
			return
		}
		log.Printf("[main] %s channel failed: %v (reconnecting)", adp.Name(), err)
	}
}

// connectWithRetry attempts to connect with exponential backoff,
// starting at 1s and doubling up to 60s, until it succeeds or ctx is
// cancelled. Reports whether the adapter connected.
func connectWithRetry(ctx context.Context, adp adapter) bool {
	delay := 1 * time.Second
	maxDelay := 60 * time.Second
	attempt := 0

	for {
		select {
		case <-ctx.Done():
			return false
		default:
		}

		attempt++
		if err := adp.Connect(); err != nil {
			log.Printf("[main] %s connect attempt %d failed: %v (retry in %v)",
				adp.Name(), attempt, err, delay)

			select {
			case <-ctx.Done():
				return false
			case <-time.After(delay):
			}

			delay *= 2
			if delay > maxDelay {
				delay = maxDelay
			}
			continue
		}

		log.Printf("[main] %s connected (attempt %d)", adp.Name(), attempt)
		return true
	}
}
