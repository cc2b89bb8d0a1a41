// Command tekhsi-example connects to an in-process simulated acquisition
// source (the instrument URL is only logged; see newWireClient) and logs the
// kind and trans_id of each waveform it observes for CH1 until interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tekhsi "github.com/tekhsi/tekhsi-go"
	"github.com/tekhsi/tekhsi-go/internal/logger"
	"github.com/tekhsi/tekhsi-go/internal/tekhsi/wire"
)

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	if cfg.showVersion {
		fmt.Println(version)
		return
	}

	logger.Init()
	if err := logger.SetLevel(cfg.logLevel); err != nil {
		fmt.Printf("Warning: invalid log level %q, using default\n", cfg.logLevel)
	}
	log := logger.Logger().With("component", "cli")

	client, err := newWireClient(cfg.instrumentURL)
	if err != nil {
		log.Error("failed to build instrument client", "error", err)
		os.Exit(1)
	}

	opts := tekhsi.Options{
		AcqFilter: filterByName(cfg.filterName),
		Callback: func(b *tekhsi.AcquisitionBundle) {
			log.Info("acquisition committed", "trans_id", b.TransID, "symbols", len(b.Entries))
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := tekhsi.Connect(ctx, client, cfg.instrumentURL, opts)
	if err != nil {
		log.Error("connect failed", "error", err)
		os.Exit(1)
	}
	log.Info("connected", "instrument", cfg.instrumentURL, "version", version)

	go pollLoop(ctx, conn, log, waitModeByName(cfg.waitMode))

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Close(shutdownCtx); err != nil {
		log.Error("close error", "error", err)
	}
}

func pollLoop(ctx context.Context, conn *tekhsi.Client, log interface {
	Info(string, ...any)
	Warn(string, ...any)
}, mode tekhsi.WaitMode) {
	for {
		if ctx.Err() != nil {
			return
		}
		scope, err := conn.AccessData(ctx, mode, 0)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("access_data failed", "error", err)
			return
		}
		wf, err := scope.GetData("CH1")
		if err != nil {
			log.Warn("get_data failed", "error", err)
		} else {
			log.Info("observed waveform", "kind", wf.Kind.String(), "trans_id", scope.TransID())
		}
		scope.Release()
	}
}

func filterByName(name string) tekhsi.Filter {
	switch name {
	case "any_vertical_change":
		return tekhsi.AnyVerticalChangeFilter
	case "any_horizontal_change":
		return tekhsi.AnyHorizontalChangeFilter
	default:
		return tekhsi.AnyAcqFilter
	}
}

func waitModeByName(name string) tekhsi.WaitMode {
	switch name {
	case "next_acq":
		return tekhsi.NextAcq
	case "any_acq":
		return tekhsi.AnyAcq
	default:
		return tekhsi.NewData
	}
}

// newWireClient builds the wire.Client for instrumentURL. A real deployment
// dials instrumentURL with google.golang.org/grpc and wraps the generated
// IDataStreamServiceClient, which already satisfies wire.Client unmodified.
// This example has no generated stub to dial, so any URL drives an
// in-process simulated acquisition source instead.
func newWireClient(instrumentURL string) (wire.Client, error) {
	return newSimulatedClient(), nil
}
