package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"vidar/internal/engine"
	"vidar/internal/net"
)

func main() {
	address := flag.String("address", "0.0.0.0", "Listen address")
	port := flag.Int("port", 9001, "Listen port")
	symbols := flag.String("symbols", "AAPL", "Comma-separated symbols to make books for")
	pretty := flag.Bool("pretty", false, "Human-readable log output")
	flag.Parse()

	if *pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	// Setup the matching engine and its books.
	ectx := engine.NewContext()
	ectx.SetTimestamp(uint64(time.Now().UnixNano()))
	for _, symbol := range strings.Split(*symbols, ",") {
		if _, err := ectx.CreateOrderBook(strings.TrimSpace(symbol)); err != nil {
			log.Fatal().Err(err).Str("symbol", symbol).Msg("unable to create order book")
		}
		log.Info().Str("symbol", symbol).Msg("order book created")
	}

	// Setup the TCP server over the engine.
	srv := net.New(*address, *port, ectx)

	go srv.Run(ctx)
	// Block on running the server.
	<-ctx.Done()
}
