package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"indian-stock-api/internal/expiry"
	"indian-stock-api/internal/interfaces"
	"indian-stock-api/internal/logger"
	"indian-stock-api/internal/optionchain"
	"indian-stock-api/internal/registry"
	"indian-stock-api/internal/types"
)

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

// summary is printed to stdout once every broker has loaded
type summary struct {
	Expiries map[types.Root]expiry.Status `json:"expiries"`
	Dates    map[string][]string          `json:"expiry_dates"`
	Brokers  map[string]brokerSummary     `json:"brokers"`
}

type brokerSummary struct {
	Equities map[types.ExchangeCode]int             `json:"equities"`
	Options  map[types.BucketKey]map[types.Root]int `json:"options,omitempty"`
	Expiry   map[types.Root][]string                `json:"expiry,omitempty"`
	LotSize  map[types.Root]int                     `json:"lot_size,omitempty"`
	Error    string                                 `json:"error,omitempty"`
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	exportDir := flag.String("export", "", "write equity tokens as CSV into this directory")
	flag.Parse()

	must(initializeSystem())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig(ctx, *configPath)
	must(err)

	metricsSrv := startMetricsServer(ctx, cfg.Metrics.Addr)

	st, closeStore, err := openStore(ctx, cfg)
	must(err)

	reg := initializeRegistry(ctx, cfg, st)
	brokers := initializeBrokers(ctx, cfg, st, reg)
	bucketizer := optionchain.NewBucketizer(reg, optionchain.WithRoots(reg.Roots()...))

	out := summary{
		Expiries: reg.Expiries.Statuses(),
		Dates:    reg.Expiries.Export(),
		Brokers:  make(map[string]brokerSummary),
	}
	for _, brk := range brokers {
		out.Brokers[brk.ID()] = loadBroker(ctx, brk, reg, bucketizer, *exportDir)
	}

	b, err := json.MarshalIndent(out, "", "  ")
	must(err)
	fmt.Println(string(b))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := reg.Close(shutdownCtx); err != nil {
		logger.ErrorWithErr(shutdownCtx, "Failed to persist registry", err)
	}
	if err := closeStore(); err != nil {
		logger.ErrorWithErr(shutdownCtx, "Failed to close cache", err)
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	if err := logger.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to shutdown logger: %v\n", err)
	}
}

// loadBroker fetches the equity tokens and option chain of one broker
func loadBroker(ctx context.Context, brk interfaces.Broker, reg *registry.Registry, bucketizer *optionchain.Bucketizer, exportDir string) brokerSummary {
	var s brokerSummary

	table, err := brk.FetchEquityTokens(ctx)
	if err != nil {
		s.Error = err.Error()
		return s
	}
	reg.SetEquityTokens(brk.ID(), table)

	s.Equities = make(map[types.ExchangeCode]int, len(table))
	for exchange, records := range table {
		s.Equities[exchange] = len(records)
	}

	if exportDir != "" {
		if err := exportEquities(ctx, exportDir, brk.ID(), table); err != nil {
			logger.ErrorWithErr(ctx, "Failed to export equity tokens", err, "broker", brk.ID())
		}
	}

	rows, err := brk.FetchOptionRows(ctx)
	if err != nil {
		s.Error = err.Error()
		return s
	}

	chain, err := bucketizer.Bucketize(ctx, rows)
	if err != nil {
		logger.Warn(ctx, "Option chain is incomplete", "broker", brk.ID(), "error", err)
	}

	s.Options = make(map[types.BucketKey]map[types.Root]int)
	for _, key := range types.ExpiryBuckets {
		s.Options[key] = make(map[types.Root]int)
		for _, root := range reg.Roots() {
			s.Options[key][root] = chain.Count(key, root)
		}
	}
	s.Expiry = chain.Expiry
	s.LotSize = chain.LotSize
	return s
}
