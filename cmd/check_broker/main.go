package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/jhj/kis_autotrader/internal/config"
	"github.com/jhj/kis_autotrader/internal/infrastructure/broker"
	"github.com/jhj/kis_autotrader/internal/infrastructure/storage"
)

func main() {
	path := flag.String("config", "config/config.yaml", "path to config file")
	symbol := flag.String("symbol", "005930", "symbol used for the quote check")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	mode := "REAL"
	if cfg.PaperTrading() {
		mode = "PAPER"
	}
	fmt.Printf("Testing KIS Interaction...\n")
	fmt.Printf("Endpoint: %s (%s)\n", cfg.KIS.BaseURL, mode)
	if len(cfg.KIS.AppKey) >= 4 {
		fmt.Printf("App Key: %s...\n", cfg.KIS.AppKey[:4])
	}

	client := broker.NewKISClient(broker.Config{
		AppKey:         cfg.KIS.AppKey,
		AppSecret:      cfg.KIS.AppSecret,
		BaseURL:        cfg.KIS.BaseURL,
		AccountNo:      cfg.KIS.AccountNo,
		RequestTimeout: cfg.Broker.RequestTimeout,
		MinInterval:    cfg.Broker.MinInterval,
		Retry:          broker.DefaultRetryPolicy(),
	}, storage.NewFileTokenStore(cfg.Broker.TokenFile), zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	failed := false

	// Token and cash
	balance, err := client.GetAccountBalance(ctx)
	if err != nil {
		fmt.Printf("❌ Failed to get balance: %v\n", err)
		failed = true
	} else {
		fmt.Printf("✅ Orderable cash: %d KRW\n", balance.AvailableCash)
	}

	// Quote
	quote, err := client.GetQuote(ctx, *symbol)
	if err != nil {
		fmt.Printf("❌ Failed to get quote (%s): %v\n", *symbol, err)
		failed = true
	} else {
		fmt.Printf("✅ Quote (%s): price=%d bid=%d ask=%d\n", *symbol, quote.Current, quote.Bid, quote.Ask)
	}

	// Holdings
	holdings, err := client.GetHoldings(ctx)
	if err != nil {
		fmt.Printf("❌ Failed to get holdings: %v\n", err)
		failed = true
	} else {
		fmt.Printf("✅ Holdings: %d\n", len(holdings))
		symbols := make([]string, 0, len(holdings))
		for s := range holdings {
			symbols = append(symbols, s)
		}
		sort.Strings(symbols)
		for _, s := range symbols {
			p := holdings[s]
			fmt.Printf("   %s %s qty=%d avg=%.0f now=%d (%.2f%%)\n",
				p.Symbol, p.Name, p.Quantity, p.AverageCost, p.LastKnownPrice, p.UnrealizedReturnPct)
		}
	}

	if failed {
		os.Exit(1)
	}
}
