package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"quantbrains/internal/mailbox"
	"quantbrains/internal/terminalsim"
)

func main() {
	dir := flag.String("dir", "", "Terminal Files directory to serve (required)")
	strategies := flag.Int("strategies", 4, "Number of simulated strategies")
	pollInterval := flag.Duration("poll-interval", 50*time.Millisecond, "Command file poll interval")
	pushInterval := flag.Duration("push-interval", 0, "Unsolicited strategy push interval (0=disable)")
	balance := flag.String("balance", "10000", "Account balance")
	seed := flag.Uint64("seed", 1, "Random seed")
	commandFile := flag.String("command-file", mailbox.DefaultCommandFile, "Command file name")
	responseFile := flag.String("response-file", mailbox.DefaultResponseFile, "Response file name")
	flag.Parse()

	if *dir == "" {
		log.Fatalf("dir is required")
	}
	if *strategies <= 0 {
		log.Fatalf("strategies must be > 0")
	}
	bal, err := decimal.NewFromString(*balance)
	if err != nil {
		log.Fatalf("invalid balance %q: %v", *balance, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	term := terminalsim.New(terminalsim.Config{
		Dir:          *dir,
		CommandFile:  *commandFile,
		ResponseFile: *responseFile,
		PollInterval: *pollInterval,
		PushInterval: *pushInterval,
		Strategies:   *strategies,
		Seed:         *seed,
		Balance:      bal,
	})

	logs.Infof("terminal simulator serving %s with %d strategies", *dir, *strategies)
	if err := term.Run(ctx); err != nil {
		log.Fatalf("terminal simulator failed: %v", err)
	}
	logs.Info("terminal simulator stopped")
}
