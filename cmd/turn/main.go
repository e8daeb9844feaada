// Package main provides the tripdesk-turn CLI: ask the trip assistant a
// question, hold a chat session, or list the trip catalog from a terminal.
//
// Usage:
//
//	tripdesk-turn ask "Is pickup included in the Kashmir trip?"
//	tripdesk-turn ask --json --session s1 "What does it cost?"
//	tripdesk-turn chat
//	tripdesk-turn trips
//	tripdesk-turn version
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
