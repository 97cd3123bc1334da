package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// setupSignalHandler returns a context cancelled on SIGINT, SIGTERM or
// SIGPIPE. A run in flight stops at the next node and skips deletion
// reporting. A second SIGINT or SIGTERM exits immediately.
func setupSignalHandler(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGPIPE)

	go func() {
		var sig os.Signal
		select {
		case <-ctx.Done():
			signal.Stop(sigChan)
			return
		case sig = <-sigChan:
		}

		cancel()
		// SIGPIPE means the reader of our output went away
		if sig == syscall.SIGPIPE {
			signal.Stop(sigChan)
			return
		}
		fmt.Fprintf(os.Stderr, "\nReceived signal: %v\n", sig)
		fmt.Fprintf(os.Stderr, "Initiating graceful shutdown...\n")

		sig = <-sigChan
		fmt.Fprintf(os.Stderr, "\nReceived second signal: %v, exiting\n", sig)
		os.Exit(130)
	}()

	return ctx, cancel
}
