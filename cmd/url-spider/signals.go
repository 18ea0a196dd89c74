package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

const shutdownGrace = 30 * time.Second

// handleSignals cancels the run on the first SIGINT/SIGTERM and forces exit on a second signal or when
// the grace period runs out. The returned func stops signal handling.
func handleSignals(cancel context.CancelFunc, log *logrus.Logger) func() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("PANIC in signal handler: %v", r)
			}
		}()
		var sig os.Signal
		select {
		case sig = <-sigChan:
		case <-done:
			return
		}
		log.Warnf("Received signal: %v. Initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig = <-sigChan:
			log.Warnf("Received second signal: %v. Forcing exit.", sig)
			os.Exit(1)
		case <-time.After(shutdownGrace):
			log.Warn("Graceful shutdown period exceeded after signal. Forcing exit.")
			os.Exit(1)
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sigChan)
		close(done)
	}
}
