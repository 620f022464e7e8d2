// Package main starts the partners real-time service and handles termination.
//
// The process is a transport adapter around connection lifecycle and
// partnership negotiation; durable account state stays in storage.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	partnerscmd "github.com/partnerhub/partnerhub/internal/cmd/partners"
)

func main() {
	cfg, err := partnerscmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[PARTNERS] ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := partnerscmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
