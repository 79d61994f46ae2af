package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	command := os.Args[1]

	var code int
	switch command {
	case "release":
		code = runRelease(ctx, os.Args[2:])
	case "run":
		code = runInstance(ctx, os.Args[2:])
	case "targets":
		code = runTargets(ctx, os.Args[2:])
	case "fetch":
		code = runFetch(ctx, os.Args[2:])
	case "verify-static":
		code = runVerifyStatic(ctx, os.Args[2:])
	case "validate-release":
		code = runValidateRelease(ctx, os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		code = 2
	}
	stop()
	os.Exit(code)
}

func printUsage() {
	fmt.Println(`distill - Release build orchestrator for piconfig2uboot

Usage:
  distill <command> [options]

Commands:
  release           Run every pipeline instance concurrently
  run               Run a single pipeline instance
  targets           List declared build targets and instances
  fetch             Download a published artifact from the store
  verify-static     Check that binaries carry no dynamic dependencies
  validate-release  Check that a revision's release is complete

Use "distill <command> --help" for more information about a command.`)
}
