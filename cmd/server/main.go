// Package main is the entry point for the Secret Santa server.
//
// The main package stays small: it reads configuration (flags and SANTA_
// environment variables), builds a logger and hands over to internal/server.
// Run with --help for the full list of settings.
package main

import (
	"context"
	"fmt"
	"os"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
