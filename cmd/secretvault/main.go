package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/awnumar/memguard"

	"github.com/Hussein-Mazeh/secretvault/internal/app"
	"github.com/Hussein-Mazeh/secretvault/internal/config"
	"github.com/Hussein-Mazeh/secretvault/internal/vaulterr"
)

var (
	verbose    = flag.Bool("v", false, "verbose diagnostics on stderr")
	configPath = flag.String("config", "", "YAML config file (overrides $"+config.EnvConfig+")")
	vaultPath  = flag.String("vault", "", "vault file (overrides $"+config.EnvPath+")")
)

func main() {
	flag.BoolVar(verbose, "verbose", false, "same as -v")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: secretvault [-v] [-config file] [-vault path] <command> [args]")
		fmt.Fprintln(os.Stderr, "Run 'secretvault help' for the command list.")
	}
	flag.Parse()

	memguard.CatchInterrupt()

	if err := disableCoreDumps(); err != nil && *verbose {
		fmt.Fprintf(os.Stderr, "warning: core dumps still enabled: %v\n", err)
	}

	code := run(*verbose)
	memguard.Purge()
	os.Exit(code)
}

func run(verbose bool) int {
	if *configPath != "" {
		os.Setenv(config.EnvConfig, *configPath)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		return 1
	}
	if *vaultPath != "" {
		cfg.Vault.Path = *vaultPath
	}

	err = app.Run(context.Background(), app.Options{
		Verbose:    verbose,
		Args:       flag.Args(),
		Config:     cfg,
		Passphrase: os.Getenv(config.EnvPassphrase),
	})
	return handleError(err)
}

func handleError(err error) int {
	class := vaulterr.Classify(err)
	switch class {
	case vaulterr.Success:
	case vaulterr.UserError:
		fmt.Fprintln(os.Stderr, err)
	default:
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	return class.ExitCode()
}
