package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/BroWo1/fact-check/config"
	"github.com/BroWo1/fact-check/internal/store"
)

func main() {
	var root = &cobra.Command{
		Use:   "factcheck",
		Short: "Submit claims for analysis and track sessions through completion",
	}

	root.AddCommand(checkCMD(), sessionsCMD(), resumeCMD(), resultsCMD(), mockAPICMD())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// deps bundles what every command needs after config load.
type deps struct {
	cfg    *config.Config
	store  store.Store
	logger *log.Logger
}

func buildDeps(cfgPath string) (*deps, error) {
	cfg := config.LoadConfig(cfgPath)
	st, err := store.New(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("opening session store: %w", err)
	}
	return &deps{
		cfg:    cfg,
		store:  st,
		logger: log.New(log.Writer(), "[FACTCHECK] ", log.LstdFlags),
	}, nil
}
