package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"coursebot/internal/config"
	"coursebot/internal/provider"

	"github.com/spf13/cobra"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your coursebot installation",
		Long: `Verifies that the configuration, index, embedder and model providers are
correctly set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := config.ExpandPath(resolveConfigPath())
			fmt.Printf("Coursebot Doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			var passed, failed, warned int

			// 1. Config file exists and validates
			cfg, err := config.Load(cfgPath)
			switch {
			case err == nil:
				printPass("Config", cfgPath)
				passed++
			case errors.Is(err, os.ErrNotExist):
				printWarn("Config", fmt.Sprintf("not found at %s, using defaults (run 'coursebot init')", cfgPath))
				warned++
				cfg = config.Defaults()
				cfg.VectorStore.DBPath = config.ExpandPath(cfg.VectorStore.DBPath)
			default:
				printFail("Config", err.Error())
				failed++
				fmt.Printf("\n%d passed, %d failed\n", passed, failed)
				return fmt.Errorf("invalid config")
			}

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()

			// 2. Index opens and holds courses
			a, err := openApp(ctx, cfg, false)
			if err != nil {
				printFail("Index", err.Error())
				failed++
			} else {
				defer a.Close()
				n, err := a.store.CourseCount(ctx)
				switch {
				case err != nil:
					printFail("Index", err.Error())
					failed++
				case n == 0:
					printWarn("Index", "no courses yet (run 'coursebot ingest <dir>')")
					warned++
				default:
					printPass("Index", fmt.Sprintf("%d course(s) [%s]", n, cfg.VectorStore.Backend))
					passed++
				}
			}

			// 3. Embedder answers
			if emb, err := newEmbedder(cfg.Embedding); err != nil {
				printFail("Embedder", fmt.Sprintf("%s: %v", cfg.Embedding.Provider, err))
				failed++
			} else if _, err := emb.Embed(ctx, "doctor"); err != nil {
				printFail("Embedder", fmt.Sprintf("%s: %v", cfg.Embedding.Provider, err))
				failed++
			} else {
				printPass("Embedder", cfg.Embedding.Provider)
				passed++
			}

			// 4. Providers
			factory := provider.NewFactory(cfg, logger)
			enabled := 0
			for name, p := range cfg.Providers {
				if !p.Enabled {
					continue
				}
				enabled++
				prov, err := factory.Get(name)
				if err != nil {
					printFail("Provider: "+name, err.Error())
					failed++
					continue
				}
				if err := prov.Healthy(ctx); err != nil {
					printWarn("Provider: "+name, fmt.Sprintf("unhealthy: %v", err))
					warned++
				} else {
					printPass("Provider: "+name, "healthy")
					passed++
				}
			}
			if enabled == 0 {
				printFail("Providers", "no providers enabled")
				failed++
			}

			// 5. Log file writable
			if cfg.General.LogFile != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
					printWarn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
					warned++
				} else {
					printPass("Log file", cfg.General.LogFile)
					passed++
				}
			}

			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			return nil
		},
	}
}

func printPass(check, detail string) {
	fmt.Printf("  %s %-20s %s\n", boldGreen("[PASS]"), check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  %s %-20s %s\n", red("[FAIL]"), check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
