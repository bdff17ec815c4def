package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/elsehow/civrealm/internal/analysis/report"
	"github.com/elsehow/civrealm/internal/config"
	"github.com/elsehow/civrealm/internal/persistence/indexdb"
	"github.com/elsehow/civrealm/internal/persistence/reportio"
	"github.com/elsehow/civrealm/internal/persistence/store"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to reports.yaml (optional)")
		recording  = flag.String("recording", "", "recording directory (overrides config)")
		output     = flag.String("output", "", "output directory (overrides config)")
		ruleset    = flag.String("ruleset", "", "path to nations ruleset json (overrides config)")
		dbPath     = flag.String("db", "", "sqlite index path (overrides config, empty in config disables)")
		turnsArg   = flag.String("turns", "", "comma-separated target turns (overrides config report_turns)")
		categories = flag.String("categories", "", "comma-separated category names (default: all)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[report] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	if *recording != "" {
		cfg.RecordingDir = *recording
	}
	if *output != "" {
		cfg.OutputDir = *output
	}
	if *ruleset != "" {
		cfg.RulesetPath = *ruleset
	}
	if *dbPath != "" {
		cfg.IndexDB = *dbPath
	}
	if *categories != "" {
		cfg.Categories = splitList(*categories)
	}

	turns := cfg.ReportTurns
	if *turnsArg != "" {
		turns, err = parseTurns(*turnsArg)
		if err != nil {
			logger.Fatalf("bad -turns: %v", err)
		}
	}

	st, err := store.Open(cfg.RecordingDir, cfg.RulesetPath)
	if err != nil {
		logger.Fatalf("open recording: %v", err)
	}
	sum := st.Summary()
	logger.Printf("recording %s: %d turns (%d..%d), %d files",
		sum.RecordingDir, sum.TotalTurns, sum.FirstTurn, sum.LastTurn, sum.TotalFiles)
	if sum.TotalTurns == 0 {
		logger.Fatalf("no state records found in %s", cfg.RecordingDir)
	}

	if len(turns) == 0 {
		turns = []int{sum.LastTurn}
	}

	var idx *indexdb.SQLiteIndex
	if cfg.IndexDB != "" {
		idx, err = indexdb.OpenSQLite(cfg.IndexDB)
		if err != nil {
			logger.Printf("index db unavailable, continuing without: %v", err)
			idx = nil
		} else {
			defer idx.Close()
		}
	}

	asm := report.New(st, logger)
	ctx := context.Background()

	failed := 0
	for _, turn := range turns {
		doc, err := asm.Generate(ctx, turn, cfg.Categories)
		if err != nil {
			var incomplete *report.IncompleteDataError
			if errors.As(err, &incomplete) {
				logger.Printf("turn %d: missing turns %v, skipping", turn, incomplete.Missing)
			} else {
				logger.Printf("turn %d: %v", turn, err)
			}
			failed++
			continue
		}

		path := reportio.DocumentPath(cfg.OutputDir, turn)
		if err := reportio.WriteDocument(path, doc); err != nil {
			logger.Printf("turn %d: write: %v", turn, err)
			failed++
			continue
		}
		logger.Printf("turn %d: %s (%d events, %d warnings, status=%s)",
			turn, path, len(doc.Events), len(doc.Warnings), doc.Status)

		if idx != nil {
			idx.RecordReport(indexdb.ReportRow{
				TargetTurn: turn,
				Path:       path,
				Status:     string(doc.Status),
				Categories: len(doc.Categories),
				Events:     len(doc.Events),
				Warnings:   len(doc.Warnings),
			})
		}
	}

	if failed > 0 {
		logger.Printf("%d of %d reports failed", failed, len(turns))
		os.Exit(1)
	}
}

func parseTurns(arg string) ([]int, error) {
	var out []int
	for _, part := range splitList(arg) {
		t, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("turn %q: %w", part, err)
		}
		if t < 0 {
			return nil, fmt.Errorf("turn must be >= 0, got %d", t)
		}
		out = append(out, t)
	}
	return out, nil
}

func splitList(arg string) []string {
	var out []string
	for _, part := range strings.Split(arg, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
