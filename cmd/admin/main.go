package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/elsehow/civrealm/internal/persistence/indexdb"
	"github.com/elsehow/civrealm/internal/persistence/reportio"
	"github.com/elsehow/civrealm/internal/persistence/store"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "state":
			stateCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "doc":
			docCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dir := fs.String("recording", "./recordings", "recording directory")
	_ = fs.Parse(args)

	st, err := store.Open(*dir, "")
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	sum := st.Summary()
	fmt.Printf("recording=%s turns=%d files=%d first=%d last=%d\n",
		sum.RecordingDir, sum.TotalTurns, sum.TotalFiles, sum.FirstTurn, sum.LastTurn)
	if sum.TotalTurns == 0 {
		return
	}
	available := st.AvailableTurns(sum.FirstTurn, sum.LastTurn)
	missing := make([]int, 0)
	next := 0
	for t := sum.FirstTurn; t <= sum.LastTurn; t++ {
		if next < len(available) && available[next] == t {
			next++
			continue
		}
		missing = append(missing, t)
	}
	if len(missing) > 0 {
		fmt.Printf("gaps: %v\n", missing)
	}
}

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	dir := fs.String("recording", "./recordings", "recording directory")
	ruleset := fs.String("ruleset", "", "path to nations ruleset json (optional)")
	turn := fs.Int("turn", -1, "turn to inspect")
	_ = fs.Parse(args)

	if *turn < 0 {
		fmt.Fprintln(os.Stderr, "missing -turn")
		os.Exit(2)
	}
	st, err := store.Open(*dir, *ruleset)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	snap, err := st.GetState(*turn)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load:", err)
		os.Exit(1)
	}
	rs, err := st.Ruleset()
	if err != nil {
		fmt.Fprintln(os.Stderr, "ruleset:", err)
		os.Exit(1)
	}

	fmt.Printf("turn=%d step=%d players=%d cities=%d units=%d map=%dx%d\n",
		snap.Turn, snap.Step, len(snap.Players), len(snap.Cities), len(snap.Units),
		snap.Map.XSize, snap.Map.YSize)
	for _, pid := range snap.PlayerIDs() {
		p := snap.Players[pid]
		fmt.Printf("  %-20s id=%d score=%.0f gold=%.0f cities=%d units=%d techs=%d\n",
			rs.PlayerName(snap, pid), pid, p.Score, p.Gold,
			snap.CityCount(pid), snap.UnitCount(pid, false), len(snap.Techs[pid]))
	}
	for _, w := range st.Warnings() {
		fmt.Printf("  warning: %s\n", w)
	}
}

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dbPath := fs.String("db", "./index/reports.db", "sqlite index path")
	_ = fs.Parse(args)

	idx, err := indexdb.OpenSQLite(*dbPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open db:", err)
		os.Exit(1)
	}
	defer idx.Close()

	turns, err := idx.RecordedTurns(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	sort.Ints(turns)
	fmt.Printf("indexed turns: %d\n", len(turns))
	if len(turns) > 0 {
		fmt.Printf("range: %d..%d\n", turns[0], turns[len(turns)-1])
	}
}

func docCmd(args []string) {
	fs := flag.NewFlagSet("doc", flag.ExitOnError)
	path := fs.String("path", "", "report document path")
	_ = fs.Parse(args)

	if *path == "" {
		fmt.Fprintln(os.Stderr, "missing -path")
		os.Exit(2)
	}
	doc, err := reportio.ReadDocument(*path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}

	fmt.Printf("target_turn=%d status=%s turns_analyzed=%d events=%d warnings=%d\n",
		doc.TargetTurn, doc.Status, len(doc.TurnsAnalyzed), len(doc.Events), len(doc.Warnings))
	for name, res := range doc.Categories {
		if res.Error != "" {
			fmt.Printf("  category %s: FAILED: %s\n", name, res.Error)
		}
	}
	for _, r := range doc.Rankings {
		civ := doc.Civilizations[r.PlayerID]
		fmt.Printf("  #%d %-20s score=%.0f\n", r.Rank, civ.Name, r.Score)
	}
	for _, e := range doc.Events {
		fmt.Printf("  [%d] %s: %s\n", e.Turn, e.Category, e.Description)
	}
}
