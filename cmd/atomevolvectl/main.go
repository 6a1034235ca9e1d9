// atomevolvectl inspects and administers a candidate store: write a starter
// config, list the ledger, summarize run progress and plot the search
// history. The search itself runs through pkg/run inside the process that
// owns the relaxer.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/atomevolve/atomevolve-go/internal/constants"
	"github.com/atomevolve/atomevolve-go/internal/types"
	"github.com/atomevolve/atomevolve-go/pkg/config"
	"github.com/atomevolve/atomevolve-go/pkg/store"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(constants.ExitError)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "status":
		return runStatus(ctx, args[1:])
	case "ls":
		return runLs(ctx, args[1:])
	case "plot":
		return runPlot(ctx, args[1:])
	case "version":
		fmt.Printf("%s %s\n", constants.Name, constants.Version)
		return nil
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func runInit(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	path := fs.String("config", constants.DefaultConfigFile, "config file to write")
	force := fs.Bool("force", false, "overwrite an existing config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if !*force {
		if _, err := os.Stat(*path); err == nil {
			return fmt.Errorf("%s already exists (use -force to overwrite)", *path)
		}
	}

	if err := config.CreateDefaultConfig(*path); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", *path)
	return nil
}

func runStatus(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	backend := fs.String("store", constants.DefaultStoreBackend, "store backend: sqlite|memory")
	dbPath := fs.String("db", constants.DefaultStorePath, "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	st, err := openStore(ctx, *backend, *dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	meta, ok, err := st.GetMeta(ctx)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("store is empty (no run metadata)")
		return nil
	}

	all, err := st.All(ctx)
	if err != nil {
		return err
	}

	var relaxed, unrelaxed, failed int
	for _, cand := range all {
		switch cand.State {
		case types.StateRelaxed:
			relaxed++
		case types.StateFailed:
			failed++
		default:
			unrelaxed++
		}
	}

	fmt.Printf("atoms:      %d\n", len(meta.Stoichiometry))
	fmt.Printf("created:    %s\n", humanize.Time(meta.CreatedAt))
	fmt.Printf("candidates: %s (%d relaxed, %d pending, %d failed)\n",
		humanize.Comma(int64(len(all))), relaxed, unrelaxed, failed)

	ranked, err := st.AllRelaxed(ctx)
	if err != nil {
		return err
	}
	if len(ranked) > 0 {
		best := ranked[0]
		fmt.Printf("best:       %s  raw_score=%.6f  origin=%s  gen=%d\n",
			shortID(best.ID), best.RawScore, best.Origin, best.Generation)
	}
	return nil
}

func runLs(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("ls", flag.ContinueOnError)
	backend := fs.String("store", constants.DefaultStoreBackend, "store backend: sqlite|memory")
	dbPath := fs.String("db", constants.DefaultStorePath, "sqlite database path")
	state := fs.String("state", "", "filter by state: unrelaxed|relaxed|failed")
	limit := fs.Int("limit", 0, "show at most N candidates (0 = all)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	st, err := openStore(ctx, *backend, *dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	var cands []*types.Candidate
	if *state == string(types.StateRelaxed) {
		cands, err = st.AllRelaxed(ctx)
	} else {
		cands, err = st.All(ctx)
	}
	if err != nil {
		return err
	}

	if *state != "" && *state != string(types.StateRelaxed) {
		filtered := cands[:0]
		for _, cand := range cands {
			if string(cand.State) == *state {
				filtered = append(filtered, cand)
			}
		}
		cands = filtered
	}
	if *limit > 0 && len(cands) > *limit {
		cands = cands[:*limit]
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATE\tRAW SCORE\tGEN\tORIGIN\tUPDATED")
	for _, cand := range cands {
		score := "-"
		if cand.State == types.StateRelaxed {
			score = fmt.Sprintf("%.6f", cand.RawScore)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			shortID(cand.ID), cand.State, score, cand.Generation,
			cand.Origin, humanize.Time(cand.UpdatedAt))
	}
	return w.Flush()
}

func openStore(ctx context.Context, backend, path string) (store.Store, error) {
	st, err := store.NewStore(backend, path)
	if err != nil {
		return nil, err
	}
	if err := st.Init(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

// historyPoints orders relaxed candidates by creation time and tracks the
// running best raw score
func historyPoints(cands []*types.Candidate) (scores, best []float64) {
	ordered := append([]*types.Candidate(nil), cands...)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	scores = make([]float64, len(ordered))
	best = make([]float64, len(ordered))
	for i, cand := range ordered {
		scores[i] = cand.RawScore
		if i == 0 || cand.RawScore > best[i-1] {
			best[i] = cand.RawScore
		} else {
			best[i] = best[i-1]
		}
	}
	return scores, best
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: atomevolvectl <init|status|ls|plot|version> [flags]", msg)
}
