package main

import (
	"context"
	"flag"
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/atomevolve/atomevolve-go/internal/constants"
)

func runPlot(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("plot", flag.ContinueOnError)
	backend := fs.String("store", constants.DefaultStoreBackend, "store backend: sqlite|memory")
	dbPath := fs.String("db", constants.DefaultStorePath, "sqlite database path")
	out := fs.String("out", "progress.png", "output image path")
	title := fs.String("title", "Search progress", "plot title")
	if err := fs.Parse(args); err != nil {
		return err
	}

	st, err := openStore(ctx, *backend, *dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	relaxed, err := st.AllRelaxed(ctx)
	if err != nil {
		return err
	}
	if len(relaxed) == 0 {
		return fmt.Errorf("nothing to plot: store has no relaxed candidates")
	}

	scores, best := historyPoints(relaxed)

	p := plot.New()
	p.Title.Text = *title
	p.X.Label.Text = "Relaxation"
	p.Y.Label.Text = "Raw score"
	p.Add(plotter.NewGrid())

	scorePts := make(plotter.XYs, len(scores))
	bestPts := make(plotter.XYs, len(best))
	for i := range scores {
		scorePts[i].X = float64(i + 1)
		scorePts[i].Y = scores[i]
		bestPts[i].X = float64(i + 1)
		bestPts[i].Y = best[i]
	}

	scatter, err := plotter.NewScatter(scorePts)
	if err != nil {
		return err
	}
	scatter.GlyphStyle.Radius = vg.Points(2)
	scatter.GlyphStyle.Color = color.RGBA{R: 90, G: 90, B: 90, A: 255}

	bestLine, err := plotter.NewLine(bestPts)
	if err != nil {
		return err
	}
	bestLine.LineStyle.Width = vg.Points(1.5)
	bestLine.LineStyle.Color = color.RGBA{R: 200, A: 255}

	p.Add(scatter, bestLine)
	p.Legend.Add("relaxations", scatter)
	p.Legend.Add("running best", bestLine)
	p.Legend.Top = true

	if err := p.Save(6*vg.Inch, 4*vg.Inch, *out); err != nil {
		return err
	}
	fmt.Printf("wrote %s (%d relaxations)\n", *out, len(scores))
	return nil
}
