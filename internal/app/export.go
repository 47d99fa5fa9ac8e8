package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"uah-rates-bot/internal/chart"
	"uah-rates-bot/internal/model"
)

// ExportOptions hold parameters for exporting rate history.
type ExportOptions struct {
	Currency  model.Currency
	Source    model.Source
	Hours     int
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// Export renders stored history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	rates := a.newRates(a.newAggregator(), store)
	quotes, err := rates.GetHistory(ctx, opts.Currency, opts.Source, opts.Hours)
	if err != nil {
		return err
	}
	if len(quotes) == 0 {
		a.Logger.Info().Str("currency", string(opts.Currency)).Str("source", string(opts.Source)).Msg("no history found for export window")
		return nil
	}

	downsampled := chart.Downsample(quotes, opts.MaxPoints)
	a.Logger.Info().Int("total", len(quotes)).Int("exported", len(downsampled)).Msg("exporting history")

	if opts.CSVPath != "" {
		if err := a.writeFile(opts.CSVPath, func(f *os.File) error {
			return chart.WriteCSV(f, downsampled, a.Config.Location())
		}); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		pngOpts := chart.Options{
			Currency: opts.Currency,
			Period:   chart.PeriodFor(opts.Hours),
			Location: a.Config.Location(),
			Width:    1280,
			Height:   720,
		}
		if err := a.writeFile(opts.PNGPath, func(f *os.File) error {
			return chart.RenderPNG(f, downsampled, pngOpts)
		}); err != nil {
			return err
		}
	}

	return nil
}

func (a *App) writeFile(path string, write func(*os.File) error) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(file); err != nil {
		_ = file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	a.Logger.Info().Str("path", path).Msg("export written")
	return nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
