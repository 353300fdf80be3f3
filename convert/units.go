package convert

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"slices"
	"time"

	"github.com/maruel/natural"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	pcss "pxtorem/css"
	"pxtorem/pxtorem"
	"pxtorem/state"
)

// unit is a single stylesheet to be converted.
type unit struct {
	name   string // reported name, relative to the source
	match  string // path for exclude and root value rules, empty for stdin
	source string // file to read when data is not preloaded
	output string // file to write, empty when caller consumes result
	mode   os.FileMode

	data     []byte
	result   []byte // nil when nothing changed
	stats    pxtorem.Stats
	excluded bool
	err      error
}

type pipeline struct {
	env    *state.LocalEnv
	parser *pcss.Parser
	log    *zap.Logger
}

func newPipeline(env *state.LocalEnv, log *zap.Logger) *pipeline {
	return &pipeline{env: env, parser: pcss.NewParser(log), log: log}
}

// run converts units using bounded number of goroutines. Unit failures are
// kept in units, only cancellation is returned.
func (p *pipeline) run(ctx context.Context, units []*unit) error {
	workers := p.env.Cfg.Processing.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, u := range units {
		if u.err != nil {
			continue
		}
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			u.err = p.convert(u)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (p *pipeline) convert(u *unit) (rerr error) {
	log := p.log.With(zap.String("file", u.name))

	defer func(start time.Time) {
		if r := recover(); r != nil {
			log.Error("Conversion ended with panic", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			rerr = fmt.Errorf("conversion panic: %v", r)
			return
		}
		if rerr == nil {
			log.Debug("Conversion completed", zap.Duration("elapsed", time.Since(start)),
				zap.Int("converted", u.stats.Converted), zap.Bool("changed", u.result != nil))
		}
	}(time.Now())

	if u.data == nil && u.source != "" {
		data, err := os.ReadFile(u.source)
		if err != nil {
			return err
		}
		u.data = data
	}
	if err := checkText(u.data); err != nil {
		return err
	}

	rw := p.env.Rewriter
	if u.match != "" {
		var ok bool
		if rw, ok = rw.ForSource(u.match); !ok {
			log.Debug("Excluded from conversion, copying")
			u.excluded = true
			return p.write(u, u.data)
		}
	}

	if !hasPixels(u.data) {
		return p.write(u, u.data)
	}

	sheet := p.parser.Parse(u.data, u.name)
	for _, w := range sheet.Warnings {
		log.Warn("Stylesheet is malformed, keeping problem text as is", zap.String("problem", w))
	}
	u.stats = rw.RewriteSheet(sheet)

	out := u.data
	if u.stats.Converted > 0 || u.stats.Added > 0 {
		u.result = []byte(sheet.String())
		out = u.result
		if p.env.Rpt.StoreUnit(u.name, u.data, u.result) {
			p.env.Rpt.StoreData("units/"+u.name+"/tree", []byte(sheet.Dump()))
		}
	}
	return p.write(u, out)
}

func (p *pipeline) write(u *unit, data []byte) error {
	if u.output == "" {
		return nil
	}
	if p.env.InPlace {
		if u.result == nil {
			return nil
		}
		if err := p.env.Rpt.StoreCopy("originals/"+u.name, u.output); err != nil {
			p.log.Debug("Unable to keep original in report", zap.String("file", u.output), zap.Error(err))
		}
	}
	if err := prepareOutput(u.output, p.env, p.log); err != nil {
		return err
	}
	mode := u.mode
	if mode == 0 {
		mode = 0644
	}
	return writeOutput(u.output, data, mode)
}

// summarize logs totals and failures in natural name order and returns all
// unit errors combined.
func summarize(units []*unit, log *zap.Logger) error {
	slices.SortFunc(units, func(a, b *unit) int {
		switch {
		case natural.Less(a.name, b.name):
			return -1
		case natural.Less(b.name, a.name):
			return 1
		}
		return 0
	})

	var (
		total                     pxtorem.Stats
		changed, excluded, failed int
		errs                      error
	)
	for _, u := range units {
		switch {
		case u.err != nil:
			failed++
			log.Error("Unable to process file", zap.String("file", u.name), zap.Error(u.err))
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", u.name, u.err))
		case u.excluded:
			excluded++
		case u.result != nil:
			changed++
		}
		total.Add(u.stats)
	}

	log.Info("Conversion summary",
		zap.Int("files", len(units)),
		zap.Int("changed", changed),
		zap.Int("excluded", excluded),
		zap.Int("failed", failed),
		zap.Int("converted", total.Converted),
		zap.Int("added", total.Added),
		zap.Int("skipped", total.Skipped),
		zap.Int("below_minimum", total.BelowMinimum),
		zap.Int("unconvertible", total.Unconvertible))
	return errs
}

// hasPixels tells if parsing could change anything at all.
func hasPixels(data []byte) bool {
	return bytes.Contains(data, []byte("px"))
}
