package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	zip "github.com/hidez8891/zip"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/ianaindex"

	"pxtorem/archive"
	"pxtorem/config"
	"pxtorem/pxtorem"
	"pxtorem/state"
)

// StdStream is the source name which makes convert read stdin and write
// stdout.
const StdStream = "-"

func Run(ctx context.Context, cmd *cli.Command) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("convert")

	src := cmd.Args().Get(0)
	if len(src) == 0 {
		return errors.New("no input source has been specified")
	}

	applyOverrides(cmd, env.Cfg)
	if env.Rewriter, err = pxtorem.New(env.Cfg.Transform.Options(), log); err != nil {
		return fmt.Errorf("unable to prepare rewriter: %w", err)
	}

	if src == StdStream {
		if cmd.Args().Len() > 1 {
			log.Warn("Mailformed command line, destination is ignored for stream input", zap.Strings("ignoring", cmd.Args().Slice()[1:]))
		}
		return processStream(ctx, cmd.Root().Reader, cmd.Root().Writer, log)
	}

	if src, err = filepath.Abs(src); err != nil {
		return err
	}

	env.NoDirs, env.Overwrite, env.InPlace = cmd.Bool("nodirs"), cmd.Bool("overwrite"), cmd.Bool("inplace")

	var dst string
	if env.InPlace {
		if cmd.Args().Len() > 1 {
			log.Warn("Mailformed command line, destination is ignored for in place conversion", zap.Strings("ignoring", cmd.Args().Slice()[1:]))
		}
	} else {
		dst = cmd.Args().Get(1)
		if len(dst) == 0 {
			if dst, err = os.Getwd(); err != nil {
				return fmt.Errorf("unable to get working directory: %w", err)
			}
		}
		if dst, err = filepath.Abs(dst); err != nil {
			return err
		}
		if cmd.Args().Len() > 2 {
			log.Warn("Mailformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[2:]))
		}
	}

	// Since zip "standard" does not define file name encoding we may need to
	// force archaic code page for old archives
	if cp := cmd.String("force-zip-cp"); len(cp) > 0 {
		env.CodePage, err = ianaindex.IANA.Encoding(cp)
		if err != nil || env.CodePage == nil {
			log.Warn("Unknown character set name. Ignoring...", zap.String("charset", cp), zap.Error(err))
			env.CodePage = nil
		} else {
			n, _ := ianaindex.IANA.Name(env.CodePage)
			log.Debug("Forcefully converting all non UTF-8 file names in archives", zap.String("charset", n))
		}
	}

	opts := env.Rewriter.Options()
	log.Info("Processing starting", zap.String("source", src), zap.String("destination", dst),
		zap.Float64("root_value", opts.RootValue), zap.Bool("replace", opts.Replace), zap.Bool("inplace", env.InPlace))
	defer func(start time.Time) {
		log.Info("Processing completed", zap.Duration("elapsed", time.Since(start)))
	}(time.Now())

	return process(ctx, src, dst, log)
}

// applyOverrides puts explicitly set command line values on top of
// configuration.
func applyOverrides(cmd *cli.Command, cfg *config.Config) {
	tc := &cfg.Transform
	if cmd.IsSet("root-value") {
		tc.RootValue = cmd.Float("root-value")
	}
	if cmd.IsSet("prop-list") {
		tc.PropList = cmd.StringSlice("prop-list")
	}
	if cmd.IsSet("unit-precision") {
		tc.UnitPrecision = cmd.Int("unit-precision")
	}
	if cmd.IsSet("min-pixel-value") {
		tc.MinPixelValue = cmd.Float("min-pixel-value")
	}
	if cmd.IsSet("media-query") {
		tc.MediaQuery = cmd.Bool("media-query")
	}
	if cmd.IsSet("replace") {
		tc.Replace = cmd.Bool("replace")
	}
	if cmd.IsSet("workers") {
		cfg.Processing.Workers = cmd.Int("workers")
	}
}

// processStream converts single stylesheet from r to w. Output is always
// written, unchanged input included.
func processStream(ctx context.Context, r io.Reader, w io.Writer, log *zap.Logger) error {
	env := state.EnvFromContext(ctx)

	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("unable to read input: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	u := &unit{name: "<stdin>", data: data}
	u.err = newPipeline(env, log).convert(u)
	if err := summarize([]*unit{u}, log); err != nil {
		return err
	}

	out := u.data
	if u.result != nil {
		out = u.result
	}
	if _, err := w.Write(out); err != nil {
		return fmt.Errorf("unable to write output: %w", err)
	}
	return nil
}

// process handles the core conversion logic independently of CLI framework. It
// determines the input type (directory, archive, or single file) and processes
// accordingly.
func process(ctx context.Context, src, dst string, log *zap.Logger) error {
	env := state.EnvFromContext(ctx)
	p := newPipeline(env, log)

	var head, tail string
	for head = src; len(head) != 0; head, tail = filepath.Split(head) {
		if err := ctx.Err(); err != nil {
			return err
		}

		head = strings.TrimSuffix(head, string(filepath.Separator))

		fi, err := os.Stat(head)
		if err != nil {
			// does not exists - probably path in archive
			continue
		}

		if fi.Mode().IsDir() {
			if len(tail) != 0 {
				// directory cannot have tail - it would be simple file
				return fmt.Errorf("input source was not found (%s) => (%s)", head, strings.TrimPrefix(src, head))
			}
			return p.processDir(ctx, head, dst)
		}

		if !fi.Mode().IsRegular() {
			return fmt.Errorf("unexpected path mode for (%s) => (%s)", head, strings.TrimPrefix(src, head))
		}

		arc, err := isArchiveFile(head)
		if err != nil {
			// checking format - but cannot open target file
			return fmt.Errorf("unable to check archive type: %w", err)
		}
		if arc {
			if env.InPlace {
				return errors.New("in place conversion is not supported for archives")
			}
			// we need to look inside to see if path makes sense
			pathIn := filepath.ToSlash(strings.TrimPrefix(strings.TrimPrefix(src, head), string(filepath.Separator)))
			return p.processArchive(ctx, head, pathIn, "", dst)
		}

		if len(tail) == 0 && isStyleFile(head, env.Cfg.Processing.Extensions) {
			u := &unit{name: filepath.Base(head), match: head, source: head, mode: fi.Mode().Perm()}
			if env.InPlace {
				u.output = head
			} else {
				u.output = buildOutputPath(u.name, dst, env)
			}
			if err := p.run(ctx, []*unit{u}); err != nil {
				return err
			}
			return summarize([]*unit{u}, log)
		}
		return fmt.Errorf("input was not recognized as stylesheet (%s)", head)
	}
	return fmt.Errorf("input source was not found (%s)", src)
}

// processDir walks directory tree collecting stylesheets, converts them and
// converts archives it finds along the way.
func (p *pipeline) processDir(ctx context.Context, dir, dst string) error {
	var (
		units    []*unit
		archives []string
		outputs  = make(map[string]string)
	)

	err := filepath.WalkDir(dir, func(name string, d fs.DirEntry, err error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err != nil {
			p.log.Warn("Skipping path", zap.String("path", name), zap.Error(err))
			return nil
		}
		if d.IsDir() {
			if name == dst && name != dir {
				// do not pick up our own results
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel := strings.TrimPrefix(strings.TrimPrefix(name, dir), string(filepath.Separator))

		arc, err := isArchiveFile(name)
		if err != nil {
			p.log.Warn("Skipping file", zap.String("file", name), zap.Error(err))
			return nil
		}
		if arc {
			archives = append(archives, name)
			return nil
		}
		if !isStyleFile(name, p.env.Cfg.Processing.Extensions) {
			p.log.Debug("Skipping file, not recognized as stylesheet or archive", zap.String("file", name))
			return nil
		}

		u := &unit{name: filepath.ToSlash(rel), match: name, source: name, output: name}
		if info, err := d.Info(); err == nil {
			u.mode = info.Mode().Perm()
		}
		if !p.env.InPlace {
			u.output = buildOutputPath(rel, dst, p.env)
			if prev, exists := outputs[u.output]; exists {
				u.err = fmt.Errorf("output name collides with %s", prev)
			} else {
				outputs[u.output] = u.name
			}
		}
		units = append(units, u)
		return nil
	})
	if err != nil {
		return err
	}

	if len(units) == 0 && len(archives) == 0 {
		p.log.Debug("Nothing to process", zap.String("dir", dir))
		return nil
	}

	if err := p.run(ctx, units); err != nil {
		return err
	}
	errs := summarize(units, p.log.With(zap.String("dir", dir)))

	for _, name := range archives {
		if p.env.InPlace {
			p.log.Warn("Skipping archive, in place conversion is not supported for archives", zap.String("file", name))
			continue
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(name, dir), string(filepath.Separator))
		if err := p.processArchive(ctx, name, "", filepath.Dir(rel), dst); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", filepath.ToSlash(rel), err))
		}
	}
	return errs
}

// processArchive converts stylesheets inside archive under "pathIn" and writes
// copy of the whole archive into destination directory ("pathOut" is relative
// directory there when archive was found while walking directory).
func (p *pipeline) processArchive(ctx context.Context, name, pathIn, pathOut, dst string) error {
	log := p.log.With(zap.String("archive", name))

	output := buildArchiveOutputPath(name, determineOutputDir(filepath.Join(pathOut, filepath.Base(name)), dst, p.env))
	if output == name {
		return fmt.Errorf("output archive would overwrite source: %s", name)
	}

	var (
		units   []*unit
		byEntry = make(map[string]*unit)
		base    = filepath.ToSlash(filepath.Join(pathOut, filepath.Base(name)))
	)
	err := archive.Walk(name, pathIn, func(arc string, f *zip.File) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		pathInArchive := p.decodeName(f)
		if !isStyleFile(pathInArchive, p.env.Cfg.Processing.Extensions) {
			return nil
		}

		u := &unit{
			name:  path.Join(base, pathInArchive),
			match: filepath.ToSlash(arc) + "/" + pathInArchive,
		}
		u.data, u.err = readEntry(f)
		units = append(units, u)
		byEntry[f.Name] = u
		return nil
	})
	if err != nil {
		return err
	}

	if len(units) == 0 {
		log.Debug("Nothing to process", zap.String("path", pathIn))
		return nil
	}

	if err := p.run(ctx, units); err != nil {
		return err
	}
	errs := summarize(units, log)

	if err := prepareOutput(output, p.env, log); err != nil {
		return multierr.Append(errs, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(output), "."+filepath.Base(output)+".*")
	if err != nil {
		return multierr.Append(errs, err)
	}
	tmp.Close()

	err = archive.Rewrite(name, tmp.Name(), func(f *zip.File) ([]byte, error) {
		if u, ok := byEntry[f.Name]; ok && u.err == nil {
			return u.result, nil
		}
		return nil, nil
	})
	if err == nil {
		err = os.Rename(tmp.Name(), output)
	}
	if err != nil {
		os.Remove(tmp.Name())
		return multierr.Append(errs, fmt.Errorf("unable to write archive: %w", err))
	}
	log.Debug("Archive written", zap.String("to", output))
	return errs
}

// decodeName returns entry name, forcing requested code page on names not
// marked as UTF-8.
func (p *pipeline) decodeName(f *zip.File) string {
	name, cp := f.Name, p.env.CodePage
	if cp == nil || !f.FileHeader.NonUTF8 {
		return name
	}
	n, err := cp.NewDecoder().String(name)
	if err != nil {
		cs, _ := ianaindex.IANA.Name(cp)
		p.log.Warn("Unable to convert archive name from specified encoding",
			zap.String("charset", cs), zap.String("path", name), zap.Error(err))
		return name
	}
	return n
}

func readEntry(f *zip.File) ([]byte, error) {
	r, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
