package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"slices"
	"syscall"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"pxtorem/config"
	"pxtorem/convert"
	"pxtorem/misc"
	"pxtorem/state"
)

// setup runs after command line is parsed and before any subcommand: loads
// configuration, opens debug report and builds program logger.
func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if cmd.NArg() == 0 {
		// help will be printed, nothing to prepare
		return ctx, nil
	}

	var (
		env        = state.EnvFromContext(ctx)
		configFile = cmd.String("config")
		err        error
	)

	if env.Cfg, err = config.LoadConfiguration(configFile); err != nil {
		return ctx, fmt.Errorf("unable to prepare configuration: %w", err)
	}

	if cmd.Bool("debug") {
		if env.Rpt, err = env.Cfg.Reporting.Prepare(); err != nil {
			return ctx, fmt.Errorf("unable to prepare debug reporter: %w", err)
		}
		// keep effective configuration when it did not come from defaults only
		if len(configFile) > 0 {
			if data, err := config.Dump(env.Cfg); err == nil {
				env.Rpt.StoreData("config/"+filepath.Base(configFile), data)
			}
		}
	}

	// converted stylesheet may go to stdout, logs must not mix with it
	if streamsToStdout(cmd.Args().Slice()) {
		env.Cfg.Logging.KeepStdoutClean()
	}
	if env.Log, err = env.Cfg.Logging.Prepare(env.Rpt); err != nil {
		return ctx, fmt.Errorf("unable to prepare logs: %w", err)
	}
	env.AttachRunID()
	env.RedirectStdLog()

	env.Log.Debug("Program started",
		zap.Strings("args", os.Args),
		zap.String("ver", misc.GetVersion()),
		zap.String("runtime", runtime.Version()),
		zap.String("hash", misc.GetGitHash()))

	if env.Rpt != nil {
		env.Log.Info("Creating debug report", zap.String("location", env.Rpt.Name()))
	}
	if len(configFile) == 0 {
		env.Log.Debug("Using defaults (no configuration file)")
	}
	return ctx, nil
}

// streamsToStdout detects "convert ... -" invocation.
func streamsToStdout(args []string) bool {
	return len(args) > 1 && args[0] == "convert" && slices.Contains(args[1:], convert.StdStream)
}

// teardown syncs logs, closes debug report and cleans up crash output.
func teardown(ctx context.Context, cmd *cli.Command) (err error) {
	env := state.EnvFromContext(ctx)

	if env.Log != nil {
		env.Log.Debug("Program ended", zap.Duration("elapsed", env.Uptime()), zap.Strings("parsed args", cmd.Args().Slice()))
	}
	env.RestoreStdLog()

	// From here on logger is synced and may end up in the report. Any problem
	// goes directly to stderr.
	if env.Rpt != nil {
		if e := env.Rpt.Close(); e != nil {
			err = multierr.Append(err, fmt.Errorf("unable to close debug report: %w", e))
		}
	}

	if env.Cfg == nil || len(env.Cfg.Logging.FileLogger.Destination) == 0 {
		return err
	}
	// crash output is not needed anymore, drop it if nothing was written
	debug.SetCrashOutput(nil, debug.CrashOptions{})
	name := env.Cfg.Logging.PanicLogName()
	if fi, e := os.Stat(name); e == nil && fi.Size() == 0 {
		if e := os.Remove(name); e != nil {
			err = multierr.Append(err, fmt.Errorf("unable to remove empty panic log file '%s': %w", name, e))
		}
	}
	return err
}

// Subcommands return plain errors, cli.Exit() wrapping hides where error came
// from and buys nothing here. Errors are logged once, by onExitError, while
// logger is still alive; main only prints what was never logged.
var errLogged bool

func onExitError(ctx context.Context, _ *cli.Command, err error) {
	if log := state.EnvFromContext(ctx).Log; log != nil {
		log.Error("Program ended with error", zap.Error(err))
		errLogged = true
	}
}

func onUsageError(_ context.Context, _ *cli.Command, err error, _ bool) error {
	return err
}

func onCommandNotFound(ctx context.Context, _ *cli.Command, name string) {
	if log := state.EnvFromContext(ctx).Log; log != nil {
		log.Warn("Unknown command, nothing to do", zap.String("command", name))
	}
}

func convertCommand() *cli.Command {
	return &cli.Command{
		Name:         "convert",
		Usage:        "Rewrites px lengths in stylesheet(s) to rem",
		OnUsageError: onUsageError,
		Action:       convert.Run,
		ArgsUsage:    "SOURCE [DESTINATION]",
		Flags: []cli.Flag{
			&cli.FloatFlag{Name: "root-value", Aliases: []string{"rv"}, Usage: "root element font size in `PIXELS`, overrides configuration"},
			&cli.StringSliceFlag{Name: "prop-list", Aliases: []string{"pl"},
				Usage: "`PATTERN` of property names to convert (exact, *, prefix*, *suffix, *infix*, ! negates), may be repeated"},
			&cli.IntFlag{Name: "unit-precision", Aliases: []string{"up"}, Usage: "number of `DIGITS` after decimal point in rem values"},
			&cli.FloatFlag{Name: "min-pixel-value", Aliases: []string{"mpv"}, Usage: "do not convert lengths below `PIXELS`"},
			&cli.BoolFlag{Name: "media-query", Aliases: []string{"mq"}, Usage: "convert lengths in media query preludes"},
			&cli.BoolFlag{Name: "replace", Usage: "replace declarations instead of adding converted copies (use --replace=false to keep originals)"},
			&cli.IntFlag{Name: "workers", Aliases: []string{"w"}, Usage: "`NUMBER` of stylesheets converted concurrently, 0 - number of CPUs"},
			&cli.BoolFlag{Name: "nodirs", Aliases: []string{"nd"}, Usage: "when producing output do not keep input directory structure"},
			&cli.BoolFlag{Name: "overwrite", Aliases: []string{"ow"}, Usage: "continue even if destination exits, overwrite files"},
			&cli.BoolFlag{Name: "inplace", Aliases: []string{"ip"}, Usage: "rewrite stylesheets where they are, DESTINATION is ignored"},
			&cli.StringFlag{Name: "force-zip-cp",
				Usage: "Force `ENCODING` for ALL non UTF-8 file names in processed archives (see IANA.org for character set names)"},
		},
		CustomHelpTemplate: cli.CommandHelpTemplate + `
SOURCE:
    stylesheet(s) to process, one of:
        "-" - read stylesheet from STDIN, write result to STDOUT
        "[path_to_file]file.css" - single stylesheet
        "[path_to_directory]directory" - every stylesheet under directory, recursively (symbolic links are not followed)
        "[path_to_archive]archive.zip" - every stylesheet in archive
        "[path_to_archive]archive.zip[path_in_archive]" - stylesheets under path in archive

	Stylesheets are recognized by extension (processing.extensions in
	configuration). For archives a full copy is produced with stylesheets
	rewritten. Archives inside archives are left alone.

DESTINATION:
    directory to put results to, names are kept as in the source
    if absent - current working directory
`,
	}
}

func dumpConfigCommand() *cli.Command {
	return &cli.Command{
		Name:         "dumpconfig",
		Usage:        "Dumps either default or actual configuration (YAML)",
		OnUsageError: onUsageError,
		Action:       dumpConfig,
		ArgsUsage:    "DESTINATION",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "default", Usage: "output default embedded configuration"},
		},
		CustomHelpTemplate: cli.CommandHelpTemplate + `
DESTINATION:
    file name to write configuration to, if absent - STDOUT

Actual configuration is embedded defaults with configuration file values put
on top of them. Use --default to see just the defaults.
`,
	}
}

func main() {
	// Conversion runs on a worker pool, interrupt cancels the context so
	// workers stop picking up new stylesheets and the report still gets
	// written.
	ctx, stop := signal.NotifyContext(state.ContextWithEnv(context.Background()), os.Interrupt, syscall.SIGTERM)

	app := &cli.Command{
		Name:            misc.GetAppName(),
		Usage:           "converts pixel lengths in stylesheets to rem units",
		Version:         misc.GetVersion() + " (" + runtime.Version() + ") : " + misc.GetGitHash(),
		HideHelpCommand: true,
		Before:          setup,
		After:           teardown,
		OnUsageError:    onUsageError,
		ExitErrHandler:  onExitError,
		CommandNotFound: onCommandNotFound,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, DefaultText: "", Usage: "load configuration from `FILE` (YAML)"},
			&cli.BoolFlag{Name: "debug", Aliases: []string{"d"}, Usage: "changes program behavior to help troubleshooting, produces report archive"},
		},
		Commands: []*cli.Command{convertCommand(), dumpConfigCommand()},
	}

	err := app.Run(ctx, os.Args)
	stop()
	if err != nil {
		if !errLogged {
			// logger was either not ready yet or already closed
			fmt.Fprintf(os.Stderr, "Program ended with error: %v\n", err)
		}
		// nothing is deferred in main, so exiting here loses nothing
		os.Exit(1)
	}
}

func dumpConfig(ctx context.Context, cmd *cli.Command) error {
	env := state.EnvFromContext(ctx)
	if cmd.Args().Len() > 1 {
		env.Log.Warn("Malformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[1:]))
	}

	var (
		data []byte
		kind = "actual"
		err  error
	)
	if cmd.Bool("default") {
		kind = "default"
		data, err = config.Prepare()
	} else {
		data, err = config.Dump(env.Cfg)
	}
	if err != nil {
		return fmt.Errorf("unable to get configuration: %w", err)
	}

	fname := cmd.Args().Get(0)
	if len(fname) == 0 {
		env.Log.Debug("Writing configuration", zap.String("state", kind), zap.String("file", "STDOUT"))
		return writeConfig(cmd.Root().Writer, data)
	}

	env.Log.Debug("Writing configuration", zap.String("state", kind), zap.String("file", fname))
	f, err := os.Create(fname)
	if err != nil {
		return fmt.Errorf("unable to create destination file '%s': %w", fname, err)
	}
	if err := writeConfig(f, data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeConfig(w io.Writer, data []byte) error {
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("unable to write configuration: %w", err)
	}
	return nil
}
