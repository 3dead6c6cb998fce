package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/piper/internal/config"
	"github.com/Iron-Ham/piper/internal/errors"
	"github.com/Iron-Ham/piper/internal/event"
	"github.com/Iron-Ham/piper/internal/logging"
	"github.com/Iron-Ham/piper/internal/pipeline"
)

// Exit codes for outcomes that have no stage exit status.
const (
	exitNoStage     = 127
	exitInterrupted = 130
)

var runCmd = &cobra.Command{
	Use:   "run [flags] [-- command args '|' command args ...]",
	Short: "Run a pipeline",
	Long: `Run a pipeline given on the command line or in a definition file.

Stages are separated by a literal '|' argument. A stage may redirect its own
stdin, stdout or stderr with '<', '>' or '2>' followed by a path. Quote these
tokens so the invoking shell passes them through:

  piper run -- cat input.txt '|' grep test '2>' errors.log '|' wc -w

Alternatively load the stages from a YAML definition:

  piper run -f pipeline.yaml
  piper run -f pipeline.yaml --watch

Piper exits with the exit code of the last stage that started, 127 when no
stage could start, and 130 when interrupted.`,
	RunE: runRun,
}

var (
	runFile    string
	runWatch   bool
	runVerbose bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFile, "file", "f", "", "load stages from a YAML pipeline definition")
	runCmd.Flags().BoolVarP(&runWatch, "watch", "w", false, "re-run the definition whenever it changes (requires --file)")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "print lifecycle events and a stage summary to stderr")
	// Flags after the first stage belong to the stages.
	runCmd.Flags().SetInterspersed(false)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := newCLILogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	if runWatch && runFile == "" {
		return errors.NewValidationError("--watch requires --file").WithField("watch")
	}
	if runFile != "" && len(args) > 0 {
		return errors.NewValidationError("stages given both on the command line and with --file").WithField("file")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := newRunner(cfg, logger, cmd)
	if runWatch {
		r.stdin = nil
		return watchDefinition(ctx, runFile, r)
	}

	var specs []pipeline.StageSpec
	if runFile != "" {
		def, err := pipeline.LoadDefinition(nil, runFile)
		if err != nil {
			return err
		}
		specs = def.Specs()
	} else {
		if specs, err = parseStages(args); err != nil {
			return err
		}
	}

	code := r.run(ctx, specs)
	if ctx.Err() != nil {
		return errors.ErrCanceled
	}
	if code != 0 {
		return &ExitCodeError{Code: code}
	}
	return nil
}

// newCLILogger builds the logger described by cfg's logging section.
func newCLILogger(cfg *config.Config) (*logging.Logger, error) {
	if !cfg.Logging.Enabled {
		return logging.NopLogger(), nil
	}
	logger, err := logging.NewLogger(cfg.Logging.ResolveDir(), cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}

// runner spawns pipelines and copies their composite streams to the
// command's own stdio.
type runner struct {
	cfg     *config.Config
	logger  *logging.Logger
	bus     *event.Bus
	verbose bool
	styles  styles
	width   int

	// stdin is forwarded to the first stage; nil closes the stage's stdin.
	stdin  io.Reader
	stdout io.Writer
	stderr *syncWriter
}

func newRunner(cfg *config.Config, logger *logging.Logger, cmd *cobra.Command) *runner {
	errOut := cmd.ErrOrStderr()
	r := &runner{
		cfg:     cfg,
		logger:  logger,
		bus:     event.NewBus(logger),
		verbose: runVerbose,
		styles:  newStyles(cfg.Output.UseColor(isTerminal(errOut))),
		width:   terminalWidth(errOut),
		stdout:  cmd.OutOrStdout(),
		stderr:  &syncWriter{w: errOut},
	}
	// An interactive terminal is never forwarded: the first stage would
	// block waiting for input nobody intends to type.
	if in := cmd.InOrStdin(); !isTerminal(in) {
		r.stdin = in
	}
	if r.verbose {
		r.bus.SubscribeAll(func(e event.Event) {
			fmt.Fprintln(r.stderr, r.styles.renderEvent(e))
		})
	}
	return r
}

// run spawns specs, streams their output until the pipeline completes and
// returns the shell exit code.
func (r *runner) run(ctx context.Context, specs []pipeline.StageSpec) int {
	opts := append(pipeline.FromConfig(r.cfg),
		pipeline.WithLogger(r.logger),
		pipeline.WithEventBus(r.bus),
	)
	res := pipeline.New(opts...).Run(ctx, specs...)

	if res.Stdin != nil {
		if r.stdin == nil {
			_ = res.Stdin.Close()
		} else {
			// Not tracked: the caller's stdin may never reach EOF.
			go func() {
				_, _ = io.Copy(res.Stdin, r.stdin)
				_ = res.Stdin.Close()
			}()
		}
	}

	var wg conc.WaitGroup
	wg.Go(func() { _, _ = io.Copy(r.stdout, res.Stdout) })
	wg.Go(func() { _, _ = io.Copy(r.stderr, res.Stderr) })
	wg.Go(func() {
		for err := range res.Errors() {
			fmt.Fprintln(r.stderr, r.styles.failure.Render("piper: "+err.Error()))
		}
	})

	status, err := res.Wait(context.Background())
	wg.Wait()

	if r.verbose {
		fmt.Fprint(r.stderr, r.styles.renderSummary(res.Stages(), r.width))
	}
	if dropped := res.Dropped(); dropped > 0 {
		fmt.Fprintln(r.stderr, r.styles.warning.Render(fmt.Sprintf("piper: %d errors dropped", dropped)))
	}

	switch {
	case ctx.Err() != nil:
		return exitInterrupted
	case err != nil:
		return exitNoStage
	default:
		return status.ShellCode()
	}
}
