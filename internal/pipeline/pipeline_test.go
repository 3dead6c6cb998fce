package pipeline

import (
	"bytes"
	"context"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/piper/internal/errors"
	"github.com/Iron-Ham/piper/internal/event"
	"github.com/Iron-Ham/piper/internal/logging"
	"github.com/Iron-Ham/piper/internal/testutil"
)

// drain collects every error until the channel closes.
func drain(t *testing.T, errs <-chan error) []error {
	t.Helper()

	var out []error
	timeout := time.After(testutil.DefaultTimeout)
	for {
		select {
		case err, ok := <-errs:
			if !ok {
				return out
			}
			out = append(out, err)
		case <-timeout:
			t.Fatal("error channel was not closed")
			return out
		}
	}
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()

	select {
	case <-done:
	case <-time.After(testutil.DefaultTimeout):
		t.Fatal("pipeline did not complete")
	}
}

// -----------------------------------------------------------------------------
// Eager pipeline scenarios
// -----------------------------------------------------------------------------

func TestRun_WordCountChain(t *testing.T) {
	testutil.SkipIfNoPOSIX(t)
	ctx := testutil.Context(t)
	input := testutil.WriteLines(t, t.TempDir(), "input.txt", testutil.ScenarioLines...)

	res := New().Run(ctx,
		Cmd("cat", input),
		Cmd("grep", "test"),
		Cmd("sort", "-r"),
		Cmd("wc", "-w"),
	)

	out, err := res.Stdout.TrimmedString(ctx)
	require.NoError(t, err)
	assert.Equal(t, "19", out)

	status, err := res.Wait(ctx)
	require.NoError(t, err)
	assert.True(t, status.Success())
	assert.Empty(t, drain(t, res.Errors()))
}

func TestRun_ExitStatusOfLastStage(t *testing.T) {
	testutil.SkipIfNoCommand(t, "echo", "false")
	ctx := testutil.Context(t)

	res := New().Run(ctx, Cmd("echo", "ciao"), Cmd("false"))

	code, err := res.ExitCode(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, code)
}

func TestRun_SingleStage(t *testing.T) {
	testutil.SkipIfNoCommand(t, "echo")
	ctx := testutil.Context(t)

	res := New().Run(ctx, Cmd("echo", "ciao"))

	out, err := res.Stdout.TrimmedString(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ciao", out)
	assert.NotNil(t, res.Stdin)
	assert.NotEmpty(t, res.ID)
}

func TestRun_SkipsMissingMiddleStage(t *testing.T) {
	testutil.SkipIfNoCommand(t, "echo")
	ctx := testutil.Context(t)

	res := New().Run(ctx,
		Cmd("echo", "ciao"),
		Cmd("piper-test-nonexistent"),
		Cmd("echo", "cat"),
	)

	out, err := res.Stdout.TrimmedString(ctx)
	require.NoError(t, err)
	assert.Equal(t, "cat", out)

	errs := drain(t, res.Errors())
	require.Len(t, errs, 1)
	var spawnErr *errors.SpawnError
	require.ErrorAs(t, errs[0], &spawnErr)
	assert.Equal(t, 2, spawnErr.Stage)
	assert.Equal(t, "piper-test-nonexistent", spawnErr.Command)
	assert.ErrorIs(t, errs[0], errors.ErrCommandNotFound)

	stages := res.Stages()
	require.Len(t, stages, 3)
	assert.Equal(t, StateExited, stages[0].State)
	assert.Equal(t, StateFailed, stages[1].State)
	assert.Equal(t, StateExited, stages[2].State)
}

func TestRun_MissingFirstStage(t *testing.T) {
	testutil.SkipIfNoCommand(t, "cat")
	ctx := testutil.Context(t)

	res := New().Run(ctx, Cmd("piper-test-nonexistent"), Cmd("cat"))

	assert.Nil(t, res.Stdin, "stdin belongs to the declared first stage")

	// cat's stdin was closed because nothing can feed it.
	out, err := res.Stdout.String(ctx)
	require.NoError(t, err)
	assert.Empty(t, out)

	code, err := res.ExitCode(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
}

func TestRun_AllStagesFail(t *testing.T) {
	ctx := testutil.Context(t)

	res := New().Run(ctx, Cmd("piper-test-nonexistent-cmd"))

	errs := drain(t, res.Errors())
	var spawnErrs, aggregates int
	for _, err := range errs {
		switch err.(type) {
		case *errors.SpawnError:
			spawnErrs++
		case *errors.AggregateError:
			aggregates++
		default:
			t.Errorf("unexpected error %T: %v", err, err)
		}
	}
	assert.Equal(t, 1, spawnErrs)
	assert.Equal(t, 1, aggregates)

	_, err := res.Wait(ctx)
	assert.ErrorIs(t, err, errors.ErrAllStagesFailed)

	out, err := res.Stdout.Bytes(ctx)
	require.NoError(t, err)
	assert.Empty(t, out, "stdout never yields data")

	stderr, err := res.Stderr.Bytes(ctx)
	require.NoError(t, err)
	assert.Empty(t, stderr)
	assert.Nil(t, res.Stdin)
}

func TestRun_NoStages(t *testing.T) {
	ctx := testutil.Context(t)

	res := New().Run(ctx)

	_, err := res.Wait(ctx)
	assert.ErrorIs(t, err, errors.ErrNoStages)

	errs := drain(t, res.Errors())
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], errors.ErrNoStages)
}

func TestRun_WritesToFirstStageStdin(t *testing.T) {
	testutil.SkipIfNoPOSIX(t)
	ctx := testutil.Context(t)

	res := New().Run(ctx, Cmd("cat"), Cmd("grep", "keep"), Cmd("wc", "-l"))
	require.NotNil(t, res.Stdin)

	_, err := io.WriteString(res.Stdin, "keep one\ndrop two\nkeep three\n")
	require.NoError(t, err)
	require.NoError(t, res.Stdin.Close())

	out, err := res.Stdout.TrimmedString(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2", out)
}

func TestRun_DownstreamExitStopsUpstream(t *testing.T) {
	testutil.SkipIfNoCommand(t, "yes", "head")
	ctx := testutil.Context(t)

	// yes never stops on its own; it must be unwired when head exits.
	res := New().Run(ctx, Cmd("yes"), Cmd("head", "-n", "2"))

	out, err := res.Stdout.String(ctx)
	require.NoError(t, err)
	assert.Equal(t, "y\ny\n", out)

	waitDone(t, res.Done())
	for _, err := range drain(t, res.Errors()) {
		t.Errorf("broken pipe must not surface: %v", err)
	}
}

func TestRun_LinkUnwiredOnce(t *testing.T) {
	testutil.SkipIfNoCommand(t, "echo", "true")
	ctx := testutil.Context(t)

	bus := event.NewBus(nil)
	var mu sync.Mutex
	var unwired []event.LinkUnwiredEvent
	bus.Subscribe(event.TypeLinkUnwired, func(e event.Event) {
		mu.Lock()
		defer mu.Unlock()
		unwired = append(unwired, e.(event.LinkUnwiredEvent))
	})

	// Both stages exit almost at once and race to unwire.
	for range 10 {
		res := New(WithEventBus(bus)).Run(ctx, Cmd("echo", "x"), Cmd("true"))
		waitDone(t, res.Done())
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, unwired, 10)
}

// -----------------------------------------------------------------------------
// Redirection
// -----------------------------------------------------------------------------

func TestRun_OutputRedirectedToFile(t *testing.T) {
	testutil.SkipIfNoCommand(t, "echo", "cat")
	ctx := testutil.Context(t)
	out := filepath.Join(t.TempDir(), "out.txt")

	res := New().Run(ctx, Cmd("echo", "hello"), Cmd("cat").OutputTo(out))

	data, err := res.Stdout.Bytes(ctx)
	require.NoError(t, err)
	assert.Empty(t, data, "redirected output must not reach the composite stdout")

	_, err = res.Wait(ctx)
	require.NoError(t, err)
	waitDone(t, res.Done())
	assert.Equal(t, "hello\n", testutil.ReadFile(t, out))
}

func TestRun_MiddleOutputRedirected(t *testing.T) {
	testutil.SkipIfNoCommand(t, "echo", "cat")
	ctx := testutil.Context(t)
	out := filepath.Join(t.TempDir(), "middle.txt")

	res := New().Run(ctx, Cmd("echo", "hello").OutputTo(out), Cmd("cat"))

	// The next stage observes no bytes from the redirected channel.
	data, err := res.Stdout.Bytes(ctx)
	require.NoError(t, err)
	assert.Empty(t, data)

	waitDone(t, res.Done())
	assert.Equal(t, "hello\n", testutil.ReadFile(t, out))
}

func TestRun_InputFromFile(t *testing.T) {
	testutil.SkipIfNoPOSIX(t)
	ctx := testutil.Context(t)
	in := testutil.WriteLines(t, t.TempDir(), "in.txt", "b", "a", "c")

	res := New().Run(ctx, Cmd("sort").InputFrom(in))

	assert.Nil(t, res.Stdin)
	out, err := res.Stdout.String(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a\nb\nc\n", out)
}

func TestRun_UpstreamOfRedirectedInputCompletes(t *testing.T) {
	testutil.SkipIfNoCommand(t, "sh", "cat")
	ctx := testutil.Context(t)
	in := testutil.WriteFile(t, t.TempDir(), "in.txt", "from-file\n")

	res := New().Run(ctx,
		Cmd("sh", "-c", "echo hi; echo done >&2"),
		Cmd("cat").InputFrom(in),
	)

	out, err := res.Stdout.String(ctx)
	require.NoError(t, err)
	assert.Equal(t, "from-file\n", out)

	stderr, err := res.Stderr.String(ctx)
	require.NoError(t, err)
	assert.Contains(t, stderr, "done", "upstream ran past its first write")

	waitDone(t, res.Done())
	stages := res.Stages()
	require.Len(t, stages, 2)
	assert.Equal(t, 0, stages[0].Exit.Code)
	assert.Empty(t, stages[0].Exit.Signal)
}

func TestRun_MissingInputFile(t *testing.T) {
	testutil.SkipIfNoCommand(t, "echo")
	ctx := testutil.Context(t)

	res := New().Run(ctx,
		Cmd("cat").InputFrom(filepath.Join(t.TempDir(), "missing.txt")),
		Cmd("echo", "still here"),
	)

	out, err := res.Stdout.TrimmedString(ctx)
	require.NoError(t, err)
	assert.Equal(t, "still here", out)

	errs := drain(t, res.Errors())
	require.Len(t, errs, 1)
	var fileErr *errors.FileError
	require.ErrorAs(t, errs[0], &fileErr)
	assert.Equal(t, "r", fileErr.Mode)
	var spawnErr *errors.SpawnError
	require.ErrorAs(t, errs[0], &spawnErr)
	assert.Equal(t, 1, spawnErr.Stage)
}

func TestRun_RedirectsThroughFs(t *testing.T) {
	testutil.SkipIfNoCommand(t, "echo")
	ctx := testutil.Context(t)
	fs := afero.NewMemMapFs()

	res := New(WithFs(fs)).Run(ctx, Cmd("echo", "in memory").OutputTo("/out.txt"))
	waitDone(t, res.Done())

	data, err := afero.ReadFile(fs, "/out.txt")
	require.NoError(t, err)
	assert.Equal(t, "in memory\n", string(data))
}

// -----------------------------------------------------------------------------
// Stderr aggregation
// -----------------------------------------------------------------------------

func TestRun_MergesStderr(t *testing.T) {
	testutil.SkipIfNoCommand(t, "sh")
	ctx := testutil.Context(t)

	first := strings.Repeat("a", 3000)
	second := strings.Repeat("b", 5000)
	res := New().Run(ctx,
		Cmd("sh", "-c", "printf '"+first+"' >&2"),
		Cmd("sh", "-c", "cat; printf '"+second+"' >&2"),
	)

	stderr, err := res.Stderr.Bytes(ctx)
	require.NoError(t, err)
	assert.Len(t, stderr, len(first)+len(second))
	assert.Equal(t, len(first), bytes.Count(stderr, []byte("a")))
	assert.Equal(t, len(second), bytes.Count(stderr, []byte("b")))
}

func TestRun_RedirectedStderrLeavesMerge(t *testing.T) {
	testutil.SkipIfNoCommand(t, "sh")
	ctx := testutil.Context(t)
	errFile := filepath.Join(t.TempDir(), "err.log")

	res := New().Run(ctx,
		Cmd("sh", "-c", "echo kept >&2").ErrorTo(errFile),
		Cmd("sh", "-c", "cat >/dev/null; echo merged >&2"),
	)

	stderr, err := res.Stderr.String(ctx)
	require.NoError(t, err)
	assert.Equal(t, "merged\n", stderr)

	waitDone(t, res.Done())
	assert.Equal(t, "kept\n", testutil.ReadFile(t, errFile))
}

func TestRun_StderrClosesWithFailedStages(t *testing.T) {
	testutil.SkipIfNoCommand(t, "sh")
	ctx := testutil.Context(t)

	res := New().Run(ctx,
		Cmd("piper-test-nonexistent-a"),
		Cmd("sh", "-c", "echo only >&2"),
		Cmd("piper-test-nonexistent-b"),
	)

	stderr, err := res.Stderr.String(ctx)
	require.NoError(t, err)
	assert.Equal(t, "only\n", stderr)
	assert.Len(t, drain(t, res.Errors()), 2)
}

// -----------------------------------------------------------------------------
// Options
// -----------------------------------------------------------------------------

func TestRun_ErrorBufferDropsWhenFull(t *testing.T) {
	ctx := testutil.Context(t)
	var logBuf bytes.Buffer
	logger := logging.NewWithWriter(&logBuf, "debug", nil)

	res := New(WithErrorBuffer(1), WithLogger(logger)).Run(ctx,
		Cmd("piper-test-nonexistent-a"),
		Cmd("piper-test-nonexistent-b"),
		Cmd("piper-test-nonexistent-c"),
	)

	// Three spawn failures and the aggregate; one slot plus the one held for
	// the aggregate.
	errs := drain(t, res.Errors())
	require.Len(t, errs, 2)
	var spawnErr *errors.SpawnError
	assert.ErrorAs(t, errs[0], &spawnErr)
	var aggErr *errors.AggregateError
	assert.ErrorAs(t, errs[1], &aggErr, "the aggregate is never dropped")
	assert.ErrorIs(t, errs[1], errors.ErrAllStagesFailed)
	assert.Equal(t, int64(2), res.Dropped())
	assert.Contains(t, logBuf.String(), "error channel full")
	assert.Contains(t, logBuf.String(), res.ID)
}

func TestRun_InheritEnv(t *testing.T) {
	testutil.SkipIfNoCommand(t, "sh")
	ctx := testutil.Context(t)
	t.Setenv("PIPER_TEST_PARENT", "from-parent")

	script := `printf '%s|%s' "$PIPER_TEST_PARENT" "$PIPER_TEST_STAGE"`
	sh, err := exec.LookPath("sh")
	require.NoError(t, err)

	tests := []struct {
		name    string
		inherit bool
		want    string
	}{
		{name: "inherit", inherit: true, want: "from-parent|stage"},
		{name: "isolated", inherit: false, want: "|stage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := New(WithInheritEnv(tt.inherit)).Run(ctx,
				Cmd(sh, "-c", script).WithEnv("PIPER_TEST_STAGE=stage"))

			out, err := res.Stdout.String(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestRun_FuncStage(t *testing.T) {
	testutil.SkipIfNoCommand(t, "echo", "tr")
	ctx := testutil.Context(t)

	upper := func(ctx context.Context, args []string) *exec.Cmd {
		return exec.CommandContext(ctx, "tr", "a-z", "A-Z")
	}

	res := New().Run(ctx, Cmd("echo", "ciao"), Func(upper))

	out, err := res.Stdout.TrimmedString(ctx)
	require.NoError(t, err)
	assert.Equal(t, "CIAO", out)
}

func TestRun_ContextCancelKillsStages(t *testing.T) {
	testutil.SkipIfNoCommand(t, "sleep")
	ctx, cancel := context.WithCancel(testutil.Context(t))

	res := New().Run(ctx, Cmd("sleep", "30"))
	cancel()

	status, err := res.Wait(testutil.Context(t))
	require.NoError(t, err)
	assert.False(t, status.Success())
	assert.NotEmpty(t, status.Signal)
}

func TestRun_Kill(t *testing.T) {
	testutil.SkipIfNoCommand(t, "sleep")
	ctx := testutil.Context(t)

	res := New().Run(ctx, Cmd("sleep", "30"), Cmd("sleep", "30"))
	require.NoError(t, res.Kill())
	waitDone(t, res.Done())

	for _, s := range res.Stages() {
		assert.Equal(t, StateExited, s.State)
	}
}

func TestRun_PublishesLifecycleEvents(t *testing.T) {
	testutil.SkipIfNoCommand(t, "echo", "cat")
	ctx := testutil.Context(t)

	bus := event.NewBus(nil)
	var mu sync.Mutex
	var types []string
	bus.SubscribeAll(func(e event.Event) {
		mu.Lock()
		defer mu.Unlock()
		types = append(types, e.EventType())
	})

	res := New(WithEventBus(bus)).Run(ctx,
		Cmd("echo", "ciao"),
		Cmd("piper-test-nonexistent"),
		Cmd("cat"),
	)
	waitDone(t, res.Done())

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, types)
	assert.Equal(t, event.TypePipelineStarted, types[0])
	assert.Equal(t, event.TypePipelineCompleted, types[len(types)-1])
	assert.Contains(t, types, event.TypeStageSpawned)
	assert.Contains(t, types, event.TypeStageFailed)
	assert.Contains(t, types, event.TypeStageExited)
	assert.Contains(t, types, event.TypeLinkUnwired)
}

func TestFromConfig(t *testing.T) {
	o := buildOptions(FromConfig(nil))
	assert.False(t, o.attachTerminal)
	assert.Equal(t, DefaultErrorBuffer, o.errorBuffer)
	assert.True(t, o.inheritEnv)

	o = buildOptions([]Option{WithErrorBuffer(0), WithLogger(nil), WithFs(nil)})
	assert.Equal(t, DefaultErrorBuffer, o.errorBuffer)
	assert.NotNil(t, o.logger)
	assert.NotNil(t, o.fs)
}
