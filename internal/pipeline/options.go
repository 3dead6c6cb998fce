package pipeline

import (
	"github.com/spf13/afero"

	"github.com/Iron-Ham/piper/internal/config"
	"github.com/Iron-Ham/piper/internal/event"
	"github.com/Iron-Ham/piper/internal/logging"
	"github.com/Iron-Ham/piper/internal/process"
)

// DefaultErrorBuffer is the capacity of a pipeline's error channel.
const DefaultErrorBuffer = 64

// options holds optional configuration shared by Pipeline and Builder.
type options struct {
	attachTerminal bool
	errorBuffer    int
	inheritEnv     bool
	logger         *logging.Logger
	bus            *event.Bus
	fs             afero.Fs
}

func defaultOptions() options {
	return options{
		errorBuffer: DefaultErrorBuffer,
		inheritEnv:  true,
		logger:      logging.NopLogger(),
		fs:          afero.NewOsFs(),
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.errorBuffer < 1 {
		o.errorBuffer = DefaultErrorBuffer
	}
	if o.logger == nil {
		o.logger = logging.NopLogger()
	}
	if o.fs == nil {
		o.fs = afero.NewOsFs()
	}
	return o
}

func (o options) resolver() *process.Resolver {
	return process.NewResolver(o.fs)
}

// Option configures a Pipeline or Builder.
type Option func(*options)

// WithAttachTerminal makes the first stage read the caller's stdin and the
// last stage write the caller's stdout, unless those channels are
// redirected. The composite stdin and stdout are then empty.
func WithAttachTerminal(attach bool) Option {
	return func(o *options) { o.attachTerminal = attach }
}

// WithErrorBuffer sets the capacity of the error channel. Errors reported
// while the channel is full are logged and dropped. Values below 1 use
// DefaultErrorBuffer.
func WithErrorBuffer(n int) Option {
	return func(o *options) { o.errorBuffer = n }
}

// WithInheritEnv controls whether stages start from the caller's
// environment. Defaults to true.
func WithInheritEnv(inherit bool) Option {
	return func(o *options) { o.inheritEnv = inherit }
}

// WithLogger sets the logger for engine diagnostics.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithEventBus publishes lifecycle events to bus.
func WithEventBus(bus *event.Bus) Option {
	return func(o *options) { o.bus = bus }
}

// WithFs sets the filesystem redirection targets are opened on.
func WithFs(fs afero.Fs) Option {
	return func(o *options) { o.fs = fs }
}

// FromConfig converts the pipeline section of cfg into options.
func FromConfig(cfg *config.Config) []Option {
	if cfg == nil {
		cfg = config.Default()
	}
	return []Option{
		WithAttachTerminal(cfg.Pipeline.AttachTerminal),
		WithErrorBuffer(cfg.Pipeline.ErrorBuffer),
		WithInheritEnv(cfg.Pipeline.InheritEnv),
	}
}
