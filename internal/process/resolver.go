package process

import (
	"os"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/piper/internal/errors"
)

// Redirections maps each channel to a file path. An empty path leaves the
// channel unredirected.
type Redirections [3]string

// Any reports whether at least one channel is redirected.
func (r Redirections) Any() bool {
	return r[Stdin] != "" || r[Stdout] != "" || r[Stderr] != ""
}

// Resolver opens redirection targets. Stdin targets are opened for reading;
// stdout and stderr targets are created or truncated for writing.
type Resolver struct {
	fs afero.Fs
}

// NewResolver creates a Resolver over fs. A nil fs uses the real filesystem.
func NewResolver(fs afero.Fs) *Resolver {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Resolver{fs: fs}
}

// Fs returns the filesystem the resolver opens files on.
func (r *Resolver) Fs() afero.Fs {
	return r.fs
}

// OpenForRead opens path as a stdin source.
func (r *Resolver) OpenForRead(path string) (afero.File, error) {
	f, err := r.fs.Open(path)
	if err != nil {
		return nil, errors.NewFileError("open redirection source", err).WithPath(path).WithMode("r")
	}
	return f, nil
}

// OpenForWrite creates or truncates path as a stdout or stderr target.
func (r *Resolver) OpenForWrite(path string) (afero.File, error) {
	f, err := r.fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, errors.NewFileError("open redirection target", err).WithPath(path).WithMode("w")
	}
	return f, nil
}

// Resolve opens path for channel ch and returns a file-backed StdioConfig.
func (r *Resolver) Resolve(ch Channel, path string) (StdioConfig, error) {
	if !ch.Valid() {
		return StdioConfig{}, errors.NewValidationError("unknown stdio channel").
			WithField("channel").
			WithValue(int(ch))
	}

	var (
		f   afero.File
		err error
	)
	if ch == Stdin {
		f, err = r.OpenForRead(path)
	} else {
		f, err = r.OpenForWrite(path)
	}
	if err != nil {
		return StdioConfig{}, err
	}
	return FromFile(f), nil
}

// ResolveAll starts from base and replaces every redirected channel with its
// opened target. On failure every file opened so far is closed.
func (r *Resolver) ResolveAll(base StdioSet, redirs Redirections) (StdioSet, error) {
	out := base
	for ch := Stdin; ch <= Stderr; ch++ {
		path := redirs[ch]
		if path == "" {
			continue
		}
		cfg, err := r.Resolve(ch, path)
		if err != nil {
			closeOpened(out, base)
			return base, err
		}
		out[ch] = cfg
	}
	return out, nil
}

// closeOpened closes files in out that were not already present in base.
func closeOpened(out, base StdioSet) {
	for ch := range out {
		if out[ch].Kind == KindFile && out[ch].File != nil && out[ch].File != base[ch].File {
			_ = out[ch].File.Close()
		}
	}
}
