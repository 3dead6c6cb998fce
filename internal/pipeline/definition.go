package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/piper/internal/errors"
)

// DefinitionVersion is the only supported definition file version.
const DefinitionVersion = "1"

// Definition is a pipeline described in a YAML file:
//
//	version: "1"
//	name: count-tests
//	stages:
//	  - command: cat
//	    args: [input.txt]
//	  - command: grep
//	    args: [test]
//	    stderr: errors.log
//	  - command: wc
//	    args: [-w]
//	    stdout: count.txt
//
// Relative redirection paths and working directories are resolved against
// the directory holding the file, and stages without a dir run there, so
// relative arguments such as input.txt above name files next to it.
type Definition struct {
	Version string            `yaml:"version,omitempty"`
	Name    string            `yaml:"name,omitempty"`
	Stages  []StageDefinition `yaml:"stages"`

	// BaseDir is the directory relative paths are resolved against. It is
	// set by LoadDefinition.
	BaseDir string `yaml:"-"`
}

// StageDefinition is one stage of a Definition.
type StageDefinition struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args,omitempty"`
	Dir     string   `yaml:"dir,omitempty"`
	Env     []string `yaml:"env,omitempty"`
	Stdin   string   `yaml:"stdin,omitempty"`
	Stdout  string   `yaml:"stdout,omitempty"`
	Stderr  string   `yaml:"stderr,omitempty"`
}

// LoadDefinition reads and validates the definition at path on fs.
func LoadDefinition(fs afero.Fs, path string) (*Definition, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.NewFileError("reading pipeline definition", err).WithPath(path).WithMode("r")
	}

	def, err := ParseDefinition(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	def.BaseDir = filepath.Dir(path)
	return def, nil
}

// ParseDefinition decodes and validates a YAML definition.
func ParseDefinition(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parsing pipeline definition: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline definition: %w", err)
	}
	return &def, nil
}

// Validate checks that the definition can be run.
func (d *Definition) Validate() error {
	if d.Version != "" && d.Version != DefinitionVersion {
		return errors.NewValidationError(fmt.Sprintf("unsupported version (supported: %s)", DefinitionVersion)).
			WithField("version").
			WithValue(d.Version)
	}
	if len(d.Stages) == 0 {
		return errors.NewValidationError("at least one stage is required").WithField("stages")
	}

	for i, s := range d.Stages {
		field := fmt.Sprintf("stages[%d]", i)
		if strings.TrimSpace(s.Command) == "" {
			return errors.NewValidationError("command cannot be empty").WithField(field + ".command")
		}
		for _, kv := range s.Env {
			if !strings.Contains(kv, "=") {
				return errors.NewValidationError("env entries must be KEY=VALUE").
					WithField(field + ".env").
					WithValue(kv)
			}
		}
	}
	return nil
}

// Specs converts the definition into stage specs.
func (d *Definition) Specs() []StageSpec {
	specs := make([]StageSpec, 0, len(d.Stages))
	for _, s := range d.Stages {
		spec := Cmd(s.Command, s.Args...)
		switch {
		case s.Dir != "":
			spec = spec.InDir(d.resolve(s.Dir))
		case d.BaseDir != "":
			spec = spec.InDir(d.BaseDir)
		}
		if len(s.Env) > 0 {
			spec = spec.WithEnv(s.Env...)
		}
		for ch, path := range map[Channel]string{Stdin: s.Stdin, Stdout: s.Stdout, Stderr: s.Stderr} {
			if path != "" {
				spec = spec.RedirectTo(d.resolve(path), ch)
			}
		}
		specs = append(specs, spec)
	}
	return specs
}

func (d *Definition) resolve(path string) string {
	if d.BaseDir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(d.BaseDir, path)
}
