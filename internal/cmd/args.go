package cmd

import (
	"fmt"

	"github.com/Iron-Ham/piper/internal/errors"
	"github.com/Iron-Ham/piper/internal/pipeline"
)

// Stage separators and redirection markers accepted on the command line.
// Each must be its own argument, so quote them from the invoking shell:
//
//	piper run -- cat input.txt '|' grep test '2>' errors.log '|' wc -w '>' count.txt
const (
	pipeToken   = "|"
	stdinToken  = "<"
	stdoutToken = ">"
	stderrToken = "2>"
)

var redirectTokens = map[string]pipeline.Channel{
	stdinToken:  pipeline.Stdin,
	stdoutToken: pipeline.Stdout,
	stderrToken: pipeline.Stderr,
}

// parseStages splits already-tokenized arguments into stage specs.
func parseStages(args []string) ([]pipeline.StageSpec, error) {
	if len(args) == 0 {
		return nil, errors.NewValidationError("no command given").WithField("args")
	}

	var (
		specs   []pipeline.StageSpec
		current []string
		redirs  [3]string
	)

	flush := func() error {
		if len(current) == 0 {
			return errors.NewValidationError(fmt.Sprintf("stage %d has no command", len(specs)+1)).
				WithField("args")
		}
		spec := pipeline.Cmd(current[0], current[1:]...)
		for ch, path := range redirs {
			if path != "" {
				spec = spec.RedirectTo(path, pipeline.Channel(ch))
			}
		}
		specs = append(specs, spec)
		current = nil
		redirs = [3]string{}
		return nil
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == pipeToken {
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}

		ch, ok := redirectTokens[arg]
		if !ok {
			current = append(current, arg)
			continue
		}
		if i+1 >= len(args) || args[i+1] == pipeToken {
			return nil, errors.NewValidationError("redirection needs a path").
				WithField("args").
				WithValue(arg)
		}
		i++
		redirs[ch] = args[i]
	}

	if err := flush(); err != nil {
		return nil, err
	}
	return specs, nil
}
