// Package pipeline builds shell-style process chains without a shell.
//
// Each stage is an already-tokenized command with optional per-channel file
// redirections ([StageSpec]). Stages are spawned in declaration order and
// the stdout of each one feeds the stdin of the next one that spawned.
//
// # Eager mode
//
// [Pipeline.Run] spawns every stage immediately and returns a [Result]: the
// first stage's stdin, the last surviving stage's stdout, every unredirected
// stderr merged into one stream, and the exit status of the last surviving
// stage. A stage that fails to spawn is skipped and its neighbours are linked
// directly. Every asynchronous failure is delivered on one error channel.
//
//	res := pipeline.New().Run(ctx,
//	    pipeline.Cmd("cat", path),
//	    pipeline.Cmd("grep", "test"),
//	    pipeline.Cmd("wc", "-w").OutputTo("count.txt"),
//	)
//	for err := range res.Errors() {
//	    log.Println(err)
//	}
//
// # Builder mode
//
// [Builder] composes a chain first and spawns it as one wave on the first
// explicit or implicit start. Errors travel one hop at a time towards the
// tail of the chain, so the last command sees every failure.
//
// # Definitions
//
// [LoadDefinition] reads a pipeline from a YAML file for the piper CLI.
package pipeline
