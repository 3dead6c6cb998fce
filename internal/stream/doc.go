// Package stream moves bytes between pipeline stages.
//
//   - [Link] copies one stage's stdout into the next stage's stdin and owns
//     the one-shot unwire transition triggered by either stage's exit.
//   - [Aggregator] fans the stderr of every unredirected stage into one
//     merged stream that closes only after every contributor has exited.
//   - [Output] is a byte source that can also be awaited to its fully
//     buffered contents.
//   - [Buffer] is the non-blocking in-memory pipe behind the merged stderr,
//     so a caller that never reads stderr cannot stall the stages.
package stream
