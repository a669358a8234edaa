// Package syncpipe exposes a synchronous, unbuffered in-memory pipe. A Write
// hands its bytes directly to a concurrent Read with no intermediate buffer,
// so a producer can never run ahead of its consumer and in-flight memory is
// bounded by a single pending write regardless of stream length.
package syncpipe
