package inference

import (
	"context"
	"strings"
)

// Stream is an ordered, finite sequence of text chunks with one producer
// and one consumer. Err is only meaningful once Chunks has been closed.
type Stream struct {
	chunks chan string
	err    error
}

// NewStream runs produce in its own goroutine. Each call to emit hands one
// chunk to the consumer; emit returns false once ctx is done and the
// producer should stop.
func NewStream(ctx context.Context, produce func(emit func(string) bool) error) *Stream {
	s := &Stream{chunks: make(chan string)}
	go func() {
		defer close(s.chunks)
		err := produce(func(chunk string) bool {
			select {
			case s.chunks <- chunk:
				return true
			case <-ctx.Done():
				return false
			}
		})
		if err == nil {
			err = ctx.Err()
		}
		s.err = err
	}()
	return s
}

// Chunks returns the channel of text chunks. It is closed at end of stream.
func (s *Stream) Chunks() <-chan string {
	return s.chunks
}

// Err returns the error that ended the stream, if any.
func (s *Stream) Err() error {
	return s.err
}

// Collect reads the stream to the end and returns the concatenated text.
func Collect(ctx context.Context, s *Stream) (string, error) {
	var b strings.Builder
	for {
		select {
		case chunk, ok := <-s.Chunks():
			if !ok {
				return b.String(), s.Err()
			}
			b.WriteString(chunk)
		case <-ctx.Done():
			return b.String(), ctx.Err()
		}
	}
}
