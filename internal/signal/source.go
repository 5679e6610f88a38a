package signal

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// ErrSourceDrained is returned by Next when a finite source has no more signals.
var ErrSourceDrained = fmt.Errorf("signal source drained")

// Source delivers normalized signals to the engine. Delivery is at-least-once:
// the same SignalID may be handed out more than once and consumers must
// deduplicate through the decision ledger.
type Source interface {
	// Next blocks until a signal is available, the source is drained
	// (ErrSourceDrained) or the context is canceled.
	Next(ctx context.Context) (*NormalizedSignal, error)
}

// ChannelSource adapts an in-process channel feed (e.g. a queue consumer
// pushing decoded records) into a Source.
type ChannelSource struct {
	ch <-chan *NormalizedSignal
}

// NewChannelSource creates a Source backed by the given channel. Closing the
// channel drains the source.
func NewChannelSource(ch <-chan *NormalizedSignal) *ChannelSource {
	return &ChannelSource{ch: ch}
}

func (s *ChannelSource) Next(ctx context.Context) (*NormalizedSignal, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case sig, ok := <-s.ch:
		if !ok {
			return nil, ErrSourceDrained
		}
		return sig, nil
	}
}

// FileSource replays an ordered JSONL stream of normalized signals. It is the
// feed for the backtest harness, for offline replay of recorded sessions and
// for piping a live feed over stdin.
type FileSource struct {
	closer  io.Closer
	scanner *bufio.Scanner
	line    int
}

// NewFileSource opens a JSONL signal file for sequential reading.
func NewFileSource(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open signal file: %w", err)
	}
	src := NewReaderSource(f)
	src.closer = f
	return src, nil
}

// NewReaderSource wraps any JSONL stream as a Source.
func NewReaderSource(r io.Reader) *FileSource {
	scanner := bufio.NewScanner(r)
	// Signals with large metadata payloads can exceed the default token size
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &FileSource{scanner: scanner}
}

func (s *FileSource) Next(ctx context.Context) (*NormalizedSignal, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil && err != io.EOF {
				return nil, fmt.Errorf("failed to read signal file at line %d: %w", s.line, err)
			}
			return nil, ErrSourceDrained
		}
		s.line++

		raw := s.scanner.Bytes()
		if len(raw) == 0 {
			continue // skip blank lines
		}

		var sig NormalizedSignal
		if err := json.Unmarshal(raw, &sig); err != nil {
			return nil, fmt.Errorf("invalid signal record at line %d: %w", s.line, err)
		}
		return &sig, nil
	}
}

// Close releases the underlying file, if any.
func (s *FileSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
