package launcher

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Stream identifies which child stream a line came from
type Stream int

const (
	StreamStdout Stream = iota
	StreamStderr
)

// String returns the stream name used in logs and metrics
func (s Stream) String() string {
	switch s {
	case StreamStdout:
		return "stdout"
	case StreamStderr:
		return "stderr"
	default:
		return "unknown"
	}
}

// OutputLine is one decoded line of child output
type OutputLine struct {
	Stream Stream
	Text   string
}

// LineSink receives forwarded output lines. HandleLine may block; the pump
// waits rather than dropping lines.
type LineSink interface {
	HandleLine(line OutputLine)
}

// LineSinkFunc adapts a function to LineSink
type LineSinkFunc func(line OutputLine)

// HandleLine calls f(line)
func (f LineSinkFunc) HandleLine(line OutputLine) {
	f(line)
}

// SlogSink forwards child output to a structured logger, stdout at Info and
// stderr at Warn.
type SlogSink struct {
	logger *slog.Logger
	prefix string
}

// NewSlogSink creates a sink that tags every line with the backend name
func NewSlogSink(logger *slog.Logger, name string) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{
		logger: logger,
		prefix: "[" + name + "] ",
	}
}

// HandleLine implements LineSink
func (s *SlogSink) HandleLine(line OutputLine) {
	level := slog.LevelInfo
	if line.Stream == StreamStderr {
		level = slog.LevelWarn
	}
	s.logger.Log(context.Background(), level, s.prefix+line.Text, "stream", line.Stream.String())
}

// OutputPump drains a child's stdout and stderr on independent goroutines
type OutputPump struct {
	group  errgroup.Group
	done   chan struct{}
	logger *slog.Logger
}

// StartOutputPump starts one reader goroutine per non-nil stream. Each
// goroutine exits on EOF or when the pipe is closed; neither is an error.
func StartOutputPump(stdout, stderr io.Reader, sink LineSink, logger *slog.Logger) *OutputPump {
	if logger == nil {
		logger = slog.Default()
	}

	p := &OutputPump{
		done:   make(chan struct{}),
		logger: logger,
	}

	if stdout != nil {
		p.group.Go(func() error {
			p.pump(stdout, StreamStdout, sink)
			return nil
		})
	}
	if stderr != nil {
		p.group.Go(func() error {
			p.pump(stderr, StreamStderr, sink)
			return nil
		})
	}

	go func() {
		_ = p.group.Wait()
		close(p.done)
	}()

	return p
}

// pump forwards lines until the stream ends. Invalid UTF-8 is replaced
// with U+FFFD by the decoder, so decoding never fails.
func (p *OutputPump) pump(r io.Reader, stream Stream, sink LineSink) {
	reader := bufio.NewReader(transform.NewReader(r, unicode.UTF8.NewDecoder()))

	for {
		text, err := reader.ReadString('\n')
		if len(text) > 0 {
			sink.HandleLine(OutputLine{
				Stream: stream,
				Text:   strings.TrimRight(text, "\r\n"),
			})
		}

		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				p.logger.Debug("output stream closed", "stream", stream.String(), "error", err)
			}
			return
		}
	}
}

// Done is closed once both streams have been fully drained
func (p *OutputPump) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until both streams have been fully drained
func (p *OutputPump) Wait() {
	<-p.done
}

// WaitTimeout waits up to d for the pump to finish and reports whether it did
func (p *OutputPump) WaitTimeout(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-p.done:
		return true
	case <-timer.C:
		return false
	}
}
