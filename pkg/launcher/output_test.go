package launcher

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStream_String(t *testing.T) {
	assert.Equal(t, "stdout", StreamStdout.String())
	assert.Equal(t, "stderr", StreamStderr.String())
	assert.Equal(t, "unknown", Stream(7).String())
}

func TestOutputPump_ForwardsEveryLine(t *testing.T) {
	var stdout, stderr strings.Builder
	for i := 0; i < 100; i++ {
		fmt.Fprintf(&stdout, "out %d\n", i)
	}
	for i := 0; i < 40; i++ {
		fmt.Fprintf(&stderr, "err %d\n", i)
	}

	sink := &recordingSink{}
	pump := StartOutputPump(strings.NewReader(stdout.String()), strings.NewReader(stderr.String()), sink, nil)
	require.True(t, pump.WaitTimeout(5*time.Second))

	assert.Equal(t, 100, sink.count(StreamStdout))
	assert.Equal(t, 40, sink.count(StreamStderr))

	// per-stream order is preserved
	var outs []string
	for _, line := range sink.snapshot() {
		if line.Stream == StreamStdout {
			outs = append(outs, line.Text)
		}
	}
	assert.Equal(t, "out 0", outs[0])
	assert.Equal(t, "out 99", outs[99])
}

func TestOutputPump_LineEndings(t *testing.T) {
	sink := &recordingSink{}
	pump := StartOutputPump(strings.NewReader("first\r\nsecond\n\nlast without newline"), nil, sink, nil)
	pump.Wait()

	lines := sink.snapshot()
	require.Len(t, lines, 4)
	assert.Equal(t, "first", lines[0].Text)
	assert.Equal(t, "second", lines[1].Text)
	assert.Equal(t, "", lines[2].Text)
	assert.Equal(t, "last without newline", lines[3].Text)
}

func TestOutputPump_ReplacesInvalidUTF8(t *testing.T) {
	sink := &recordingSink{}
	pump := StartOutputPump(nil, bytes.NewReader([]byte("ok \xff\xfe done\nnext\n")), sink, nil)
	pump.Wait()

	lines := sink.snapshot()
	require.Len(t, lines, 2)
	assert.Equal(t, StreamStderr, lines[0].Stream)
	assert.True(t, strings.HasPrefix(lines[0].Text, "ok "))
	assert.True(t, strings.HasSuffix(lines[0].Text, " done"))
	assert.Contains(t, lines[0].Text, "�")
	assert.Equal(t, "next", lines[1].Text)
}

// TestOutputPump_SlowSinkDropsNothing tests backpressure instead of loss
func TestOutputPump_SlowSinkDropsNothing(t *testing.T) {
	var input strings.Builder
	for i := 0; i < 20; i++ {
		fmt.Fprintf(&input, "line %d\n", i)
	}

	sink := &recordingSink{}
	slow := LineSinkFunc(func(line OutputLine) {
		time.Sleep(5 * time.Millisecond)
		sink.HandleLine(line)
	})

	pump := StartOutputPump(strings.NewReader(input.String()), nil, slow, nil)
	require.True(t, pump.WaitTimeout(5*time.Second))
	assert.Equal(t, 20, sink.count(StreamStdout))
}

func TestOutputPump_EndsWhenWriterCloses(t *testing.T) {
	outR, outW := io.Pipe()
	errR, errW := io.Pipe()

	sink := &recordingSink{}
	pump := StartOutputPump(outR, errR, sink, nil)

	_, err := outW.Write([]byte("hello\n"))
	require.NoError(t, err)

	select {
	case <-pump.Done():
		t.Fatal("pump finished while streams are open")
	case <-time.After(50 * time.Millisecond):
	}

	outW.Close()
	errW.Close()

	require.True(t, pump.WaitTimeout(2*time.Second))
	assert.True(t, sink.contains(StreamStdout, "hello"))
}

func TestOutputPump_NoStreams(t *testing.T) {
	pump := StartOutputPump(nil, nil, &recordingSink{}, nil)
	assert.True(t, pump.WaitTimeout(time.Second))
}

func TestSlogSink_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	sink := NewSlogSink(logger, "backend-server")
	sink.HandleLine(OutputLine{Stream: StreamStdout, Text: "serving"})
	sink.HandleLine(OutputLine{Stream: StreamStderr, Text: "deprecated flag"})

	decoder := json.NewDecoder(&buf)

	var first map[string]any
	require.NoError(t, decoder.Decode(&first))
	assert.Equal(t, "INFO", first["level"])
	assert.Equal(t, "[backend-server] serving", first["msg"])
	assert.Equal(t, "stdout", first["stream"])

	var second map[string]any
	require.NoError(t, decoder.Decode(&second))
	assert.Equal(t, "WARN", second["level"])
	assert.Equal(t, "[backend-server] deprecated flag", second["msg"])
	assert.Equal(t, "stderr", second["stream"])
}
