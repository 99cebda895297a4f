package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

func withConsole(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := console
	console = &buf
	t.Cleanup(func() { console = orig })
	return &buf
}

func TestSetup_WriterReplacesConsole(t *testing.T) {
	con := withConsole(t)

	var file bytes.Buffer
	m := NewSlogManager()
	m.Setup(Options{Writer: &file, Level: "info"})
	m.Logger().Info("board opened")

	assert.Contains(t, file.String(), "board opened")
	assert.Empty(t, con.String())
}

func TestSetup_ConsoleWithoutWriter(t *testing.T) {
	con := withConsole(t)

	m := NewSlogManager()
	m.Setup(Options{})
	m.Logger().Info("no file")

	assert.Contains(t, con.String(), "no file")
}

func TestSetup_Levels(t *testing.T) {
	tests := []struct {
		level     string
		wantDebug bool
		wantInfo  bool
	}{
		{"debug", true, true},
		{"info", false, true},
		{"WARN", false, false},
		{"bogus", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			m := NewSlogManager()
			m.Setup(Options{Writer: &buf, Level: tt.level})

			m.Logger().Debug("move computed")
			m.Logger().Info("gesture ended")

			assert.Equal(t, tt.wantDebug, bytes.Contains(buf.Bytes(), []byte("move computed")))
			assert.Equal(t, tt.wantInfo, bytes.Contains(buf.Bytes(), []byte("gesture ended")))
		})
	}
}

func TestSetup_ReplacesSinks(t *testing.T) {
	var first, second bytes.Buffer
	m := NewSlogManager()

	m.Setup(Options{Writer: &first})
	m.Logger().Info("to first")
	m.Setup(Options{Writer: &second})
	m.Logger().Info("to second")

	assert.NotContains(t, first.String(), "to second")
	assert.Contains(t, second.String(), "to second")
}

func TestSetup_StateEvaluatedPerRecord(t *testing.T) {
	var buf bytes.Buffer
	board := ""
	m := NewSlogManager()
	m.Setup(Options{Writer: &buf, State: func() []slog.Attr {
		if board == "" {
			return nil
		}
		return []slog.Attr{slog.String("boardId", board)}
	}})

	m.Logger().Info("idle")
	board = "b1"
	m.Logger().With("component", "drag").Info("dragging")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	assert.NotContains(t, string(lines[0]), "boardId")
	assert.Contains(t, string(lines[1]), "boardId=b1")
	assert.Contains(t, string(lines[1]), "component=drag")
}

func TestSetup_TimeIsUTC(t *testing.T) {
	var buf bytes.Buffer
	m := NewSlogManager()
	m.Setup(Options{Writer: &buf})
	m.Logger().Info("tick")

	assert.Regexp(t, `time=\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z`, buf.String())
}

func TestLogger_DefaultBeforeSetup(t *testing.T) {
	assert.Equal(t, slog.Default(), NewSlogManager().Logger())
}

func TestFlush(t *testing.T) {
	m := NewSlogManager()
	assert.NoError(t, m.Flush(context.Background()))

	var buf bytes.Buffer
	m.Setup(Options{Writer: &buf, Provider: sdklog.NewLoggerProvider()})
	m.Logger().Info("exported")
	assert.Contains(t, buf.String(), "exported")
	assert.NoError(t, m.Flush(context.Background()))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}

type failingHandler struct{}

func (failingHandler) Enabled(context.Context, slog.Level) bool { return true }
func (failingHandler) Handle(context.Context, slog.Record) error {
	return errors.New("sink down")
}
func (h failingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h failingHandler) WithGroup(string) slog.Handler      { return h }

func TestFanout(t *testing.T) {
	var a, b bytes.Buffer
	info := slog.NewTextHandler(&a, &slog.HandlerOptions{Level: slog.LevelInfo})
	debug := slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelDebug})

	h := Fanout(nil, failingHandler{}, info, nil, debug)
	require.Len(t, h.(fanout), 3)

	log := slog.New(h)
	log.Debug("only debug")
	log.WithGroup("drag").Info("both", "kind", "group")

	assert.NotContains(t, a.String(), "only debug")
	assert.Contains(t, b.String(), "only debug")
	assert.Contains(t, a.String(), "drag.kind=group")
	assert.Contains(t, b.String(), "drag.kind=group")

	assert.False(t, Fanout().Enabled(context.Background(), slog.LevelError))
	assert.Equal(t, h, h.WithGroup(""))
}

func TestWithState_NilAttrs(t *testing.T) {
	inner := slog.NewTextHandler(&bytes.Buffer{}, nil)
	assert.Equal(t, slog.Handler(inner), WithState(inner, nil))
}
