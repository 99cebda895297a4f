package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/planeboard/engine/internal/align"
	"github.com/planeboard/engine/internal/channel"
	"github.com/planeboard/engine/internal/config"
	"github.com/planeboard/engine/internal/dispatcher"
	"github.com/planeboard/engine/internal/drag"
	"github.com/planeboard/engine/internal/handlers"
	"github.com/planeboard/engine/internal/storage/memory"
	"github.com/planeboard/engine/pkg/core"

	"github.com/spf13/viper"
)

const maxScriptLine = 4 << 20

// resultLine is written for every scripted command.
type resultLine struct {
	Line    int    `json:"line"`
	Command string `json:"command"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// frameLine is written whenever a frame flush delivers presentation output.
type frameLine struct {
	Frame  string        `json:"frame"`
	Guides []align.Guide `json:"guides,omitzero"`
	Offset *drag.Offset  `json:"offset,omitempty"`
}

// replayer feeds a command script through the dispatcher. Each non-empty
// line not starting with # is one dispatcher.Event.
type replayer struct {
	d        *dispatcher.Dispatcher
	out      *json.Encoder
	interval time.Duration
	boardID  string

	started  bool
	lastTick time.Time
	failures int
}

func newReplayer(d *dispatcher.Dispatcher, out *json.Encoder, interval time.Duration, boardID string) *replayer {
	if interval <= 0 {
		interval = channel.DefaultFrameInterval
	}
	return &replayer{d: d, out: out, interval: interval, boardID: boardID}
}

// frameSinks return senders writing guide and offset frames to out.
func frameSinks(out *json.Encoder) (channel.Sender[[]align.Guide], channel.Sender[drag.Offset]) {
	guides := channel.SenderFunc[[]align.Guide](func(g []align.Guide) {
		out.Encode(frameLine{Frame: "guides", Guides: g})
	})
	offsets := channel.SenderFunc[drag.Offset](func(o drag.Offset) {
		out.Encode(frameLine{Frame: "offset", Offset: &o})
	})
	return guides, offsets
}

// seed opens the board stored in an export file.
func (r *replayer) seed(path string) error {
	exp, err := memory.ReadExport(path)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(handlers.OpenBoardPayload{
		Board:   core.Board{ID: exp.BoardID, Name: exp.BoardName},
		Objects: exp.Objects,
	})
	if err != nil {
		return err
	}
	r.started = true
	return r.emit(0, dispatcher.Event{Command: "board:open", Payload: payload})
}

// run dispatches every event of the script in order. Failing commands are
// reported in the output and do not stop the replay.
func (r *replayer) run(script io.Reader) error {
	sc := bufio.NewScanner(script)
	sc.Buffer(make([]byte, 64*1024), maxScriptLine)

	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var e dispatcher.Event
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}

		if !r.started {
			r.started = true
			if e.Command != "board:open" && r.boardID != "" {
				payload, _ := json.Marshal(handlers.OpenBoardPayload{Board: core.Board{ID: r.boardID}})
				if err := r.emit(0, dispatcher.Event{Command: "board:open", Payload: payload}); err != nil {
					return err
				}
			}
		}

		if err := r.emit(n, e); err != nil {
			return err
		}

		switch e.Command {
		case "drag:move":
			r.tick(e.Timestamp, false)
		case "drag:end", "drag:cancel":
			r.tick(e.Timestamp, true)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("reading script: %w", err)
	}
	return nil
}

func (r *replayer) emit(n int, e dispatcher.Event) error {
	res, err := r.d.Dispatch(e)
	out := resultLine{Line: n, Command: e.Command, Result: res}
	if err != nil {
		r.failures++
		out.Error = err.Error()
		out.Result = nil
	}
	return r.out.Encode(out)
}

// tick flushes one rendering frame once the frame interval has passed.
// Events without timestamps flush on every move.
func (r *replayer) tick(at time.Time, force bool) {
	if !force && !at.IsZero() && !r.lastTick.IsZero() && at.Sub(r.lastTick) < r.interval {
		return
	}
	r.lastTick = at
	if _, err := r.d.Dispatch(dispatcher.Event{Command: "frame:tick", Timestamp: at}); err != nil {
		Logger.Debug("Frame tick failed", "error", err)
	}
}

// runReplay drives the engine with the command script at path. boardFile,
// when set, is an export whose board is opened first.
func runReplay(path, boardFile string, w io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open script: %w", err)
	}
	defer f.Close()

	out := json.NewEncoder(w)
	guides, offsets := frameSinks(out)
	if err := initEngine(guides, offsets); err != nil {
		return err
	}

	r := newReplayer(eventDispatcher, out, config.GetEngineConfig().FrameInterval, viper.GetString("boardId"))
	if boardFile != "" {
		if err := r.seed(boardFile); err != nil {
			return fmt.Errorf("failed to seed board: %w", err)
		}
	}
	if err := r.run(f); err != nil {
		return err
	}
	Logger.Info("Replay finished", "script", path, "failures", r.failures)
	return nil
}
