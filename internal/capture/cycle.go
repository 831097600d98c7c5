package capture

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sameeeeeeep/autoclawd-sub001/internal/audio"
)

const (
	// SilenceCutoff discards any chunk whose silence ratio exceeds it.
	SilenceCutoff = 0.90
	// MinFinalDuration is the shortest interrupted chunk still handed off.
	MinFinalDuration = 3 * time.Second
	// DefaultRetryDelay is the back-off after the recorder fails to start.
	DefaultRetryDelay = 5 * time.Second
)

// State is the capture loop's lifecycle state.
type State string

const (
	StateStopped   State = "stopped"
	StateListening State = "listening"
	StatePaused    State = "paused"
)

// Recorder opens a new recording sink at path.
type Recorder interface {
	Start(ctx context.Context, path string) (audio.Recording, error)
}

// Meter computes the fraction of silent frames in a finished chunk.
type Meter interface {
	SilenceRatio(path string) (float64, error)
}

// Chunk is one finished bounded-duration recording.
type Chunk struct {
	Index        int       `json:"index"`
	Session      int       `json:"session"`
	Path         string    `json:"path"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	SilenceRatio float64   `json:"silenceRatio"`
}

func (c Chunk) Duration() time.Duration { return c.End.Sub(c.Start) }

// Handoff receives chunks that passed silence gating. It runs detached from
// the capture loop and owns the chunk file afterwards.
type Handoff func(ctx context.Context, chunk Chunk)

// Status is a snapshot of the cycle.
type Status struct {
	State   State `json:"state"`
	Index   int   `json:"index"`
	Session int   `json:"session"`
}

// Config wires a Cycle.
type Config struct {
	Recorder      Recorder
	Meter         Meter
	Handoff       Handoff
	Dir           string
	ChunkDuration time.Duration
	RetryDelay    time.Duration
	Logger        *slog.Logger
}

// Cycle records fixed-length chunks back to back. The next chunk's recorder
// is started before the previous chunk is metered or handed off, so the
// loop never waits on downstream processing.
type Cycle struct {
	rec           Recorder
	meter         Meter
	handoff       Handoff
	dir           string
	chunkDuration time.Duration
	retryDelay    time.Duration
	logger        *slog.Logger

	now   func() time.Time
	after func(time.Duration) <-chan time.Time

	mu       sync.Mutex
	state    State
	index    int
	session  int
	parent   context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}

	inflight sync.WaitGroup
}

func NewCycle(cfg Config) *Cycle {
	retry := cfg.RetryDelay
	if retry <= 0 {
		retry = DefaultRetryDelay
	}
	return &Cycle{
		rec:           cfg.Recorder,
		meter:         cfg.Meter,
		handoff:       cfg.Handoff,
		dir:           cfg.Dir,
		chunkDuration: cfg.ChunkDuration,
		retryDelay:    retry,
		logger:        cfg.Logger,
		now:           time.Now,
		after:         time.After,
		state:         StateStopped,
	}
}

// Status returns the current state, chunk index and session number.
func (c *Cycle) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{State: c.state, Index: c.index, Session: c.session}
}

// Start begins a new capture session. It is a no-op unless stopped.
// ctx bounds the session and every handoff it produces.
func (c *Cycle) Start(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateStopped {
		return false
	}
	c.session++
	c.parent = ctx
	c.launch()
	c.logger.Info("capture started", "session", c.session, "chunk", c.index)
	return true
}

// Pause interrupts the current chunk, handing it off if it holds real audio.
func (c *Cycle) Pause() bool {
	if !c.halt(StateListening, StatePaused) {
		return false
	}
	c.logger.Info("capture paused")
	return true
}

// Resume continues a paused session at the next chunk index.
func (c *Cycle) Resume() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StatePaused {
		return false
	}
	c.launch()
	c.logger.Info("capture resumed", "chunk", c.index)
	return true
}

// Stop ends the session from either listening or paused.
func (c *Cycle) Stop() bool {
	c.mu.Lock()
	if c.state == StatePaused {
		c.state = StateStopped
		c.mu.Unlock()
		c.logger.Info("capture stopped")
		return true
	}
	c.mu.Unlock()
	if !c.halt(StateListening, StateStopped) {
		return false
	}
	c.logger.Info("capture stopped")
	return true
}

// Wait blocks until every dispatched chunk has been metered and handed off.
func (c *Cycle) Wait() {
	c.inflight.Wait()
}

// launch must be called with mu held.
func (c *Cycle) launch() {
	ctx, cancel := context.WithCancel(c.parent)
	c.cancel = cancel
	c.loopDone = make(chan struct{})
	c.state = StateListening
	go c.loop(ctx, c.index, c.loopDone)
}

func (c *Cycle) halt(from, to State) bool {
	c.mu.Lock()
	if c.state != from {
		c.mu.Unlock()
		return false
	}
	cancel, done := c.cancel, c.loopDone
	c.state = to
	c.mu.Unlock()

	cancel()
	<-done
	return true
}

func (c *Cycle) loop(ctx context.Context, index int, done chan struct{}) {
	defer close(done)

	var begin time.Time
	for {
		if ctx.Err() != nil {
			c.setIndex(index)
			return
		}

		path := filepath.Join(c.dir, fmt.Sprintf("chunk-%d-%06d.wav", c.currentSession(), index))
		rec, err := c.rec.Start(ctx, path)
		if err != nil {
			c.logger.Error("failed to open recording sink", "chunk", index, "error", err)
			begin = time.Time{}
			select {
			case <-ctx.Done():
				c.setIndex(index)
				return
			case <-c.after(c.retryDelay):
				continue
			}
		}
		if begin.IsZero() {
			begin = c.now()
		}
		c.setIndex(index)

		interrupted := false
		select {
		case <-c.after(c.chunkDuration):
		case <-ctx.Done():
			interrupted = true
		}

		if err := rec.Stop(); err != nil {
			c.logger.Warn("recorder stop failed", "chunk", index, "error", err)
		}
		end := c.now()

		chunk := Chunk{Index: index, Session: c.currentSession(), Path: path, Start: begin, End: end}
		c.dispatch(ctx, chunk, interrupted)

		index++
		if interrupted {
			c.setIndex(index)
			return
		}
		begin = end
	}
}

// dispatch meters and hands off a chunk without blocking the loop.
func (c *Cycle) dispatch(loopCtx context.Context, chunk Chunk, interrupted bool) {
	ctx := context.WithoutCancel(loopCtx)
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()

		ratio, err := c.meter.SilenceRatio(chunk.Path)
		if err != nil {
			c.logger.Warn("failed to meter chunk", "chunk", chunk.Index, "error", err)
			c.discard(chunk)
			return
		}
		chunk.SilenceRatio = ratio

		if ratio > SilenceCutoff {
			c.logger.Debug("silent chunk skipped", "chunk", chunk.Index, "silence", ratio)
			c.discard(chunk)
			return
		}
		if interrupted && chunk.Duration() <= MinFinalDuration {
			c.logger.Debug("short final chunk skipped", "chunk", chunk.Index, "duration_ms", chunk.Duration().Milliseconds())
			c.discard(chunk)
			return
		}
		c.handoff(ctx, chunk)
	}()
}

func (c *Cycle) discard(chunk Chunk) {
	if err := os.Remove(chunk.Path); err != nil && !os.IsNotExist(err) {
		c.logger.Debug("failed to remove chunk file", "path", chunk.Path, "error", err)
	}
}

func (c *Cycle) setIndex(i int) {
	c.mu.Lock()
	c.index = i
	c.mu.Unlock()
}

func (c *Cycle) currentSession() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}
