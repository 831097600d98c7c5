package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/sameeeeeeep/autoclawd-sub001/internal/analysis"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/capture"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/knowledge"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/models"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/store"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/tasks"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/transcribe"
)

const (
	tailLength = 200

	// Utterances further apart than this are never merged.
	continuationWindow = 2 * time.Minute

	// TextSession labels transcripts ingested as text rather than audio.
	TextSession = "T"
)

// Config wires the processor to its stages. Transcriber is only needed for
// audio chunks.
type Config struct {
	Transcriber transcribe.Gateway
	Classifier  *knowledge.Classifier
	Synthesizer *knowledge.Synthesizer
	Items       *store.KnowledgeStore
	Cleaner     *Cleaner
	Analyzer    *analysis.Analyzer
	Creator     *tasks.Creator
	Pipeline    *store.PipelineStore
	Threshold   int
	KeepAudio   bool
	Logger      *slog.Logger
}

// Result collects what one utterance produced.
type Result struct {
	Items      []models.KnowledgeItem     `json:"items"`
	Transcript *models.CleanedTranscript  `json:"transcript,omitempty"`
	Analysis   *models.TranscriptAnalysis `json:"analysis,omitempty"`
	Tasks      []models.Task              `json:"tasks"`
}

// Processor carries one utterance through the whole pipeline:
// transcribe, classify, synthesize at threshold, clean, analyze and create
// tasks. Each utterance's steps run in order; separate utterances may
// overlap.
type Processor struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	tails     map[string]string
	textIndex int

	// transcript stage state, serialized so continuations merge in order
	transcriptMu sync.Mutex
	last         map[string]*lastUtterance
}

type lastUtterance struct {
	transcript models.CleanedTranscript
	titles     map[string]bool
	at         time.Time
}

func NewProcessor(cfg Config) *Processor {
	return &Processor{
		cfg:    cfg,
		logger: cfg.Logger,
		now:    time.Now,
		tails:  map[string]string{},
		last:   map[string]*lastUtterance{},
	}
}

// SessionLabel turns a 1-based capture session number into a letter label:
// 1 is A, 26 is Z, 27 is AA.
func SessionLabel(n int) string {
	if n <= 0 {
		return "A"
	}
	var label []byte
	for n > 0 {
		n--
		label = append([]byte{byte('A' + n%26)}, label...)
		n /= 26
	}
	return string(label)
}

// HandleChunk processes one recorded chunk. It is the capture cycle's
// handoff and never returns an error: failures are logged and the chunk's
// knowledge is dropped.
func (p *Processor) HandleChunk(ctx context.Context, chunk capture.Chunk) {
	logger := p.logger.With("chunk", chunk.Index, "session", chunk.Session)
	if !p.cfg.KeepAudio {
		defer os.Remove(chunk.Path)
	}
	if p.cfg.Transcriber == nil {
		logger.Error("no transcriber configured, dropping chunk")
		return
	}

	data, err := os.ReadFile(chunk.Path)
	if err != nil {
		logger.Error("failed to read chunk", "error", err)
		return
	}
	text, err := p.cfg.Transcriber.Transcribe(ctx, data, filepath.Base(chunk.Path))
	if err != nil {
		logger.Warn("transcription failed", "error", err)
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		logger.Debug("empty transcription")
		return
	}

	label := SessionLabel(chunk.Session)
	p.process(ctx, utterance{
		text:     text,
		label:    label,
		index:    chunk.Index,
		sourceID: fmt.Sprintf("%s-%d", label, chunk.Index),
		duration: chunk.Duration(),
	})
}

// IngestText runs typed or imported text through the same pipeline as a
// transcribed chunk.
func (p *Processor) IngestText(ctx context.Context, text string) (Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, fmt.Errorf("text must not be empty")
	}
	p.mu.Lock()
	p.textIndex++
	index := p.textIndex
	p.mu.Unlock()

	return p.process(ctx, utterance{
		text:     text,
		label:    TextSession,
		index:    index,
		sourceID: fmt.Sprintf("%s-%d", TextSession, index),
	}), nil
}

type utterance struct {
	text     string
	label    string
	index    int
	sourceID string
	duration time.Duration
}

func (p *Processor) process(ctx context.Context, u utterance) Result {
	res := Result{Tasks: []models.Task{}}

	if p.cfg.Classifier != nil {
		res.Items = p.cfg.Classifier.Classify(ctx, knowledge.ChunkInput{
			Text:         u.text,
			ChunkIndex:   u.index,
			SessionLabel: u.label,
			PreviousTail: p.swapTail(u.label, u.index, u.text),
		})
		p.maybeSynthesize(ctx)
	}

	if p.cfg.Cleaner == nil || p.cfg.Analyzer == nil {
		return res
	}
	tr, titles, ok := p.transcript(ctx, u)
	if !ok {
		return res
	}
	res.Transcript = &tr

	an := p.cfg.Analyzer.Analyze(ctx, tr)
	res.Analysis = &an

	if p.cfg.Creator != nil {
		fresh := an
		fresh.Tasks = nil
		for _, d := range an.Tasks {
			key := strings.ToLower(strings.TrimSpace(d.Title))
			if titles[key] {
				continue
			}
			fresh.Tasks = append(fresh.Tasks, d)
		}
		res.Tasks = append(res.Tasks, p.cfg.Creator.CreateAll(ctx, fresh)...)
		p.rememberTitles(u.label, tr.ID, an.Tasks)
	}
	return res
}

// swapTail records the end of this chunk's text and returns the tail of the
// chunk before it, if that one has been seen.
func (p *Processor) swapTail(label string, index int, text string) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := func(i int) string { return fmt.Sprintf("%s/%d", label, i) }
	tail := text
	if r := []rune(tail); len(r) > tailLength {
		tail = string(r[len(r)-tailLength:])
	}
	p.tails[key(index)] = tail
	delete(p.tails, key(index-2))
	return p.tails[key(index-1)]
}

func (p *Processor) maybeSynthesize(ctx context.Context) {
	if p.cfg.Synthesizer == nil || p.cfg.Items == nil || p.cfg.Threshold <= 0 {
		return
	}
	counts, err := p.cfg.Items.Counts(ctx)
	if err != nil {
		p.logger.Warn("failed to count knowledge items", "error", err)
		return
	}
	if counts.PendingAccepted < p.cfg.Threshold {
		return
	}
	res, ran, err := p.cfg.Synthesizer.TrySynthesize(ctx)
	switch {
	case !ran:
		p.logger.Debug("synthesis already running")
	case err != nil:
		p.logger.Warn("threshold synthesis failed", "error", err)
	default:
		p.logger.Info("threshold synthesis", "pending", res.Pending, "applied", res.Applied)
	}
}

// transcript cleans the utterance and persists it, merging with the
// previous transcript from the same session when the cleaner marks a
// continuation. It returns the task titles already created for the merged
// predecessor.
func (p *Processor) transcript(ctx context.Context, u utterance) (models.CleanedTranscript, map[string]bool, bool) {
	p.transcriptMu.Lock()
	defer p.transcriptMu.Unlock()

	now := p.now()
	prev := p.last[u.label]
	if prev != nil && now.Sub(prev.at) > continuationWindow {
		prev = nil
	}
	previousText := ""
	if prev != nil {
		previousText = prev.transcript.Text
	}

	cleaned := p.cfg.Cleaner.Clean(ctx, u.text, previousText)
	if cleaned.Text == "" {
		p.logger.Debug("nothing worth keeping after cleaning", "source", u.sourceID)
		return models.CleanedTranscript{}, nil, false
	}

	tr := models.CleanedTranscript{
		ID:             ulid.Make().String(),
		SourceChunkIDs: []string{u.sourceID},
		ChunkCount:     1,
		Text:           cleaned.Text,
		CreatedAt:      now.Unix(),
		DurationMs:     u.duration.Milliseconds(),
	}
	if u.label != TextSession {
		tr.SessionID = u.label
	}
	titles := map[string]bool{}
	if cleaned.Continuation && prev != nil {
		tr.IsContinuation = true
		tr.Text = prev.transcript.Text + " " + cleaned.Text
		tr.SourceChunkIDs = append(append([]string(nil), prev.transcript.SourceChunkIDs...), u.sourceID)
		tr.ChunkCount = prev.transcript.ChunkCount + 1
		tr.DurationMs += prev.transcript.DurationMs
		titles = prev.titles
	}

	if err := p.cfg.Pipeline.InsertTranscript(tr); err != nil {
		p.logger.Error("failed to persist transcript", "transcript_id", tr.ID, "error", err)
	}
	p.last[u.label] = &lastUtterance{transcript: tr, titles: titles, at: now}
	return tr, titles, true
}

// rememberTitles records task titles against the transcript they came from.
// A newer transcript for the same label may already have replaced it while
// analysis ran; those titles are then dropped.
func (p *Processor) rememberTitles(label, transcriptID string, descs []models.TaskDescription) {
	p.transcriptMu.Lock()
	defer p.transcriptMu.Unlock()
	last := p.last[label]
	if last == nil || last.transcript.ID != transcriptID {
		return
	}
	merged := make(map[string]bool, len(last.titles)+len(descs))
	for k := range last.titles {
		merged[k] = true
	}
	for _, d := range descs {
		merged[strings.ToLower(strings.TrimSpace(d.Title))] = true
	}
	last.titles = merged
}
