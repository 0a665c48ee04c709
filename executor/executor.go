// Package executor runs a single batch task end to end: build the request,
// call the API, classify the reply, download linked images and persist
// everything under a task-scoped output directory.
package executor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nachoal/simple-batch-go/extract"
	"github.com/nachoal/simple-batch-go/llm"
	"github.com/nachoal/simple-batch-go/task"
)

const contentPreviewLen = 100

// Gate blocks until an outbound request is permitted
type Gate interface {
	Acquire(ctx context.Context) error
}

type openGate struct{}

func (openGate) Acquire(ctx context.Context) error { return ctx.Err() }

// Outcome is the immutable result of one task execution
type Outcome struct {
	ID        string
	Name      string
	Ordinal   int
	Success   bool
	Err       error
	Dir       string
	Downloads int
	Duration  time.Duration
}

// Config contains executor configuration
type Config struct {
	OutputDir    string
	ImageDir     string
	DefaultModel string
}

// DefaultConfig returns the layout used when run from a project directory
func DefaultConfig() Config {
	return Config{
		OutputDir:    "output",
		ImageDir:     "input/images",
		DefaultModel: task.DefaultModel,
	}
}

// Option configures an Executor
type Option func(*Executor)

// WithConfig replaces the directory and model configuration
func WithConfig(cfg Config) Option {
	return func(e *Executor) {
		e.config = cfg
	}
}

// WithGate sets the rate limiter consulted before every request
func WithGate(g Gate) Option {
	return func(e *Executor) {
		e.gate = g
	}
}

// WithExtractor sets the image link extraction strategy
func WithExtractor(x *extract.Extractor) Option {
	return func(e *Executor) {
		e.extractor = x
	}
}

// WithFetcher sets how image links are downloaded
func WithFetcher(f Fetcher) Option {
	return func(e *Executor) {
		e.fetcher = f
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) {
		e.logger = l
	}
}

// Executor performs tasks. It holds no per-task state and is safe for
// concurrent use by many workers.
type Executor struct {
	client    llm.Client
	config    Config
	gate      Gate
	extractor *extract.Extractor
	fetcher   Fetcher
	logger    *zap.Logger
	now       func() time.Time
}

// New creates an Executor around a chat client
func New(client llm.Client, opts ...Option) *Executor {
	e := &Executor{
		client:    client,
		config:    DefaultConfig(),
		gate:      openGate{},
		extractor: extract.New(extract.StrategyMarkdownImage, ""),
		fetcher:   NewHTTPFetcher(0),
		logger:    zap.NewNop(),
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Execute runs one task. Every failure is logged with the task context and
// returned inside the Outcome; Execute itself never fails.
func (e *Executor) Execute(ctx context.Context, t task.Task, ordinal int) Outcome {
	start := e.now()
	id := TaskID(start, ordinal)
	t = t.WithDefaults(e.config.DefaultModel, "task_"+id)

	log := e.logger.With(zap.String("task", t.Name), zap.String("task_id", id))
	out := Outcome{ID: id, Name: t.Name, Ordinal: ordinal}

	finish := func(err error) Outcome {
		out.Duration = e.now().Sub(start)
		out.Err = err
		out.Success = err == nil
		if err != nil {
			log.Error("task failed", zap.Error(err))
		} else {
			log.Info("task completed", zap.Int("downloads", out.Downloads), zap.Duration("took", out.Duration))
		}
		return out
	}

	dir, err := createTaskDir(e.config.OutputDir, id, t.Name)
	if err != nil {
		return finish(err)
	}
	out.Dir = dir

	if err := writeInfo(dir, id, t, start); err != nil {
		return finish(err)
	}

	if err := t.Validate(); err != nil {
		return finish(&ValidationError{Err: err})
	}

	log.Info("processing task", zap.String("model", t.Model), zap.Int("images", len(t.Images)))
	for i, img := range t.Images {
		log.Debug("task image", zap.Int("n", i+1), zap.String("path", img))
	}

	req, err := llm.BuildChatRequest(t.Model, t.Prompt, t.Images, e.config.ImageDir)
	if err != nil {
		return finish(&ImageReadError{Err: err})
	}
	log.Debug("request prepared, image data hidden")

	if err := e.gate.Acquire(ctx); err != nil {
		return finish(&NetworkError{Err: err})
	}

	raw, err := e.client.Do(ctx, req)
	if err != nil {
		return finish(&NetworkError{Err: err})
	}
	log.Info("response received", zap.Int("status", raw.StatusCode))

	if err := writeArtifact(dir, ResponseFile, raw.Body); err != nil {
		return finish(err)
	}

	resp, err := classify(raw)
	if err != nil {
		return finish(err)
	}

	if resp.Choices == nil {
		log.Warn("unexpected response shape: no choices array")
		return finish(nil)
	}

	if err := writeArtifact(dir, TextFile, []byte(resp.Text())); err != nil {
		return finish(err)
	}

	out.Downloads = e.downloadImages(ctx, log, dir, resp)
	if out.Downloads == 0 {
		log.Warn("no images downloaded")
	}

	return finish(nil)
}

// classify maps a raw reply to a decoded response or a typed error
func classify(raw *llm.RawResponse) (*llm.ChatResponse, error) {
	if !raw.OK() {
		return nil, &APIError{StatusCode: raw.StatusCode, Body: string(raw.Body)}
	}

	resp, err := raw.Decode()
	if err != nil {
		return nil, &ParseError{Err: err}
	}

	if resp.Error != nil {
		msg := resp.Error.Message
		if msg == "" {
			msg = "unspecified error"
		}
		return nil, &APIError{StatusCode: raw.StatusCode, Message: msg}
	}

	return resp, nil
}

// downloadImages fetches every extracted link. Each link succeeds or fails on
// its own; failures are logged and skipped.
func (e *Executor) downloadImages(ctx context.Context, log *zap.Logger, dir string, resp *llm.ChatResponse) int {
	downloaded := 0

	for _, choice := range resp.Choices {
		content := choice.Message.Content
		log.Debug("scanning content", zap.Int("choice", choice.Index), zap.String("preview", preview(content)))

		for idx, url := range e.extractor.Links(content) {
			name := extract.FileName(resp.ID, choice.Index, idx, url)
			log.Info("downloading image", zap.String("url", url))

			data, err := e.fetcher.Fetch(ctx, url)
			if err != nil {
				log.Warn("image download failed", zap.String("url", url), zap.Error(err))
				continue
			}
			if err := writeArtifact(dir, name, data); err != nil {
				log.Warn("image save failed", zap.String("url", url), zap.Error(err))
				continue
			}

			log.Info("image saved", zap.String("file", name))
			downloaded++
		}
	}

	return downloaded
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= contentPreviewLen {
		return s
	}
	return string(r[:contentPreviewLen]) + "..."
}
