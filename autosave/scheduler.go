// Package autosave persists the live document to a storage slot after
// edits settle, and on a fixed period as a backstop.
package autosave

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/alimasry/go-badge-editor/editor"
	"github.com/alimasry/go-badge-editor/store"
	"github.com/alimasry/go-badge-editor/template"
)

const (
	DefaultKey      = "badge-editor/autosave"
	DefaultDebounce = 2 * time.Second
	DefaultInterval = 30 * time.Second

	// FailureWarnThreshold is the number of consecutive failed periodic
	// writes after which a warning is logged.
	FailureWarnThreshold = 3
)

var tracer = otel.Tracer("github.com/alimasry/go-badge-editor/autosave")

// Source is the part of the editor store the scheduler reads.
type Source interface {
	Subscribe(fn func(editor.Change)) (unsubscribe func())
	ExportTemplate() template.Template
}

// Stats counts scheduler writes.
type Stats struct {
	Writes              int
	Skipped             int
	Failures            int
	ConsecutiveFailures int
	LastWrite           time.Time
	LastError           error
}

// Option configures a Scheduler.
type Option func(*Scheduler)

func WithKey(key string) Option {
	return func(s *Scheduler) { s.key = key }
}

// WithDebounce sets how long the document must stay unchanged before a
// write.
func WithDebounce(d time.Duration) Option {
	return func(s *Scheduler) { s.debounce = d }
}

// WithInterval sets the period of the backstop write.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.interval = d }
}

func WithCodec(c *template.Codec) Option {
	return func(s *Scheduler) { s.codec = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// Scheduler writes the exported document to a slot. Every change restarts
// the debounce timer; the write happens when it fires. A ticker writes
// independently of changes. Writes whose payload equals the last
// successful one are skipped.
type Scheduler struct {
	doc      Source
	slots    store.SlotStore
	codec    *template.Codec
	key      string
	debounce time.Duration
	interval time.Duration
	logger   *slog.Logger

	mu          sync.Mutex
	running     bool
	unsubscribe func()
	changed     chan struct{}
	stop        chan struct{}
	done        chan struct{}

	writeMu     sync.Mutex
	lastWritten []byte
	stats       Stats
}

// New creates a stopped scheduler for doc writing to slots.
func New(doc Source, slots store.SlotStore, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		doc:      doc,
		slots:    slots,
		key:      DefaultKey,
		debounce: DefaultDebounce,
		interval: DefaultInterval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.debounce <= 0 || s.interval <= 0 {
		return nil, fmt.Errorf("autosave: debounce and interval must be positive")
	}
	if s.codec == nil {
		c, err := template.NewCodec(template.FormatJSON)
		if err != nil {
			return nil, err
		}
		s.codec = c
	}
	s.logger = s.logger.With("component", "autosave", "key", s.key)
	return s, nil
}

// Start subscribes to document changes and starts the timers. Calling
// Start on a running scheduler does nothing.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.changed = make(chan struct{}, 1)
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	changed := s.changed
	s.unsubscribe = s.doc.Subscribe(func(editor.Change) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	go s.loop(changed, s.stop, s.done)
	s.logger.Info("autosave started", "debounce", s.debounce, "interval", s.interval)
}

// Stop cancels both timers and waits for an in-flight write. No writes
// happen after Stop returns, except through an explicit Flush.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.unsubscribe()
	close(s.stop)
	done := s.done
	s.mu.Unlock()

	<-done
	s.logger.Info("autosave stopped")
}

func (s *Scheduler) loop(changed <-chan struct{}, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	debounce := time.NewTimer(s.debounce)
	debounce.Stop()
	defer debounce.Stop()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	ctx := context.Background()
	for {
		select {
		case <-changed:
			debounce.Reset(s.debounce)
		case <-debounce.C:
			s.Flush(ctx)
		case <-ticker.C:
			if s.Flush(ctx) != nil {
				if n := s.Stats().ConsecutiveFailures; n >= FailureWarnThreshold {
					s.logger.Warn("autosave keeps failing", "consecutive_failures", n)
				}
			}
		case <-stop:
			return
		}
	}
}

// Flush exports the document and writes it to the slot now. Failures are
// logged and counted, and returned for callers that want them.
func (s *Scheduler) Flush(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	ctx, span := tracer.Start(ctx, "autosave.flush", trace.WithAttributes(
		attribute.String("autosave.key", s.key),
		attribute.String("autosave.format", string(s.codec.Format())),
	))
	defer span.End()

	data, err := s.codec.Encode(s.doc.ExportTemplate())
	if err != nil {
		return s.fail(span, fmt.Errorf("encode: %w", err))
	}
	span.SetAttributes(attribute.Int("autosave.bytes", len(data)))
	if s.lastWritten != nil && bytes.Equal(data, s.lastWritten) {
		s.stats.Skipped++
		span.AddEvent("unchanged")
		return nil
	}
	if err := s.slots.Put(ctx, s.key, data); err != nil {
		return s.fail(span, fmt.Errorf("write slot: %w", err))
	}

	s.lastWritten = data
	s.stats.Writes++
	s.stats.ConsecutiveFailures = 0
	s.stats.LastWrite = time.Now()
	s.stats.LastError = nil
	s.logger.Debug("autosave written", "bytes", len(data))
	return nil
}

// fail records err. Callers hold writeMu.
func (s *Scheduler) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	s.stats.Failures++
	s.stats.ConsecutiveFailures++
	s.stats.LastError = err
	s.logger.Error("autosave failed", "error", err)
	return err
}

// Stats returns a copy of the write counters.
func (s *Scheduler) Stats() Stats {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.stats
}
