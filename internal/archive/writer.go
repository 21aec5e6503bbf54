package archive

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dinehub/realtime/internal/model"
)

// Config holds archive writer configuration.
type Config struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: time.Second,
		BufferSize:    10000,
	}
}

// Metrics tracks writer throughput.
type Metrics struct {
	Enqueued     int64
	Written      int64
	Dropped      int64
	FlushCount   int64
	WriteErrors  int64
	LastFlushDur time.Duration
}

// Writer batches received chat messages into the ops archive table.
// Ephemeral placeholders are never archived.
type Writer struct {
	cfg    Config
	db     *pgxpool.Pool
	logger *slog.Logger

	input chan model.Message

	batch       []model.Message
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics Metrics
}

// NewWriter creates an archive writer.
func NewWriter(cfg Config, db *pgxpool.Pool, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		cfg:    cfg,
		db:     db,
		logger: logger,
		input:  make(chan model.Message, cfg.BufferSize),
		batch:  make([]model.Message, 0, cfg.BatchSize),
	}
}

// Enqueue offers a message for archival without blocking the caller.
// Returns false when the buffer is full and the message was dropped.
func (w *Writer) Enqueue(msg model.Message) bool {
	if msg.Ephemeral {
		return false
	}

	select {
	case w.input <- msg:
		w.batchMu.Lock()
		w.metrics.Enqueued++
		w.batchMu.Unlock()
		return true
	default:
		w.batchMu.Lock()
		w.metrics.Dropped++
		w.batchMu.Unlock()
		w.logger.Warn("archive buffer full, dropping message",
			"room_key", msg.RoomKey,
		)
		return false
	}
}

// Start begins consuming messages and writing to the database.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("archive writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the writer and flushes the remaining batch,
// including messages still waiting in the input buffer.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping archive writer")

	if w.cancel != nil {
		w.cancel()
	}
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("archive writer stopped")
	case <-ctx.Done():
		w.logger.Warn("archive writer stop timed out")
	}

	w.drain()
	w.flush()
	return nil
}

// drain moves messages still buffered in the input channel into the batch.
// Called after the consume loop has stopped; anything left in the channel
// would otherwise be lost.
func (w *Writer) drain() {
	for {
		select {
		case msg := <-w.input:
			w.batchMu.Lock()
			w.batch = append(w.batch, msg)
			w.batchMu.Unlock()
		default:
			return
		}
	}
}

// Stats returns current metrics.
func (w *Writer) Stats() Metrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

func (w *Writer) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case msg := <-w.input:
			w.batchMu.Lock()
			w.batch = append(w.batch, msg)
			shouldFlush := len(w.batch) >= w.cfg.BatchSize
			w.batchMu.Unlock()

			if shouldFlush {
				w.flush()
			}
		}
	}
}

func (w *Writer) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush()
		}
	}
}

// flush writes the current batch via COPY.
func (w *Writer) flush() {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}
	batch := w.batch
	w.batch = make([]model.Message, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rows := make([][]any, 0, len(batch))
	for _, msg := range batch {
		rows = append(rows, []any{
			msg.ID,
			msg.RoomKey,
			string(msg.SenderType),
			msg.Content,
			msg.Timestamp.UTC(),
		})
	}

	_, err := w.db.CopyFrom(ctx,
		pgx.Identifier{"chat_messages"},
		[]string{"id", "room_key", "sender_type", "content", "ts"},
		pgx.CopyFromRows(rows),
	)

	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	w.metrics.FlushCount++
	w.metrics.LastFlushDur = time.Since(start)

	if err != nil {
		w.metrics.WriteErrors++
		w.logger.Error("archive flush failed",
			"batch", len(batch),
			"error", err,
		)
		return
	}

	w.metrics.Written += int64(len(batch))
	w.logger.Debug("archive batch written",
		"rows", len(batch),
		"duration", time.Since(start),
	)
}
