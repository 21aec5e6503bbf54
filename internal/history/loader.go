package history

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dinehub/realtime/internal/api"
	"github.com/dinehub/realtime/internal/stream"
)

// PageFetcher fetches one page of message history.
type PageFetcher interface {
	History(ctx context.Context, roomKey string, page, size int) (*api.HistoryPage, error)
}

// DefaultPageSize is the page size used when none is configured.
const DefaultPageSize = 20

// Loader loads message history backwards for one room and feeds pages into
// a Merger. It is the model for the infinite-scroll trigger: the caller
// invokes LoadOlder whenever the viewport nears the top, and the loader
// guards against overlapping fetches and exhausted history itself.
type Loader struct {
	fetcher  PageFetcher
	merger   *stream.Merger
	roomKey  string
	pageSize int
	logger   *slog.Logger

	mu         sync.Mutex
	nextPage   int
	hasMore    bool
	inFlight   bool
	generation int
}

// NewLoader creates a loader for one room.
func NewLoader(fetcher PageFetcher, merger *stream.Merger, roomKey string, pageSize int, logger *slog.Logger) *Loader {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		fetcher:  fetcher,
		merger:   merger,
		roomKey:  roomKey,
		pageSize: pageSize,
		logger:   logger,
		hasMore:  true,
	}
}

// LoadOlder fetches the next (older) page and merges it. A no-op while a
// fetch is in flight or once history is exhausted. A fetch that resolves
// after Cancel is dropped, not applied.
func (l *Loader) LoadOlder(ctx context.Context) error {
	l.mu.Lock()
	if l.inFlight || !l.hasMore {
		l.mu.Unlock()
		return nil
	}
	l.inFlight = true
	page := l.nextPage
	gen := l.generation
	l.mu.Unlock()

	resp, err := l.fetcher.History(ctx, l.roomKey, page, l.pageSize)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.inFlight = false

	if err != nil {
		return fmt.Errorf("load page %d: %w", page, err)
	}

	if gen != l.generation {
		l.logger.Debug("dropping cancelled page load",
			"room_key", l.roomKey,
			"page", page,
		)
		return nil
	}

	if len(resp.Content) == 0 {
		l.hasMore = false
		return nil
	}

	l.nextPage++
	if resp.Last {
		l.hasMore = false
	}

	added := l.merger.PrependHistory(resp.Content)
	l.logger.Debug("history page merged",
		"room_key", l.roomKey,
		"page", page,
		"fetched", len(resp.Content),
		"added", added,
	)
	return nil
}

// Cancel invalidates in-flight fetches; their results are ignored. Called
// when the consuming view goes away.
func (l *Loader) Cancel() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.generation++
}

// HasMore reports whether more history is believed to exist.
func (l *Loader) HasMore() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hasMore
}

// InFlight reports whether a fetch is currently outstanding.
func (l *Loader) InFlight() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inFlight
}
