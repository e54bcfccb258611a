package service

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/knowdhq/knowd/internal/model"
)

type ActivityStore interface {
	Insert(ctx context.Context, item *model.SearchActivity) error
	Recent(ctx context.Context, ownerID string, limit uint) ([]model.SearchActivity, error)
}

// ActivityService records search events for analytics through a buffered
// queue drained by a single background goroutine. Log never blocks and a
// storage failure cannot reach the request path; when the buffer is full
// the event is dropped and counted.
type ActivityService struct {
	store   ActivityStore
	queue   chan model.SearchActivity
	done    chan struct{}
	dropped atomic.Int64
}

func NewActivityService(store ActivityStore, buffer int) *ActivityService {
	if buffer <= 0 {
		buffer = 256
	}
	s := &ActivityService{
		store: store,
		queue: make(chan model.SearchActivity, buffer),
		done:  make(chan struct{}),
	}
	go s.drain()
	return s
}

func (s *ActivityService) Log(ownerID, query string, mode model.MatchMode, resultCount int) {
	item := model.SearchActivity{
		ID:          newID(),
		OwnerID:     ownerID,
		Query:       query,
		Mode:        string(mode),
		ResultCount: resultCount,
		Ctime:       time.Now().Unix(),
	}
	select {
	case s.queue <- item:
	default:
		s.dropped.Add(1)
	}
}

func (s *ActivityService) drain() {
	defer close(s.done)
	for item := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.store.Insert(ctx, &item); err != nil {
			logutil.GetLogger(ctx).Warn("failed to log search activity",
				zap.String("owner_id", item.OwnerID),
				zap.Error(err),
			)
		}
		cancel()
	}
}

func (s *ActivityService) Dropped() int64 {
	return s.dropped.Load()
}

// Close flushes the queue and stops the drain goroutine. Call on shutdown.
func (s *ActivityService) Close() {
	close(s.queue)
	<-s.done
}

func (s *ActivityService) Recent(ctx context.Context, ownerID string, limit uint) ([]model.SearchActivity, error) {
	return s.store.Recent(ctx, ownerID, limit)
}
