package queue

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go-blur/pkg/codec"
	"go-blur/pkg/common"
)

// MemoryQueue is an in-process stand-in for RedisClient with the same
// delivery semantics: entries are read once per group, stay pending until
// acknowledged and can be reclaimed once idle. Messages are stored
// encoded, so readers never share memory with writers.
type MemoryQueue struct {
	mu        sync.Mutex
	seq       int
	jobs      memStream
	results   memStream
	info      map[int][]byte
	completed map[int]bool
	now       func() time.Time
}

type memStream struct {
	entries []memEntry
	pending map[string]*memPending
	// wake is closed and replaced whenever an entry is added.
	wake chan struct{}
}

type memEntry struct {
	id   string
	data []byte
}

type memPending struct {
	memEntry
	consumer  string
	delivered time.Time
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		jobs:      newMemStream(),
		results:   newMemStream(),
		info:      make(map[int][]byte),
		completed: make(map[int]bool),
		now:       time.Now,
	}
}

func newMemStream() memStream {
	return memStream{
		pending: make(map[string]*memPending),
		wake:    make(chan struct{}),
	}
}

func (q *MemoryQueue) EnsureGroups(context.Context) error { return nil }

func (q *MemoryQueue) Close() error { return nil }

func (q *MemoryQueue) add(s *memStream, v any) (string, error) {
	data, err := codec.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode message: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.seq++
	id := strconv.Itoa(q.seq) + "-0"
	s.entries = append(s.entries, memEntry{id: id, data: data})
	close(s.wake)
	s.wake = make(chan struct{})
	return id, nil
}

// read pops the next entry, waiting up to block for one to arrive.
func (q *MemoryQueue) read(ctx context.Context, s *memStream, consumer string, block time.Duration, v any) (string, error) {
	timer := time.NewTimer(block)
	defer timer.Stop()

	for {
		q.mu.Lock()
		if len(s.entries) > 0 {
			e := s.entries[0]
			s.entries = s.entries[1:]
			s.pending[e.id] = &memPending{memEntry: e, consumer: consumer, delivered: q.now()}
			q.mu.Unlock()

			if err := codec.Unmarshal(e.data, v); err != nil {
				return "", fmt.Errorf("failed to decode entry %s: %w", e.id, err)
			}
			return e.id, nil
		}
		wake := s.wake
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
			return "", nil
		case <-wake:
		}
	}
}

func (q *MemoryQueue) ack(s *memStream, id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(s.pending, id)
}

func (q *MemoryQueue) AddJob(_ context.Context, job *common.JobMessage) (string, error) {
	return q.add(&q.jobs, job)
}

func (q *MemoryQueue) AddResult(_ context.Context, res *common.ResultMessage) (string, error) {
	return q.add(&q.results, res)
}

func (q *MemoryQueue) ReadJob(ctx context.Context, consumer string, block time.Duration) (string, *common.JobMessage, error) {
	var job common.JobMessage
	id, err := q.read(ctx, &q.jobs, consumer, block, &job)
	if err != nil || id == "" {
		return "", nil, err
	}
	return id, &job, nil
}

func (q *MemoryQueue) ReadResult(ctx context.Context, consumer string, block time.Duration) (string, *common.ResultMessage, error) {
	var res common.ResultMessage
	id, err := q.read(ctx, &q.results, consumer, block, &res)
	if err != nil || id == "" {
		return "", nil, err
	}
	return id, &res, nil
}

func (q *MemoryQueue) AckJob(_ context.Context, id string) error {
	q.ack(&q.jobs, id)
	return nil
}

func (q *MemoryQueue) AckResult(_ context.Context, id string) error {
	q.ack(&q.results, id)
	return nil
}

func (q *MemoryQueue) StoreImageInfo(_ context.Context, info *common.ImageInfo) error {
	data, err := codec.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to encode image info: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.info[info.ID] = data
	return nil
}

func (q *MemoryQueue) GetImageInfo(_ context.Context, imageID int) (*common.ImageInfo, error) {
	q.mu.Lock()
	data, ok := q.info[imageID]
	q.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no info for image %d", imageID)
	}

	var info common.ImageInfo
	if err := codec.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to decode info for image %d: %w", imageID, err)
	}
	return &info, nil
}

func (q *MemoryQueue) MarkImageCompleted(_ context.Context, imageID int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.completed[imageID] = true
	return nil
}

func (q *MemoryQueue) IsImageCompleted(_ context.Context, imageID int) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.completed[imageID], nil
}

func (q *MemoryQueue) ClaimStaleJobs(_ context.Context, consumer string, minIdle time.Duration, count int) ([]ClaimedJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var jobs []ClaimedJob
	for _, p := range q.jobs.pending {
		if len(jobs) == count {
			break
		}
		if now.Sub(p.delivered) < minIdle {
			continue
		}

		var job common.JobMessage
		if err := codec.Unmarshal(p.data, &job); err != nil {
			delete(q.jobs.pending, p.id)
			continue
		}
		p.consumer = consumer
		p.delivered = now
		jobs = append(jobs, ClaimedJob{ID: p.id, Job: &job})
	}
	return jobs, nil
}

// Pending reports how many jobs and results are delivered but not yet
// acknowledged.
func (q *MemoryQueue) Pending() (jobs, results int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs.pending), len(q.results.pending)
}

// Queued reports how many jobs and results are waiting to be delivered.
func (q *MemoryQueue) Queued() (jobs, results int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs.entries), len(q.results.entries)
}
