package job

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/quantbench/internal/core"
	cache "github.com/patrickmn/go-cache"
)

// Status represents job status.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

// Done reports whether the job has finished.
func (s Status) Done() bool {
	return s == StatusComplete || s == StatusFailed
}

// Job represents an async job.
type Job struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Status    Status      `json:"status"`
	Result    any         `json:"result,omitempty"`
	Error     *core.Error `json:"error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Store keeps async jobs in memory. Jobs expire ttl after their last
// update; when maxSize is reached the oldest job is evicted.
type Store struct {
	jobs    *cache.Cache
	maxSize int
	ttl     time.Duration
	mu      sync.Mutex
}

// NewStore creates a new job store. ttl <= 0 keeps jobs until evicted.
func NewStore(maxSize int, ttl time.Duration) *Store {
	expiry, cleanup := ttl, ttl*2
	if ttl <= 0 {
		expiry, cleanup = cache.NoExpiration, 0
	}
	return &Store{
		jobs:    cache.New(expiry, cleanup),
		maxSize: maxSize,
		ttl:     expiry,
	}
}

// Create creates a new job and returns a copy of it.
func (s *Store) Create(jobType string) Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	job := &Job{
		ID:        uuid.NewString(),
		Type:      jobType,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if s.maxSize > 0 && s.jobs.ItemCount() >= s.maxSize {
		s.jobs.DeleteExpired()
		if s.jobs.ItemCount() >= s.maxSize {
			s.evictOldest()
		}
	}

	s.jobs.Set(job.ID, job, s.ttl)
	return *job
}

func (s *Store) evictOldest() {
	var (
		oldestID string
		oldest   time.Time
	)
	for id, item := range s.jobs.Items() {
		j := item.Object.(*Job)
		if oldestID == "" || j.CreatedAt.Before(oldest) {
			oldestID, oldest = id, j.CreatedAt
		}
	}
	if oldestID != "" {
		s.jobs.Delete(oldestID)
	}
}

// Get retrieves a copy of a job by ID.
func (s *Store) Get(id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.jobs.Get(id)
	if !ok {
		return nil, core.WrapError(core.ErrJobNotFound, nil)
	}
	jobCopy := *v.(*Job)
	return &jobCopy, nil
}

// Update modifies a job using an update function and refreshes its TTL.
func (s *Store) Update(id string, fn func(*Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.jobs.Get(id)
	if !ok {
		return core.WrapError(core.ErrJobNotFound, nil)
	}

	job := v.(*Job)
	fn(job)
	job.UpdatedAt = time.Now()
	s.jobs.Set(id, job, s.ttl)
	return nil
}

// List returns all live jobs, newest first.
func (s *Store) List() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.jobs.Items()
	result := make([]Job, 0, len(items))
	for _, item := range items {
		result = append(result, *item.Object.(*Job))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result
}

// Active counts jobs that have not finished.
func (s *Store) Active() int {
	n := 0
	for _, j := range s.List() {
		if !j.Status.Done() {
			n++
		}
	}
	return n
}
