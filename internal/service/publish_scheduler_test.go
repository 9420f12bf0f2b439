package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/edulink-app/assignment-api/internal/models"
)

type mockPublishRepo struct {
	mu        sync.Mutex
	due       []models.Assignment
	activated []string
	failID    string
}

func (m *mockPublishRepo) ListDueForPublish(ctx context.Context, now time.Time) ([]models.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	due := m.due
	m.due = nil
	return due, nil
}

func (m *mockPublishRepo) Activate(ctx context.Context, id string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id == m.failID {
		return context.DeadlineExceeded
	}
	m.activated = append(m.activated, id)
	return nil
}

func (m *mockPublishRepo) activatedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.activated...)
}

type syncCacheInvalidator struct {
	mu       sync.Mutex
	patterns []string
}

func (m *syncCacheInvalidator) Invalidate(ctx context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patterns = append(m.patterns, pattern)
	return nil
}

func (m *syncCacheInvalidator) seen() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.patterns...)
}

func TestSchedulerActivatesDueAssignments(t *testing.T) {
	repo := &mockPublishRepo{due: []models.Assignment{
		{ID: "a1", Topic: "Unit 1"},
		{ID: "a2", Topic: "Unit 2"},
	}}
	cache := &syncCacheInvalidator{}
	scheduler := NewPublishScheduler(repo, cache, time.Hour, zap.NewNop())

	scheduler.Start(context.Background())
	// The first pass runs synchronously inside the goroutine before the first
	// tick; give it a moment and shut down.
	time.Sleep(50 * time.Millisecond)
	scheduler.Stop()

	assert.ElementsMatch(t, []string{"a1", "a2"}, repo.activatedIDs())
	assert.Contains(t, cache.seen(), "stats:assignment:a1*")
	assert.Contains(t, cache.seen(), "stats:assignment:a2*")
}

func TestSchedulerContinuesPastActivationFailure(t *testing.T) {
	repo := &mockPublishRepo{
		due:    []models.Assignment{{ID: "bad"}, {ID: "good"}},
		failID: "bad",
	}
	scheduler := NewPublishScheduler(repo, nil, time.Hour, zap.NewNop())

	scheduler.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	scheduler.Stop()

	assert.Equal(t, []string{"good"}, repo.activatedIDs())
}
