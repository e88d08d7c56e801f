package mocks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tillworks/opsledger/internal/domain"
	"github.com/tillworks/opsledger/internal/usecase"
)

// MockEventStore is a mock implementation of EventStore.
type MockEventStore struct {
	mu      sync.RWMutex
	records map[string][]*domain.EventRecord

	AppendFunc        func(ctx context.Context, tx usecase.Transaction, record *domain.EventRecord) error
	ListByAccountFunc func(ctx context.Context, accountID string) ([]*domain.EventRecord, error)
}

func NewMockEventStore() *MockEventStore {
	return &MockEventStore{
		records: make(map[string][]*domain.EventRecord),
	}
}

func (m *MockEventStore) Append(ctx context.Context, tx usecase.Transaction, record *domain.EventRecord) error {
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, tx, record)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.AccountID] = append(m.records[record.AccountID], record)
	return nil
}

func (m *MockEventStore) ListByAccount(ctx context.Context, accountID string) ([]*domain.EventRecord, error) {
	if m.ListByAccountFunc != nil {
		return m.ListByAccountFunc(ctx, accountID)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	records := make([]*domain.EventRecord, len(m.records[accountID]))
	copy(records, m.records[accountID])
	sort.Slice(records, func(i, j int) bool { return records[i].Sequence < records[j].Sequence })
	return records, nil
}

// MockSnapshotStore is a mock implementation of SnapshotStore.
type MockSnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[string]*domain.Snapshot

	SaveFunc   func(ctx context.Context, snapshot *domain.Snapshot) error
	SaveTxFunc func(ctx context.Context, tx usecase.Transaction, snapshot *domain.Snapshot) error
	GetFunc    func(ctx context.Context, kind, id string) (*domain.Snapshot, error)
}

func NewMockSnapshotStore() *MockSnapshotStore {
	return &MockSnapshotStore{
		snapshots: make(map[string]*domain.Snapshot),
	}
}

func snapshotKey(kind, id string) string {
	return kind + "/" + id
}

func (m *MockSnapshotStore) Save(ctx context.Context, snapshot *domain.Snapshot) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, snapshot)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[snapshotKey(snapshot.Kind, snapshot.ID)] = snapshot
	return nil
}

func (m *MockSnapshotStore) SaveTx(ctx context.Context, tx usecase.Transaction, snapshot *domain.Snapshot) error {
	if m.SaveTxFunc != nil {
		return m.SaveTxFunc(ctx, tx, snapshot)
	}
	return m.Save(ctx, snapshot)
}

func (m *MockSnapshotStore) Get(ctx context.Context, kind, id string) (*domain.Snapshot, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, kind, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if snap, ok := m.snapshots[snapshotKey(kind, id)]; ok {
		return snap, nil
	}
	return nil, domain.ErrSnapshotNotFound
}

// MockOutboxRepository is a mock implementation of OutboxRepository.
type MockOutboxRepository struct {
	mu     sync.RWMutex
	events []*domain.OutboxEvent

	CreateFunc          func(ctx context.Context, tx usecase.Transaction, event *domain.OutboxEvent) error
	GetUnpublishedFunc  func(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	MarkPublishedFunc   func(ctx context.Context, id string, publishedAt time.Time) error
	DeletePublishedFunc func(ctx context.Context, before time.Time) error
}

func NewMockOutboxRepository() *MockOutboxRepository {
	return &MockOutboxRepository{}
}

func (m *MockOutboxRepository) Create(ctx context.Context, tx usecase.Transaction, event *domain.OutboxEvent) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tx, event)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *MockOutboxRepository) GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	if m.GetUnpublishedFunc != nil {
		return m.GetUnpublishedFunc(ctx, limit)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.OutboxEvent
	for _, e := range m.events {
		if !e.Published {
			out = append(out, e)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *MockOutboxRepository) MarkPublished(ctx context.Context, id string, publishedAt time.Time) error {
	if m.MarkPublishedFunc != nil {
		return m.MarkPublishedFunc(ctx, id, publishedAt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e.ID == id {
			e.Published = true
			e.PublishedAt = &publishedAt
			return nil
		}
	}
	return nil
}

func (m *MockOutboxRepository) DeletePublished(ctx context.Context, before time.Time) error {
	if m.DeletePublishedFunc != nil {
		return m.DeletePublishedFunc(ctx, before)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []*domain.OutboxEvent
	for _, e := range m.events {
		if e.Published && e.PublishedAt != nil && e.PublishedAt.Before(before) {
			continue
		}
		kept = append(kept, e)
	}
	m.events = kept
	return nil
}

// Events returns all events recorded so far, published or not.
func (m *MockOutboxRepository) Events() []*domain.OutboxEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.OutboxEvent, len(m.events))
	copy(out, m.events)
	return out
}

// MockTransactionManager is a mock implementation of TransactionManager.
type MockTransactionManager struct {
	BeginFunc func(ctx context.Context) (usecase.Transaction, error)
}

func NewMockTransactionManager() *MockTransactionManager {
	return &MockTransactionManager{}
}

func (m *MockTransactionManager) Begin(ctx context.Context) (usecase.Transaction, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx)
	}
	return &MockTransaction{}, nil
}

// MockTransaction is a mock implementation of Transaction.
type MockTransaction struct {
	CommitFunc   func(ctx context.Context) error
	RollbackFunc func(ctx context.Context) error
}

func (m *MockTransaction) Commit(ctx context.Context) error {
	if m.CommitFunc != nil {
		return m.CommitFunc(ctx)
	}
	return nil
}

func (m *MockTransaction) Rollback(ctx context.Context) error {
	if m.RollbackFunc != nil {
		return m.RollbackFunc(ctx)
	}
	return nil
}

// MockIDGenerator is a mock implementation of IDGenerator.
type MockIDGenerator struct {
	GenerateFunc func() string
	counter      int
	mu           sync.Mutex
}

func NewMockIDGenerator() *MockIDGenerator {
	return &MockIDGenerator{}
}

func (m *MockIDGenerator) Generate() string {
	if m.GenerateFunc != nil {
		return m.GenerateFunc()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter++
	return fmt.Sprintf("mock-id-%d", m.counter)
}

// MockRetrier is a mock implementation of Retrier. The default behavior
// runs the operation once without retries.
type MockRetrier struct {
	RetryFunc func(ctx context.Context, operation func() error) error
}

func NewMockRetrier() *MockRetrier {
	return &MockRetrier{}
}

func (m *MockRetrier) Retry(ctx context.Context, operation func() error) error {
	if m.RetryFunc != nil {
		return m.RetryFunc(ctx, operation)
	}
	return operation()
}

// MockCardIndex is a mock implementation of CardIndex.
type MockCardIndex struct {
	mu  sync.Mutex
	ids []string

	ExpiredCardsFunc func(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}

func NewMockCardIndex(ids ...string) *MockCardIndex {
	return &MockCardIndex{ids: ids}
}

func (m *MockCardIndex) ExpiredCards(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	if m.ExpiredCardsFunc != nil {
		return m.ExpiredCardsFunc(ctx, cutoff, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.ids) > limit {
		return m.ids[:limit], nil
	}
	return m.ids, nil
}

// MockDedupeStore is a mock implementation of DedupeStore.
type MockDedupeStore struct {
	mu   sync.Mutex
	seen map[string]struct{}

	MarkOnceFunc func(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

func NewMockDedupeStore() *MockDedupeStore {
	return &MockDedupeStore{
		seen: make(map[string]struct{}),
	}
}

func (m *MockDedupeStore) MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if m.MarkOnceFunc != nil {
		return m.MarkOnceFunc(ctx, key, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[key]; ok {
		return false, nil
	}
	m.seen[key] = struct{}{}
	return true, nil
}

// MockExecutor is a mock implementation of Executor. It serializes commands
// per key with a plain mutex, preserving the single-writer contract without
// spawning workers.
type MockExecutor struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex

	DoFunc func(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

func NewMockExecutor() *MockExecutor {
	return &MockExecutor{
		locks: make(map[string]*sync.Mutex),
	}
}

func (m *MockExecutor) Do(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if m.DoFunc != nil {
		return m.DoFunc(ctx, key, fn)
	}
	m.mu.Lock()
	lock, ok := m.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[key] = lock
	}
	m.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	return fn(ctx)
}
