package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Harshitk-cp/ranger/internal/domain"
	"github.com/Harshitk-cp/ranger/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

// mockKnowledgeStore is an in-memory domain.KnowledgeStore.
type mockKnowledgeStore struct {
	mu      sync.Mutex
	items   map[string]domain.KnowledgeItem
	puts    int
	failPut error
}

func newMockKnowledgeStore() *mockKnowledgeStore {
	return &mockKnowledgeStore{items: make(map[string]domain.KnowledgeItem)}
}

func (m *mockKnowledgeStore) Get(ctx context.Context, key string) (*domain.KnowledgeItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return item.Clone(), nil
}

func (m *mockKnowledgeStore) Put(ctx context.Context, items ...*domain.KnowledgeItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPut != nil {
		return m.failPut
	}
	m.puts++
	for _, item := range items {
		m.items[item.Key] = *item.Clone()
	}
	return nil
}

func (m *mockKnowledgeStore) List(ctx context.Context, includeMerged bool) ([]domain.KnowledgeItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.KnowledgeItem
	for _, item := range m.items {
		if includeMerged || item.Active() {
			out = append(out, *item.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *mockKnowledgeStore) Search(ctx context.Context, terms []string, limit int) ([]domain.KnowledgeItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.KnowledgeItem
	hits := make(map[string]int)
	for _, item := range m.items {
		if !item.Active() {
			continue
		}
		n := 0
		for _, t := range terms {
			if strings.Contains(strings.ToLower(item.Statement), strings.ToLower(t)) {
				n++
			}
		}
		if n > 0 {
			out = append(out, *item.Clone())
			hits[item.Key] = n
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if hits[out[i].Key] != hits[out[j].Key] {
			return hits[out[i].Key] > hits[out[j].Key]
		}
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Key < out[j].Key
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockKnowledgeStore) DeleteMerged(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, item := range m.items {
		if !item.Active() {
			delete(m.items, k)
			n++
		}
	}
	return n, nil
}

func (m *mockKnowledgeStore) Ping(ctx context.Context) error { return nil }

func (m *mockKnowledgeStore) snapshot() map[string]domain.KnowledgeItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]domain.KnowledgeItem, len(m.items))
	for k, v := range m.items {
		out[k] = *v.Clone()
	}
	return out
}

// mockBackupStore is an in-memory domain.BackupStore.
type mockBackupStore struct {
	mu        sync.Mutex
	backups   []domain.Backup
	failWrite error
}

func newMockBackupStore() *mockBackupStore {
	return &mockBackupStore{}
}

func (m *mockBackupStore) Create(ctx context.Context, b *domain.Backup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite != nil {
		return m.failWrite
	}
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	b.CreatedAt = time.Now().UTC().Add(time.Duration(len(m.backups)) * time.Microsecond)
	cp := *b
	cp.Content = append([]byte(nil), b.Content...)
	m.backups = append(m.backups, cp)
	return nil
}

func (m *mockBackupStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Backup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.backups {
		if b.ID == id {
			cp := b
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *mockBackupStore) Latest(ctx context.Context, target string) (*domain.Backup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.backups) - 1; i >= 0; i-- {
		if m.backups[i].Target == target {
			cp := m.backups[i]
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *mockBackupStore) List(ctx context.Context, target string) ([]domain.Backup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Backup
	for i := len(m.backups) - 1; i >= 0; i-- {
		if target == "" || m.backups[i].Target == target {
			cp := m.backups[i]
			cp.Content = nil
			out = append(out, cp)
		}
	}
	return out, nil
}

func (m *mockBackupStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	newest := make(map[string]uuid.UUID)
	for _, b := range m.backups {
		newest[b.Target] = b.ID
	}
	var kept []domain.Backup
	var n int64
	for _, b := range m.backups {
		if b.CreatedAt.Before(cutoff) && newest[b.Target] != b.ID {
			n++
			continue
		}
		kept = append(kept, b)
	}
	m.backups = kept
	return n, nil
}

func (m *mockBackupStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.backups)
}

// mockProposalStore is an in-memory domain.ProposalStore.
type mockProposalStore struct {
	mu        sync.Mutex
	proposals map[uuid.UUID]domain.ModificationProposal
	order     []uuid.UUID
}

func newMockProposalStore() *mockProposalStore {
	return &mockProposalStore{proposals: make(map[uuid.UUID]domain.ModificationProposal)}
}

func (m *mockProposalStore) Create(ctx context.Context, p *domain.ModificationProposal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	m.proposals[p.ID] = *p
	m.order = append(m.order, p.ID)
	return nil
}

func (m *mockProposalStore) Update(ctx context.Context, p *domain.ModificationProposal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.proposals[p.ID]; !ok {
		return store.ErrNotFound
	}
	m.proposals[p.ID] = *p
	return nil
}

func (m *mockProposalStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.ModificationProposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.proposals[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (m *mockProposalStore) List(ctx context.Context, status domain.ProposalStatus) ([]domain.ModificationProposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ModificationProposal
	for i := len(m.order) - 1; i >= 0; i-- {
		p := m.proposals[m.order[i]]
		if status == "" || p.Status == status {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockProposalStore) Outcomes(ctx context.Context, category string) (domain.ProposalOutcomes, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var o domain.ProposalOutcomes
	for _, p := range m.proposals {
		if p.Category != category {
			continue
		}
		switch p.Status {
		case domain.ProposalApplied:
			o.Applied++
		case domain.ProposalRolledBack:
			o.RolledBack++
		case domain.ProposalRejected:
			o.Rejected++
		}
	}
	return o, nil
}

func (m *mockProposalStore) HasRejected(ctx context.Context, fingerprint string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.proposals {
		if p.Status == domain.ProposalRejected && p.Fingerprint() == fingerprint {
			return true, nil
		}
	}
	return false, nil
}

// stubSearchClient answers every query with fixed results.
type stubSearchClient struct {
	name    string
	results []domain.SearchResult
	err     error
	release chan struct{}
	calls   atomic.Int32
}

func (c *stubSearchClient) Name() string { return c.name }

func (c *stubSearchClient) Search(ctx context.Context, query string) ([]domain.SearchResult, error) {
	c.calls.Add(1)
	if c.release != nil {
		select {
		case <-c.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if c.err != nil {
		return nil, c.err
	}
	return c.results, nil
}

// MockSearchClient mocks the domain.SearchClient interface.
type MockSearchClient struct {
	mock.Mock
}

func (m *MockSearchClient) Name() string {
	return m.Called().String(0)
}

func (m *MockSearchClient) Search(ctx context.Context, query string) ([]domain.SearchResult, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.SearchResult), args.Error(1)
}

// fixedTrust scores every URL by its host suffix.
type fixedTrust map[string]float64

func (f fixedTrust) ScoreURL(rawURL string) float64 {
	for suffix, score := range f {
		if strings.Contains(rawURL, suffix) {
			return score
		}
	}
	return 0.5
}

var errBoom = errors.New("boom")
