// Package memory is an in-process transport.ExecutionStore for tests and
// single-replica deployments. Records do not survive a restart; a size
// cap evicts the least recently used record.
package memory

import (
	"context"
	"math"
	"slices"
	"strings"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/rhuss/runcode/pkg/api"
	"github.com/rhuss/runcode/pkg/debug"
	"github.com/rhuss/runcode/pkg/storage"
	"github.com/rhuss/runcode/pkg/transport"
)

// Store keeps execution records in an LRU. Reads refresh recency, so the
// records an operator looks at are the last to go.
type Store struct {
	mu   sync.Mutex
	recs *simplelru.LRU[string, *api.ExecutionRecord]
}

var _ transport.ExecutionStore = (*Store)(nil)

// New returns a store holding at most maxSize records. Zero or less
// means no limit.
func New(maxSize int) *Store {
	if maxSize <= 0 {
		maxSize = math.MaxInt32
	}
	recs, err := simplelru.NewLRU[string, *api.ExecutionRecord](maxSize, nil)
	if err != nil {
		// Only returned for a non-positive size.
		panic(err)
	}
	return &Store{recs: recs}
}

// SaveExecution stores a copy of rec, owned by the context tenant when
// there is one.
func (s *Store) SaveExecution(ctx context.Context, rec *api.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.recs.Contains(rec.ID) {
		return storage.ErrConflict
	}

	stored := *rec
	stored.Object = "execution"
	if tenant := storage.Tenant(ctx); tenant != "" {
		stored.TenantID = tenant
	}
	if s.recs.Add(stored.ID, &stored) {
		debug.Log("storage", "evicted least recently used execution record", "size", s.recs.Len())
	}
	return nil
}

func (s *Store) GetExecution(ctx context.Context, id string) (*api.ExecutionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.recs.Peek(id)
	if !ok || !storage.Visible(ctx, rec.TenantID) {
		return nil, storage.ErrNotFound
	}
	s.recs.Get(id) // refresh recency for the owner only
	cp := *rec
	return &cp, nil
}

func (s *Store) DeleteExecution(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.recs.Peek(id)
	if !ok || !storage.Visible(ctx, rec.TenantID) {
		return storage.ErrNotFound
	}
	s.recs.Remove(id)
	return nil
}

// ListExecutions pages through the tenant's records, newest first unless
// opts.Order is "asc". Ties on CreatedAt are broken by ID. An After
// cursor that is not in the result set yields an empty page.
func (s *Store) ListExecutions(ctx context.Context, opts transport.ListOptions) (*api.ExecutionList, error) {
	// Stored records are never modified, so they can be read unlocked.
	s.mu.Lock()
	all := s.recs.Values()
	s.mu.Unlock()

	matches := slices.DeleteFunc(all, func(r *api.ExecutionRecord) bool {
		return !storage.Visible(ctx, r.TenantID) || (opts.SessionID != "" && r.SessionID != opts.SessionID)
	})

	slices.SortFunc(matches, func(a, b *api.ExecutionRecord) int {
		c := a.CreatedAt.Compare(b.CreatedAt)
		if c == 0 {
			c = strings.Compare(a.ID, b.ID)
		}
		if opts.Order != "asc" {
			c = -c
		}
		return c
	})

	if opts.After != "" {
		i := slices.IndexFunc(matches, func(r *api.ExecutionRecord) bool { return r.ID == opts.After })
		if i < 0 {
			matches = nil
		} else {
			matches = matches[i+1:]
		}
	}

	limit := opts.EffectiveLimit()
	page := &api.ExecutionList{Object: "list", HasMore: len(matches) > limit}
	if page.HasMore {
		matches = matches[:limit]
	}
	page.Data = make([]*api.ExecutionRecord, 0, len(matches))
	for _, m := range matches {
		cp := *m
		page.Data = append(page.Data, &cp)
	}
	if n := len(page.Data); n > 0 {
		page.FirstID, page.LastID = page.Data[0].ID, page.Data[n-1].ID
	}
	return page, nil
}

// HealthCheck always succeeds.
func (s *Store) HealthCheck(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recs.Len()
}
