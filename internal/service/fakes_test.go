package service

import (
	"context"

	"github.com/octobees/prospect-bridge/internal/entity"
	"github.com/octobees/prospect-bridge/internal/repository"
)

type fakeLeads struct {
	byLinkedIn  map[string]entity.Lead
	byName      map[string]entity.Lead
	byFirstName map[string]entity.Lead
	err         error
	calls       []string
	loaded      []entity.Lead
}

func (f *fakeLeads) BulkUpsert(ctx context.Context, leads []entity.Lead) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.loaded = append(f.loaded, leads...)
	return len(leads), nil
}

func (f *fakeLeads) FindByLinkedIn(ctx context.Context, url string) (*entity.Lead, error) {
	f.calls = append(f.calls, "linkedin")
	return f.find(f.byLinkedIn, url)
}

func (f *fakeLeads) FindByName(ctx context.Context, first, last string) (*entity.Lead, error) {
	f.calls = append(f.calls, "name")
	return f.find(f.byName, first+" "+last)
}

func (f *fakeLeads) FindByFirstName(ctx context.Context, first string) (*entity.Lead, error) {
	f.calls = append(f.calls, "first_name")
	return f.find(f.byFirstName, first)
}

func (f *fakeLeads) find(m map[string]entity.Lead, key string) (*entity.Lead, error) {
	if f.err != nil {
		return nil, f.err
	}
	lead, ok := m[key]
	if !ok {
		return nil, repository.ErrLeadNotFound
	}
	return &lead, nil
}

type fakeRouting struct {
	entries map[string]entity.RoutingEntry
	stats   []entity.ProfileStats
	err     error
	loaded  []entity.RoutingEntry
}

func (f *fakeRouting) BulkUpsert(ctx context.Context, entries []entity.RoutingEntry) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.loaded = append(f.loaded, entries...)
	return len(entries), nil
}

func (f *fakeRouting) FindByEmail(ctx context.Context, email string) (*entity.RoutingEntry, error) {
	if f.err != nil {
		return nil, f.err
	}
	entry, ok := f.entries[email]
	if !ok {
		return nil, repository.ErrRoutingNotFound
	}
	return &entry, nil
}

func (f *fakeRouting) ProfileStats(ctx context.Context) ([]entity.ProfileStats, error) {
	return f.stats, f.err
}

// fakeQueue mimics the unique email constraint of the prospects table.
type fakeQueue struct {
	rows   map[string]entity.Prospect
	nextID int64
	err    error
}

func (f *fakeQueue) Insert(ctx context.Context, p *entity.Prospect) error {
	if f.err != nil {
		return f.err
	}
	if f.rows == nil {
		f.rows = make(map[string]entity.Prospect)
	}
	if _, ok := f.rows[p.Email]; ok {
		return repository.ErrDuplicateEmail
	}
	f.nextID++
	p.ID = f.nextID
	p.Status = entity.StatusPending
	p.Attempts = 0
	f.rows[p.Email] = *p
	return nil
}

func (f *fakeQueue) StatusCounts(ctx context.Context) (entity.StatusCounts, error) {
	if f.err != nil {
		return entity.StatusCounts{}, f.err
	}
	return entity.StatusCounts{Pending: len(f.rows)}, nil
}
