package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"resource-management-service/internal/core"

	"github.com/google/uuid"
)

// Repository is an in-memory core.Repository with the same compare-and-swap
// semantics as the PostgreSQL store.
type Repository struct {
	mu        sync.RWMutex
	resources map[uuid.UUID]*core.Resource
	now       func() time.Time
}

func NewRepository() *Repository {
	return &Repository{
		resources: make(map[uuid.UUID]*core.Resource),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*core.Resource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.resources[id]
	if !ok {
		return nil, &core.NotFoundError{ID: id}
	}
	out := stored.Clone()
	out.Characteristics = nil
	return out, nil
}

func (r *Repository) FindByIDWithCharacteristics(ctx context.Context, id uuid.UUID) (*core.Resource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.resources[id]
	if !ok {
		return nil, &core.NotFoundError{ID: id}
	}
	return stored.Clone(), nil
}

func (r *Repository) FindAll(ctx context.Context, page core.PageRequest) (*core.Page[*core.Resource], error) {
	return r.findPage(page, func(*core.Resource) bool { return true }), nil
}

func (r *Repository) FindByCountryCode(ctx context.Context, countryCode string, page core.PageRequest) (*core.Page[*core.Resource], error) {
	return r.findPage(page, func(res *core.Resource) bool {
		return res.CountryCode == countryCode
	}), nil
}

func (r *Repository) FindByType(ctx context.Context, t core.ResourceType, page core.PageRequest) (*core.Page[*core.Resource], error) {
	return r.findPage(page, func(res *core.Resource) bool {
		return res.Type == t
	}), nil
}

func (r *Repository) FindByCountryCodeAndType(ctx context.Context, countryCode string, t core.ResourceType, page core.PageRequest) (*core.Page[*core.Resource], error) {
	return r.findPage(page, func(res *core.Resource) bool {
		return res.CountryCode == countryCode && res.Type == t
	}), nil
}

func (r *Repository) FindAllWithCharacteristics(ctx context.Context) ([]*core.Resource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*core.Resource, 0, len(r.resources))
	for _, res := range r.resources {
		out = append(out, res.Clone())
	}
	sortResources(out, core.SortCreatedAt, false)
	return out, nil
}

func (r *Repository) Count(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.resources)), nil
}

func (r *Repository) Save(ctx context.Context, res *core.Resource) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if res.IsNew() {
		assignCharacteristicIDs(res)
		res.ID = uuid.New()
		res.CreatedAt = now
		res.UpdatedAt = now
		res.Version = 0
		r.resources[res.ID] = res.Clone()
		return nil
	}

	stored, ok := r.resources[res.ID]
	if !ok {
		return &core.NotFoundError{ID: res.ID}
	}
	if stored.Version != res.Version {
		return core.ErrConcurrencyConflict
	}

	assignCharacteristicIDs(res)
	res.CreatedAt = stored.CreatedAt
	res.UpdatedAt = now
	res.Version = stored.Version + 1
	r.resources[res.ID] = res.Clone()
	return nil
}

func assignCharacteristicIDs(res *core.Resource) {
	for _, c := range res.Characteristics {
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
	}
}

func (r *Repository) Delete(ctx context.Context, res *core.Resource) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.resources[res.ID]; !ok {
		return &core.NotFoundError{ID: res.ID}
	}
	delete(r.resources, res.ID)
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (r *Repository) findPage(page core.PageRequest, match func(*core.Resource) bool) *core.Page[*core.Resource] {
	r.mu.RLock()
	defer r.mu.RUnlock()

	page = page.Normalize()
	matched := make([]*core.Resource, 0)
	for _, res := range r.resources {
		if match(res) {
			matched = append(matched, res)
		}
	}
	sortResources(matched, page.Sort, page.Descending)

	total := int64(len(matched))
	start := min(page.Offset(), len(matched))
	end := min(start+page.Size, len(matched))

	content := make([]*core.Resource, 0, end-start)
	for _, res := range matched[start:end] {
		content = append(content, res.Clone())
	}
	return core.NewPage(content, page, total)
}

func sortResources(list []*core.Resource, field core.SortField, desc bool) {
	compare := func(a, b *core.Resource) int {
		switch field {
		case core.SortUpdatedAt:
			return a.UpdatedAt.Compare(b.UpdatedAt)
		case core.SortCountryCode:
			return strings.Compare(a.CountryCode, b.CountryCode)
		case core.SortType:
			return strings.Compare(string(a.Type), string(b.Type))
		default:
			return a.CreatedAt.Compare(b.CreatedAt)
		}
	}
	sort.SliceStable(list, func(i, j int) bool {
		c := compare(list[i], list[j])
		if c == 0 {
			return list[i].ID.String() < list[j].ID.String()
		}
		if desc {
			return c > 0
		}
		return c < 0
	})
}
