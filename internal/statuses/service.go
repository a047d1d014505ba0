package statuses

import (
	"context"
	"strings"
	"time"

	"github.com/ariefcatur/go-shop-orders/internal/access"
	"github.com/ariefcatur/go-shop-orders/internal/apperr"
	"github.com/ariefcatur/go-shop-orders/internal/postgres"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Store interface {
	Get(ctx context.Context, id string) (*Status, error)
	FindByName(ctx context.Context, name string) (*Status, error)
	NameTaken(ctx context.Context, name, excludeID string) (bool, error)
	Insert(ctx context.Context, s Status) error
	Update(ctx context.Context, s Status) error
	List(ctx context.Context) ([]Status, error)
	DeleteUnused(ctx context.Context, id string) (found, inUse bool, err error)
}

// Registry is the Status Registry. Every operation is admin-only.
type Registry struct {
	Store  Store
	Logger *zap.Logger
	Now    func() time.Time
}

func NewRegistry(store Store, logger *zap.Logger) *Registry {
	return &Registry{Store: store, Logger: logger, Now: time.Now}
}

func (r *Registry) Create(ctx context.Context, p access.Principal, name string) (Status, error) {
	if err := access.Admin(p); err != nil {
		return Status{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Status{}, apperr.Validation("status name is required")
	}
	if err := r.ensureUnique(ctx, name, ""); err != nil {
		return Status{}, err
	}
	s := Status{ID: uuid.NewString(), Name: name, CreatedAt: r.Now().UTC()}
	if err := r.Store.Insert(ctx, s); err != nil {
		return Status{}, r.fail("insert status", s.ID, name, err)
	}
	return s, nil
}

func (r *Registry) Get(ctx context.Context, p access.Principal, id string) (Status, error) {
	if err := access.Admin(p); err != nil {
		return Status{}, err
	}
	return r.get(ctx, id)
}

func (r *Registry) get(ctx context.Context, id string) (Status, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Status{}, apperr.NotFound("status", id)
	}
	s, err := r.Store.Get(ctx, id)
	if err != nil {
		return Status{}, r.fail("get status", id, "", err)
	}
	if s == nil {
		return Status{}, apperr.NotFound("status", id)
	}
	return *s, nil
}

func (r *Registry) Update(ctx context.Context, p access.Principal, id, name string) (Status, error) {
	if err := access.Admin(p); err != nil {
		return Status{}, err
	}
	s, err := r.get(ctx, id)
	if err != nil {
		return Status{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Status{}, apperr.Validation("status name is required")
	}
	if err := r.ensureUnique(ctx, name, id); err != nil {
		return Status{}, err
	}
	now := r.Now().UTC()
	s.Name = name
	s.UpdatedAt = &now
	if err := r.Store.Update(ctx, s); err != nil {
		return Status{}, r.fail("update status", id, name, err)
	}
	return s, nil
}

func (r *Registry) Remove(ctx context.Context, p access.Principal, id string) error {
	if err := access.Admin(p); err != nil {
		return err
	}
	if _, err := uuid.Parse(id); err != nil {
		return apperr.NotFound("status", id)
	}
	found, inUse, err := r.Store.DeleteUnused(ctx, id)
	if err != nil {
		if apperr.IsKind(postgres.Translate(err, "status"), apperr.KindConflict) {
			return apperr.StatusInUse(id)
		}
		return r.fail("remove status", id, "", err)
	}
	if !found {
		return apperr.NotFound("status", id)
	}
	if inUse {
		return apperr.StatusInUse(id)
	}
	return nil
}

// FindByName is used by the order engine outside the admin surface.
func (r *Registry) FindByName(ctx context.Context, name string) (*Status, error) {
	s, err := r.Store.FindByName(ctx, strings.TrimSpace(name))
	if err != nil {
		return nil, r.fail("find status", "", name, err)
	}
	return s, nil
}

func (r *Registry) List(ctx context.Context, p access.Principal) ([]Status, error) {
	if err := access.Admin(p); err != nil {
		return nil, err
	}
	out, err := r.Store.List(ctx)
	if err != nil {
		return nil, r.fail("list statuses", "", "", err)
	}
	return out, nil
}

func (r *Registry) ensureUnique(ctx context.Context, name, excludeID string) error {
	taken, err := r.Store.NameTaken(ctx, name, excludeID)
	if err != nil {
		return r.fail("check status name", excludeID, name, err)
	}
	if taken {
		return apperr.DuplicateName("status", name)
	}
	return nil
}

func (r *Registry) fail(op, id, name string, err error) error {
	translated := postgres.Translate(err, "status")
	if apperr.IsKind(translated, apperr.KindDuplicateName) {
		return apperr.DuplicateName("status", name)
	}
	r.Logger.Error("status store failure",
		zap.String("op", op), zap.String("status_id", id), zap.String("name", name), zap.Error(err))
	return translated
}
