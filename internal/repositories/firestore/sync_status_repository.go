package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stockyard/api/internal/domain"
	pfirestore "github.com/stockyard/api/internal/platform/firestore"
	"github.com/stockyard/api/internal/repositories"
)

const syncStatusCollection = "syncStatus"

// SyncStatusRepository stores the single live sync snapshot per owner and kind.
// The document ID is derived from (owner, kind) so each save overwrites the
// previous snapshot instead of appending history.
type SyncStatusRepository struct {
	base *pfirestore.BaseRepository[syncStatusDocument]
}

// NewSyncStatusRepository constructs a Firestore-backed sync status repository.
func NewSyncStatusRepository(provider *pfirestore.Provider) (*SyncStatusRepository, error) {
	if provider == nil {
		return nil, errors.New("sync status repository requires firestore provider")
	}
	return &SyncStatusRepository{
		base: pfirestore.NewBaseRepository[syncStatusDocument](provider, syncStatusCollection),
	}, nil
}

// Save overwrites the snapshot for (OwnerID, Kind).
func (r *SyncStatusRepository) Save(ctx context.Context, status domain.SyncStatus) error {
	id, err := syncStatusDocID(status.OwnerID, status.Kind)
	if err != nil {
		return err
	}
	doc := syncStatusDocument{
		OwnerID:   status.OwnerID,
		Kind:      string(status.Kind),
		Status:    string(status.Status),
		Batches:   status.Batches,
		Inserted:  status.Inserted,
		Updated:   status.Updated,
		Message:   status.Message,
		StartedAt: status.StartedAt,
		UpdatedAt: status.UpdatedAt,
	}
	_, err = r.base.Set(ctx, id, doc)
	return err
}

// Find returns the latest snapshot for (ownerID, kind), or
// repositories.ErrNotFound when no sync has run yet.
func (r *SyncStatusRepository) Find(ctx context.Context, ownerID string, kind domain.SyncKind) (domain.SyncStatus, error) {
	id, err := syncStatusDocID(ownerID, kind)
	if err != nil {
		return domain.SyncStatus{}, err
	}
	doc, err := r.base.Get(ctx, id)
	if err != nil {
		if pfirestore.IsNotFound(err) {
			return domain.SyncStatus{}, repositories.ErrNotFound
		}
		return domain.SyncStatus{}, err
	}
	return domain.SyncStatus{
		OwnerID:   doc.Data.OwnerID,
		Kind:      domain.SyncKind(doc.Data.Kind),
		Status:    domain.SyncState(doc.Data.Status),
		Batches:   doc.Data.Batches,
		Inserted:  doc.Data.Inserted,
		Updated:   doc.Data.Updated,
		Message:   doc.Data.Message,
		StartedAt: doc.Data.StartedAt,
		UpdatedAt: doc.Data.UpdatedAt,
	}, nil
}

func syncStatusDocID(ownerID string, kind domain.SyncKind) (string, error) {
	owner := strings.TrimSpace(ownerID)
	if owner == "" {
		return "", errors.New("sync status owner id is required")
	}
	if kind == "" {
		return "", errors.New("sync status kind is required")
	}
	return fmt.Sprintf("%s_%s", owner, kind), nil
}

type syncStatusDocument struct {
	OwnerID   string    `firestore:"ownerId"`
	Kind      string    `firestore:"kind"`
	Status    string    `firestore:"status"`
	Batches   int       `firestore:"batches"`
	Inserted  int       `firestore:"inserted"`
	Updated   int       `firestore:"updated"`
	Message   string    `firestore:"message"`
	StartedAt time.Time `firestore:"startedAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}
