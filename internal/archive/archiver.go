package archive

import (
	"context"
	"encoding/json"
	"fmt"

	"pbxcore/pkg/domain"
)

// RetiredArchiver writes retired records as JSON objects under
// retired/<family>/<id>.json.
type RetiredArchiver struct {
	store Store
}

// NewRetiredArchiver wraps an archive store.
func NewRetiredArchiver(store Store) *RetiredArchiver {
	return &RetiredArchiver{store: store}
}

// ArchiveRetired serializes the record and stores it under its audit key.
func (a *RetiredArchiver) ArchiveRetired(ctx context.Context, family domain.FamilyType, id string, record any) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("encode retired %s %s: %w", family, id, err)
	}
	key := fmt.Sprintf("retired/%s/%s.json", family, id)
	if err := a.store.Put(ctx, key, data); err != nil {
		return fmt.Errorf("archive retired %s %s: %w", family, id, err)
	}
	return nil
}
