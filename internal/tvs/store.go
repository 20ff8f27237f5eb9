package tvs

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/usecallmanagernz/daemons/internal/apperr"
)

// Store wraps a *gorm.DB for TVS's trust_records table (spec.md §4.7).
type Store struct {
	db *gorm.DB
}

// NewStore wraps db.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// GetTrustRecord returns the trust record for fingerprintHex, or
// (nil, nil) if no such record exists.
func (s *Store) GetTrustRecord(ctx context.Context, fingerprintHex string) (*TrustRecord, error) {
	var record TrustRecord

	err := s.db.WithContext(ctx).Where("certificate_hash = ?", fingerprintHex).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, apperr.NewStoreError("get_trust_record", err)
	}

	return &record, nil
}
