package capf

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/usecallmanagernz/daemons/internal/apperr"
)

// Store wraps a *gorm.DB for CAPF's device table (spec.md §4.7). The
// schema itself belongs to external admin tooling; Store only reads
// rows and performs the specific column-level UPDATEs a session
// engine needs.
type Store struct {
	db *gorm.DB
}

// NewStore wraps db.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// GetDevice returns the device row named name, or (nil, nil) if no
// such row exists.
func (s *Store) GetDevice(ctx context.Context, name string) (*DeviceRecord, error) {
	var record DeviceRecord

	err := s.db.WithContext(ctx).Where("device_name = ?", name).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, apperr.NewStoreError("get_device", err)
	}

	return &record, nil
}

// UpdateIssued persists a freshly issued certificate for device name:
// serial, PEM, and validity window, and resets operation to "none"
// (spec.md §4.2 Install, §4.7).
func (s *Store) UpdateIssued(ctx context.Context, name, serialHex, pem string, notBefore, notAfter time.Time) error {
	updates := map[string]any{
		"operation":        OperationNone,
		"serial_hex":       serialHex,
		"certificate_pem":  pem,
		"not_valid_before": notBefore.UTC().Format("2006-01-02 15:04:05"),
		"not_valid_after":  notAfter.UTC().Format("2006-01-02 15:04:05"),
	}

	err := s.db.WithContext(ctx).Model(&DeviceRecord{}).
		Where("device_name = ?", name).Updates(updates).Error
	if err != nil {
		return apperr.NewStoreError("update_device_issued", err)
	}

	return nil
}

// ClearCertificate NULLs a device's certificate columns and resets
// operation to "none" (spec.md §4.2 Delete, §4.7: explicit NULLs, not
// DELETE).
func (s *Store) ClearCertificate(ctx context.Context, name string) error {
	updates := map[string]any{
		"operation":        OperationNone,
		"serial_hex":       nil,
		"certificate_pem":  nil,
		"not_valid_before": nil,
		"not_valid_after":  nil,
	}

	err := s.db.WithContext(ctx).Model(&DeviceRecord{}).
		Where("device_name = ?", name).Updates(updates).Error
	if err != nil {
		return apperr.NewStoreError("clear_device_certificate", err)
	}

	return nil
}

// SetOperationNone resets a device's scheduled operation to "none"
// without touching certificate columns (spec.md §4.2 Fetch path: used
// when the phone reports no certificate, so there is nothing to
// record).
func (s *Store) SetOperationNone(ctx context.Context, name string) error {
	err := s.db.WithContext(ctx).Model(&DeviceRecord{}).
		Where("device_name = ?", name).Update("operation", OperationNone).Error
	if err != nil {
		return apperr.NewStoreError("set_operation_none", err)
	}

	return nil
}
