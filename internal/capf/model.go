package capf

import "time"

// Operation values for DeviceRecord.Operation (spec.md §3).
const (
	OperationInstall = "install"
	OperationFetch   = "fetch"
	OperationDelete  = "delete"
	OperationNone    = "none"
)

// AuthMode values for DeviceRecord.AuthMode (spec.md §3).
const (
	AuthModeNoPassword  = "no-password"
	AuthModePassword    = "password"
	AuthModeCertificate = "certificate"
)

// DeviceRecord is the CAPF store's device row (spec.md §3), keyed by
// device_name ("SEP" + 12 uppercase hex digits). Created and mutated
// by external admin tooling; read by sessions; mutated by a session
// after a successful install/fetch/delete.
type DeviceRecord struct {
	DeviceName string `gorm:"column:device_name;primaryKey"`
	Operation  string `gorm:"column:operation"`
	AuthMode   string `gorm:"column:auth_mode"`
	Password   string `gorm:"column:password"`

	KeySize *int    `gorm:"column:key_size"`
	Curve   *string `gorm:"column:curve"`

	CertificatePEM *string    `gorm:"column:certificate_pem"`
	SerialHex      *string    `gorm:"column:serial_hex"`
	NotValidBefore *time.Time `gorm:"column:not_valid_before"`
	NotValidAfter  *time.Time `gorm:"column:not_valid_after"`
}

// TableName pins the gorm table name to "devices" regardless of
// gorm's pluralization rules, since this schema is owned by external
// admin tooling and must not drift with a gorm version change.
func (DeviceRecord) TableName() string {
	return "devices"
}
