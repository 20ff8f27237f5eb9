package tvs

// TrustRecord is the TVS store's certificate row (spec.md §3), keyed
// by certificate_hash (hex lowercase SHA-256 fingerprint of the
// DER-encoded certificate). Read-only from the session path.
type TrustRecord struct {
	CertificateHash string `gorm:"column:certificate_hash;primaryKey"`
	SerialNumber    string `gorm:"column:serial_number"`
	SubjectName     string `gorm:"column:subject_name"`
	IssuerName      string `gorm:"column:issuer_name"`
	PEM             string `gorm:"column:pem"`
	Roles           string `gorm:"column:roles"`
	TTL             int    `gorm:"column:ttl"`
}

// TableName pins the gorm table name to "trust_records", since this
// schema is owned by external admin tooling.
func (TrustRecord) TableName() string {
	return "trust_records"
}
