package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/armoryline/armoryline-backend/pkg/enums"
)

// Vendor is the selling party. CommissionRate is a decimal fraction in [0,1]
// stored as text to avoid float drift; LicenseExpiresAt feeds the
// vendor_license compliance kind.
type Vendor struct {
	ID               uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID           uuid.UUID          `gorm:"column:user_id;type:uuid;not null"`
	BusinessName     string             `gorm:"column:business_name;not null"`
	LicenseNumber    string             `gorm:"column:license_number;not null"`
	LicenseExpiresAt *time.Time         `gorm:"column:license_expires_at"`
	Status           enums.VendorStatus `gorm:"column:status;type:vendor_status;not null;default:'pending'"`
	CommissionRate   string             `gorm:"column:commission_rate;type:numeric(5,4);not null;default:'0'"`
	CreatedAt        time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
