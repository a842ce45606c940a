package models

import "github.com/google/uuid"

// SubjectType selects which account table a challenge subject lives in.
type SubjectType string

const (
	SubjectStaff    SubjectType = "staff"
	SubjectCustomer SubjectType = "customer"
)

func (s SubjectType) Valid() bool {
	return s == SubjectStaff || s == SubjectCustomer
}

// StaffAccount and CustomerAccount are maintained by the surrounding
// platform; this service only reads the contact destinations from them.
type StaffAccount struct {
	BaseModel
	TenantID    uuid.UUID `json:"tenantID" gorm:"type:uuid;not null;index"`
	Email       string    `json:"email" gorm:"type:varchar(255);not null"`
	Phone       string    `json:"phone" gorm:"type:varchar(32)"`
	DisplayName string    `json:"displayName" gorm:"type:varchar(200)"`
}

type CustomerAccount struct {
	BaseModel
	TenantID    uuid.UUID `json:"tenantID" gorm:"type:uuid;not null;index"`
	Email       string    `json:"email" gorm:"type:varchar(255)"`
	Phone       string    `json:"phone" gorm:"type:varchar(32)"`
	DisplayName string    `json:"displayName" gorm:"type:varchar(200)"`
}
