package services

import (
	"errors"

	"github.com/google/uuid"
	"github.com/schedulo/verify/internal/models"
	"gorm.io/gorm"
)

var (
	ErrUnknownSubject = errors.New("subject account not found")
	ErrNoDestination  = errors.New("subject has no destination for channel")
)

// AccountDirectory resolves a challenge subject to its raw contact
// destination. The subject type is a typed enum selecting the staff or
// customer table; the raw destination never leaves the issuance path.
type AccountDirectory struct {
	DB *gorm.DB
}

func NewAccountDirectory(db *gorm.DB) *AccountDirectory {
	return &AccountDirectory{DB: db}
}

func (d *AccountDirectory) Destination(tenantID, subjectID uuid.UUID, subjectType models.SubjectType, channel models.Channel) (string, error) {
	var email, phone string

	switch subjectType {
	case models.SubjectStaff:
		var acct models.StaffAccount
		if err := d.DB.First(&acct, "id = ? AND tenant_id = ?", subjectID, tenantID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return "", ErrUnknownSubject
			}
			return "", err
		}
		email, phone = acct.Email, acct.Phone
	case models.SubjectCustomer:
		var acct models.CustomerAccount
		if err := d.DB.First(&acct, "id = ? AND tenant_id = ?", subjectID, tenantID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return "", ErrUnknownSubject
			}
			return "", err
		}
		email, phone = acct.Email, acct.Phone
	default:
		return "", ErrUnknownSubject
	}

	var destination string
	switch channel {
	case models.ChannelEmail:
		destination = email
	case models.ChannelSMS, models.ChannelWhatsApp:
		destination = phone
	}

	if destination == "" {
		return "", ErrNoDestination
	}
	return destination, nil
}
