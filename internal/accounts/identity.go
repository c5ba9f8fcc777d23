package accounts

import (
	"strings"
	"time"
)

// SocialIdentity maps a social id, the identity a message is written
// under, to the account that owns it.
type SocialIdentity struct {
	SocialID string    `gorm:"column:social_id;primaryKey;size:255"`
	Account  string    `gorm:"column:account;size:255;not null"`
	Created  time.Time `gorm:"column:created;not null"`
}

func (SocialIdentity) TableName() string {
	return "social_identities"
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
