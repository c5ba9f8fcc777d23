// Package accounts resolves social identities to accounts.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/courier/internal/communication"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrInvalidIdentity indicates a blank social id or account.
var ErrInvalidIdentity = errors.New("accounts: invalid identity")

type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service is safe for concurrent use. Resolved identities are cached for
// the life of the process and refreshed by Link.
type Service struct {
	db    *gorm.DB
	now   func() time.Time
	cache sync.Map
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("accounts: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{db: cfg.Database, now: clock}, nil
}

// Link assigns the social id to account, moving it if another account held it.
func (s *Service) Link(ctx context.Context, social communication.SocialID, account communication.AccountID) error {
	socialID := normalize(string(social))
	owner := normalize(string(account))
	if socialID == "" || owner == "" {
		return ErrInvalidIdentity
	}
	identity := SocialIdentity{SocialID: socialID, Account: owner, Created: communication.Normalize(s.now())}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "social_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"account"}),
		}).
		Create(&identity).
		Error
	if err != nil {
		return fmt.Errorf("accounts: link %s: %w", socialID, err)
	}
	s.cache.Store(socialID, communication.AccountID(owner))
	return nil
}

// ResolveAccount returns the account owning social. The boolean is false
// when the social id is unknown.
func (s *Service) ResolveAccount(ctx context.Context, social communication.SocialID) (communication.AccountID, bool, error) {
	socialID := normalize(string(social))
	if socialID == "" {
		return "", false, ErrInvalidIdentity
	}
	if cached, ok := s.cache.Load(socialID); ok {
		if account, ok := cached.(communication.AccountID); ok {
			return account, true, nil
		}
	}

	var identity SocialIdentity
	err := s.db.WithContext(ctx).
		Where("social_id = ?", socialID).
		First(&identity).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("accounts: resolve %s: %w", socialID, err)
	}
	account := communication.AccountID(identity.Account)
	s.cache.Store(socialID, account)
	return account, true, nil
}

// SocialIDs lists the identities linked to account, oldest first.
func (s *Service) SocialIDs(ctx context.Context, account communication.AccountID) ([]communication.SocialID, error) {
	var values []string
	err := s.db.WithContext(ctx).
		Model(&SocialIdentity{}).
		Where("account = ?", normalize(string(account))).
		Order("created ASC, social_id ASC").
		Pluck("social_id", &values).
		Error
	if err != nil {
		return nil, fmt.Errorf("accounts: social ids of %s: %w", account, err)
	}
	socialIDs := make([]communication.SocialID, len(values))
	for index, value := range values {
		socialIDs[index] = communication.SocialID(value)
	}
	return socialIDs, nil
}
