package postgres

import (
	"context"
	"errors"
	"time"

	orgdm "github.com/frahmantamala/recurpay/internal/core/datamodel/organization"
	"github.com/frahmantamala/recurpay/internal/organization"
	"gorm.io/gorm"
)

type OrganizationRepository struct {
	db *gorm.DB
}

func NewOrganizationRepository(db *gorm.DB) organization.RepositoryAPI {
	return &OrganizationRepository{db: db}
}

func (r *OrganizationRepository) Create(ctx context.Context, org *orgdm.Organization) error {
	return r.db.WithContext(ctx).Create(org).Error
}

func (r *OrganizationRepository) GetByID(ctx context.Context, id string) (*orgdm.Organization, error) {
	var org orgdm.Organization
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&org).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, organization.ErrNotFound
		}
		return nil, err
	}
	return &org, nil
}

func (r *OrganizationRepository) GetByAPIKeyID(ctx context.Context, keyID string) (*orgdm.Organization, error) {
	var org orgdm.Organization
	if err := r.db.WithContext(ctx).Where("api_key_id = ?", keyID).First(&org).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, organization.ErrNotFound
		}
		return nil, err
	}
	return &org, nil
}

func (r *OrganizationRepository) UpdateWebhook(ctx context.Context, id, url, secret string) error {
	res := r.db.WithContext(ctx).Model(&orgdm.Organization{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"webhook_url":    url,
			"webhook_secret": secret,
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return organization.ErrNotFound
	}
	return nil
}
