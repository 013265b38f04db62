package postgres

import (
	"context"
	"errors"

	"github.com/frahmantamala/recurpay/internal/catalog"
	catalogdm "github.com/frahmantamala/recurpay/internal/core/datamodel/catalog"
	"gorm.io/gorm"
)

type CatalogRepository struct {
	db *gorm.DB
}

func NewCatalogRepository(db *gorm.DB) catalog.RepositoryAPI {
	return &CatalogRepository{db: db}
}

func (r *CatalogRepository) CreateProduct(ctx context.Context, p *catalogdm.Product) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *CatalogRepository) CreatePlan(ctx context.Context, p *catalogdm.SubscriptionPlan) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *CatalogRepository) GetProduct(ctx context.Context, id string) (*catalogdm.Product, error) {
	var p catalogdm.Product
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, catalog.ErrProductNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *CatalogRepository) GetPlan(ctx context.Context, id string) (*catalogdm.SubscriptionPlan, error) {
	var p catalogdm.SubscriptionPlan
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, catalog.ErrPlanNotFound
		}
		return nil, err
	}
	return &p, nil
}
