package organization

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	errs "github.com/frahmantamala/recurpay/internal"
	orgdm "github.com/frahmantamala/recurpay/internal/core/datamodel/organization"
)

var ErrNotFound = errors.New("organization not found")

type RepositoryAPI interface {
	Create(ctx context.Context, org *orgdm.Organization) error
	GetByID(ctx context.Context, id string) (*orgdm.Organization, error)
	GetByAPIKeyID(ctx context.Context, keyID string) (*orgdm.Organization, error)
	UpdateWebhook(ctx context.Context, id, url, secret string) error
}

type Service struct {
	repo   RepositoryAPI
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func (s *Service) Create(ctx context.Context, org *orgdm.Organization) error {
	if org.Name == "" || org.APIKeyID == "" || org.APIKeyHash == "" {
		return errs.NewValidationError("organization name and api credential are required", errs.ErrCodeValidationFailed)
	}
	if err := s.repo.Create(ctx, org); err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}
	return nil
}

func (s *Service) GetOrganization(ctx context.Context, id string) (*orgdm.Organization, error) {
	org, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, errs.ErrOrganizationNotFound
		}
		s.logger.Error("failed to load organization", "error", err, "organization_id", id)
		return nil, fmt.Errorf("failed to load organization: %w", err)
	}
	return org, nil
}

func (s *Service) GetByAPIKeyID(ctx context.Context, keyID string) (*orgdm.Organization, error) {
	org, err := s.repo.GetByAPIKeyID(ctx, keyID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, errs.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("failed to load organization by api key: %w", err)
	}
	return org, nil
}

func (s *Service) UpdateWebhook(ctx context.Context, id, url, secret string) error {
	if err := s.repo.UpdateWebhook(ctx, id, url, secret); err != nil {
		if errors.Is(err, ErrNotFound) {
			return errs.ErrOrganizationNotFound
		}
		return fmt.Errorf("failed to update webhook settings: %w", err)
	}
	return nil
}
