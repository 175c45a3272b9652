package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/digkill/LetterDesk/internal/config"
	"github.com/digkill/LetterDesk/internal/models"
)

type PlanService struct {
	cfg  config.Config
	repo PlanStore
}

type CreatePlanInput struct {
	Code        string
	Title       string
	Description string
	Credits     int
	IsActive    *bool
}

type UpdatePlanInput struct {
	Code        *string
	Title       *string
	Description *string
	Credits     *int
	IsActive    *bool
}

func NewPlanService(cfg config.Config, repo PlanStore) *PlanService {
	return &PlanService{cfg: cfg, repo: repo}
}

// EnsureDefaultPlan returns the plan new accounts start on, creating it with
// the configured free credits when it does not exist yet.
func (s *PlanService) EnsureDefaultPlan(ctx context.Context) (*models.Plan, error) {
	plan, err := s.repo.GetByCode(ctx, s.cfg.DefaultPlan)
	if err != nil {
		return nil, err
	}
	if plan != nil {
		return plan, nil
	}
	defaultPlan := &models.Plan{
		Code:        s.cfg.DefaultPlan,
		Title:       "Free",
		Description: "Free drafts for new accounts",
		Credits:     s.cfg.FreeCredits,
		IsActive:    true,
	}
	created, err := s.repo.Create(ctx, defaultPlan)
	if err != nil {
		return nil, fmt.Errorf("create default plan: %w", err)
	}
	return created, nil
}

func (s *PlanService) List(ctx context.Context) ([]models.Plan, error) {
	return s.repo.List(ctx)
}

func (s *PlanService) Create(ctx context.Context, input CreatePlanInput) (*models.Plan, error) {
	input.Code = strings.TrimSpace(input.Code)
	if input.Code == "" {
		return nil, fmt.Errorf("code is required")
	}
	if input.Title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if input.Credits < 0 {
		return nil, fmt.Errorf("credits must not be negative")
	}
	isActive := true
	if input.IsActive != nil {
		isActive = *input.IsActive
	}
	plan := models.Plan{
		Code:        input.Code,
		Title:       input.Title,
		Description: input.Description,
		Credits:     input.Credits,
		IsActive:    isActive,
	}
	return s.repo.Create(ctx, &plan)
}

func (s *PlanService) Update(ctx context.Context, id int64, input UpdatePlanInput) (*models.Plan, error) {
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("plan %d: %w", id, ErrNotFound)
	}
	if input.Code != nil && strings.TrimSpace(*input.Code) != "" {
		existing.Code = strings.TrimSpace(*input.Code)
	}
	if input.Title != nil {
		existing.Title = *input.Title
	}
	if input.Description != nil {
		existing.Description = *input.Description
	}
	if input.Credits != nil && *input.Credits >= 0 {
		existing.Credits = *input.Credits
	}
	if input.IsActive != nil {
		existing.IsActive = *input.IsActive
	}
	return s.repo.Update(ctx, existing)
}

func (s *PlanService) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

func (s *PlanService) GetByID(ctx context.Context, id int64) (*models.Plan, error) {
	return s.repo.GetByID(ctx, id)
}
