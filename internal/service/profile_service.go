package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/digkill/LetterDesk/internal/models"
	"github.com/digkill/LetterDesk/internal/repository"
)

// ProfileService backs the admin credit and plan operations.
type ProfileService struct {
	profiles ProfileStore
	plans    PlanStore
}

func NewProfileService(profiles ProfileStore, plans PlanStore) *ProfileService {
	return &ProfileService{profiles: profiles, plans: plans}
}

func (s *ProfileService) Get(ctx context.Context, id string) (*models.Profile, error) {
	profile, err := s.profiles.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find profile: %w", err)
	}
	if profile == nil {
		return nil, fmt.Errorf("profile %s: %w", id, ErrNotFound)
	}
	return profile, nil
}

// AdjustCredits tops up (or takes away) credits and returns the new balance.
func (s *ProfileService) AdjustCredits(ctx context.Context, id string, delta int) (int, error) {
	balance, err := s.profiles.AdjustCredits(ctx, id, delta)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, fmt.Errorf("profile %s: %w", id, ErrNotFound)
		}
		return 0, fmt.Errorf("adjust credits: %w", err)
	}
	return balance, nil
}

// AssignPlan moves the profile to the plan and grants the plan's credits.
func (s *ProfileService) AssignPlan(ctx context.Context, id string, planID int64) (*models.Profile, error) {
	plan, err := s.plans.GetByID(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan == nil || !plan.IsActive {
		return nil, fmt.Errorf("plan %d: %w", planID, ErrNotFound)
	}
	if err := s.profiles.SetPlan(ctx, id, plan.Code, plan.Credits); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("profile %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return s.Get(ctx, id)
}
