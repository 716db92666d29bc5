package service

import (
	"context"
	"fmt"

	"github.com/okulsoft/absence-dispatch/internal/domain"
	"github.com/okulsoft/absence-dispatch/pkg/logger"
)

type classStore interface {
	ListClasses(ctx context.Context) ([]domain.ClassDispatchConfig, error)
	GetClass(ctx context.Context, classID int64) (*domain.ClassDispatchConfig, error)
	UpdateDispatchConfig(ctx context.Context, classID int64, sendAfter string, notifyEnabled bool) error
}

// ClassService manages per-class dispatch settings: the send-after cutoff and
// the notification switch.
type ClassService struct {
	store classStore
}

func NewClassService(store classStore) *ClassService {
	return &ClassService{store: store}
}

func (s *ClassService) ListClasses(ctx context.Context) ([]domain.ClassDispatchConfig, error) {
	return s.store.ListClasses(ctx)
}

// UpdateDispatchConfig changes a class's cutoff and switch and returns the
// stored configuration. Changes apply from the next dispatch cycle onward.
func (s *ClassService) UpdateDispatchConfig(ctx context.Context, classID int64, sendAfter string, notifyEnabled bool) (*domain.ClassDispatchConfig, error) {
	if err := s.store.UpdateDispatchConfig(ctx, classID, sendAfter, notifyEnabled); err != nil {
		return nil, err
	}

	config, err := s.store.GetClass(ctx, classID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload class %d after update: %w", classID, err)
	}

	logger.Infof("Class %d (%s) dispatch config updated: send_after=%s notify_enabled=%v",
		config.ClassID, config.ClassName, config.SendAfter, config.Enabled)

	return config, nil
}
