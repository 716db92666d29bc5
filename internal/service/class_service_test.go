package service

import (
	"context"
	"errors"
	"testing"

	"github.com/okulsoft/absence-dispatch/internal/domain"
	"github.com/okulsoft/absence-dispatch/internal/repository"
)

type fakeClassStore struct {
	classes map[int64]*domain.ClassDispatchConfig
}

func (f *fakeClassStore) ListClasses(ctx context.Context) ([]domain.ClassDispatchConfig, error) {
	var out []domain.ClassDispatchConfig
	for _, c := range f.classes {
		out = append(out, *c)
	}
	return out, nil
}

func (f *fakeClassStore) GetClass(ctx context.Context, classID int64) (*domain.ClassDispatchConfig, error) {
	c, ok := f.classes[classID]
	if !ok {
		return nil, repository.ErrClassNotFound
	}
	copied := *c
	return &copied, nil
}

func (f *fakeClassStore) UpdateDispatchConfig(ctx context.Context, classID int64, sendAfter string, notifyEnabled bool) error {
	c, ok := f.classes[classID]
	if !ok {
		return repository.ErrClassNotFound
	}
	c.SendAfter = sendAfter
	c.Enabled = notifyEnabled
	return nil
}

func TestUpdateDispatchConfig_ReturnsStoredConfig(t *testing.T) {
	store := &fakeClassStore{classes: map[int64]*domain.ClassDispatchConfig{
		3: {ClassID: 3, ClassName: "5-A", SendAfter: "09:15", Enabled: true},
	}}
	svc := NewClassService(store)

	config, err := svc.UpdateDispatchConfig(context.Background(), 3, "10:30", false)
	if err != nil {
		t.Fatalf("UpdateDispatchConfig returned error: %v", err)
	}

	if config.SendAfter != "10:30" {
		t.Errorf("expected send after 10:30, got %q", config.SendAfter)
	}
	if config.Enabled {
		t.Errorf("expected notifications disabled")
	}
	if config.ClassName != "5-A" {
		t.Errorf("expected class name to be preserved, got %q", config.ClassName)
	}
}

func TestUpdateDispatchConfig_UnknownClass(t *testing.T) {
	svc := NewClassService(&fakeClassStore{classes: map[int64]*domain.ClassDispatchConfig{}})

	_, err := svc.UpdateDispatchConfig(context.Background(), 99, "10:30", true)
	if !errors.Is(err, repository.ErrClassNotFound) {
		t.Fatalf("expected ErrClassNotFound, got %v", err)
	}
}
