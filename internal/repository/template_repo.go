package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/coursehub/notification-engine/internal/domain"
)

type TemplateRepository interface {
	Create(ctx context.Context, t *domain.NotificationTemplate) error
	GetActiveByName(ctx context.Context, name string) (*domain.NotificationTemplate, error)
	List(ctx context.Context) ([]domain.NotificationTemplate, error)
}

type GormTemplateRepo struct {
	db *gorm.DB
}

func NewGormTemplateRepo(db *gorm.DB) *GormTemplateRepo {
	return &GormTemplateRepo{db: db}
}

func (r *GormTemplateRepo) Create(ctx context.Context, t *domain.NotificationTemplate) error {
	model := templateModelFromDomain(t)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if t != nil {
		*t = *templateModelToDomain(model)
	}
	return nil
}

func (r *GormTemplateRepo) GetActiveByName(ctx context.Context, name string) (*domain.NotificationTemplate, error) {
	var model TemplateModel
	err := r.db.WithContext(ctx).
		Where("name = ? AND active = TRUE", name).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return templateModelToDomain(&model), nil
}

func (r *GormTemplateRepo) List(ctx context.Context) ([]domain.NotificationTemplate, error) {
	var models []TemplateModel
	err := r.db.WithContext(ctx).
		Order("name ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	templates := make([]domain.NotificationTemplate, 0, len(models))
	for i := range models {
		templates = append(templates, *templateModelToDomain(&models[i]))
	}

	return templates, nil
}
