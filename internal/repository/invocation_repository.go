package repository

import (
	"ai-chat-gateway/backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type InvocationRepository interface {
	Create(invocation *models.ModelInvocation) error
}

type GormInvocationRepository struct {
	db *gorm.DB
}

func NewGormInvocationRepository(db *gorm.DB) *GormInvocationRepository {
	return &GormInvocationRepository{db: db}
}

func (r *GormInvocationRepository) Create(invocation *models.ModelInvocation) error {
	if invocation.ID == uuid.Nil {
		invocation.ID = uuid.New()
	}
	return r.db.Create(invocation).Error
}
