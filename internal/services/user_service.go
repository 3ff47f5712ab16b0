package services

import (
	"context"
	"errors"

	"github.com/avolkov/macrocoach/internal/database"
	apperrors "github.com/avolkov/macrocoach/internal/errors"
	"gorm.io/gorm"
)

type UserService struct {
	db *gorm.DB
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db}
}

func (s *UserService) RegisterUser(ctx context.Context, email, name string, telegramID int64) (*database.User, error) {
	if email == "" {
		return nil, apperrors.NewValidationError("email is required")
	}

	user := &database.User{
		Email:      email,
		Name:       name,
		TelegramID: telegramID,
	}

	result := s.db.WithContext(ctx).FirstOrCreate(user, database.User{Email: email})
	if result.Error != nil {
		return nil, apperrors.NewDatabaseError(result.Error)
	}

	return user, nil
}

func (s *UserService) GetUser(ctx context.Context, userID uint) (*database.User, error) {
	var user database.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("user")
		}
		return nil, apperrors.NewDatabaseError(err)
	}
	return &user, nil
}
