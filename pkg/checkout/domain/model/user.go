package model

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrPriceLevelNotFound = errors.New("price level not found")
)

type User struct {
	ID           uuid.UUID
	Email        string
	FirstName    string
	LastName     string
	PriceLevelID *uuid.UUID
}

type UserRepository interface {
	Find(ctx context.Context, id uuid.UUID) (*User, error)
	FindPriceLevel(ctx context.Context, id uuid.UUID) (*PriceLevel, error)
}
