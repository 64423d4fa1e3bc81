package mysql

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"checkout/pkg/checkout/domain/model"
)

type userRow struct {
	ID           uuid.UUID     `db:"id"`
	Email        string        `db:"email"`
	FirstName    string        `db:"first_name"`
	LastName     string        `db:"last_name"`
	PriceLevelID uuid.NullUUID `db:"price_level_id"`
}

type priceLevelRow struct {
	ID               uuid.UUID       `db:"id"`
	Name             string          `db:"name"`
	Priority         int             `db:"priority"`
	MarkupPercentage decimal.Decimal `db:"markup_percentage"`
}

type userRepository struct {
	db sqlx.ExtContext
}

func (r *userRepository) Find(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var row userRow
	err := sqlx.GetContext(ctx, r.db, &row,
		`SELECT id, email, first_name, last_name, price_level_id FROM users WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrUserNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "find user")
	}

	user := &model.User{
		ID:        row.ID,
		Email:     row.Email,
		FirstName: row.FirstName,
		LastName:  row.LastName,
	}
	if row.PriceLevelID.Valid {
		levelID := row.PriceLevelID.UUID
		user.PriceLevelID = &levelID
	}
	return user, nil
}

func (r *userRepository) FindPriceLevel(ctx context.Context, id uuid.UUID) (*model.PriceLevel, error) {
	var row priceLevelRow
	err := sqlx.GetContext(ctx, r.db, &row,
		`SELECT id, name, priority, markup_percentage FROM price_levels WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrPriceLevelNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "find price level")
	}
	return &model.PriceLevel{
		ID:               row.ID,
		Name:             row.Name,
		Priority:         row.Priority,
		MarkupPercentage: row.MarkupPercentage,
	}, nil
}
