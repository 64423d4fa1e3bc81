package mysql

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"checkout/pkg/checkout/domain/model"
)

const (
	scopeProduct  = "product"
	scopeCategory = "category"
)

var (
	offerTypes = map[string]model.OfferType{
		"Percentage":   model.Percentage,
		"FixedAmount":  model.FixedAmount,
		"BuyXGetY":     model.BuyXGetY,
		"FreeShipping": model.FreeShipping,
	}
	offerStatuses = map[string]model.OfferStatus{
		"Draft":     model.OfferDraft,
		"Active":    model.OfferActive,
		"Paused":    model.OfferPaused,
		"Expired":   model.OfferExpired,
		"Cancelled": model.OfferCancelled,
	}
)

type offerRow struct {
	ID                 uuid.UUID       `db:"id"`
	Name               string          `db:"name"`
	Type               string          `db:"type"`
	Status             string          `db:"status"`
	DiscountPercentage decimal.Decimal `db:"discount_percentage"`
	DiscountAmount     decimal.Decimal `db:"discount_amount"`
	BuyQuantity        int             `db:"buy_quantity"`
	GetQuantity        int             `db:"get_quantity"`
	MinQuantity        int             `db:"min_quantity"`
	StartDate          time.Time       `db:"start_date"`
	EndDate            time.Time       `db:"end_date"`
	MaxUsesPerCustomer sql.NullInt64   `db:"max_uses_per_customer"`
	TotalMaxUses       sql.NullInt64   `db:"total_max_uses"`
	CurrentUses        int             `db:"current_uses"`
	Priority           int             `db:"priority"`
}

type offerScopeRow struct {
	OfferID    uuid.UUID `db:"offer_id"`
	TargetType string    `db:"target_type"`
	TargetID   uuid.UUID `db:"target_id"`
	Excluded   bool      `db:"excluded"`
}

type offerRuleRow struct {
	ID       uuid.UUID       `db:"id"`
	OfferID  uuid.UUID       `db:"offer_id"`
	RuleType string          `db:"rule_type"`
	Value    decimal.Decimal `db:"value"`
}

type offerRepository struct {
	db sqlx.ExtContext
}

func (r *offerRepository) ListActive(ctx context.Context, at time.Time) ([]model.Offer, error) {
	var rows []offerRow
	err := sqlx.SelectContext(ctx, r.db, &rows, `
		SELECT id, name, type, status, discount_percentage, discount_amount, buy_quantity, get_quantity,
		       min_quantity, start_date, end_date, max_uses_per_customer, total_max_uses, current_uses, priority
		FROM offers
		WHERE status = 'Active' AND start_date <= ? AND end_date > ?
		ORDER BY priority DESC`, at, at)
	if err != nil {
		return nil, errors.Wrap(err, "list active offers")
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, 0, len(rows))
	offers := make([]model.Offer, 0, len(rows))
	index := make(map[uuid.UUID]int, len(rows))
	for _, row := range rows {
		offer, err := row.toModel()
		if err != nil {
			return nil, err
		}
		index[row.ID] = len(offers)
		ids = append(ids, row.ID)
		offers = append(offers, offer)
	}

	if err := r.loadScopes(ctx, ids, offers, index); err != nil {
		return nil, err
	}
	if err := r.loadRules(ctx, ids, offers, index); err != nil {
		return nil, err
	}
	return offers, nil
}

func (r *offerRepository) loadScopes(ctx context.Context, ids []uuid.UUID, offers []model.Offer, index map[uuid.UUID]int) error {
	query, args, err := sqlx.In(`SELECT offer_id, target_type, target_id, excluded FROM offer_scopes WHERE offer_id IN (?)`, ids)
	if err != nil {
		return errors.Wrap(err, "build offer scope query")
	}
	var rows []offerScopeRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, r.db.Rebind(query), args...); err != nil {
		return errors.Wrap(err, "load offer scopes")
	}

	for _, row := range rows {
		scope := &offers[index[row.OfferID]].Scope
		var set model.IDSet
		switch {
		case row.TargetType == scopeProduct && !row.Excluded:
			set = scope.IncludedProducts
		case row.TargetType == scopeCategory && !row.Excluded:
			set = scope.IncludedCategories
		case row.TargetType == scopeProduct:
			set = scope.ExcludedProducts
		case row.TargetType == scopeCategory:
			set = scope.ExcludedCategories
		default:
			return errors.Errorf("offer %s has unknown scope target %q", row.OfferID, row.TargetType)
		}
		set[row.TargetID] = struct{}{}
	}
	return nil
}

func (r *offerRepository) loadRules(ctx context.Context, ids []uuid.UUID, offers []model.Offer, index map[uuid.UUID]int) error {
	query, args, err := sqlx.In(`SELECT id, offer_id, rule_type, value FROM offer_rules WHERE offer_id IN (?)`, ids)
	if err != nil {
		return errors.Wrap(err, "build offer rule query")
	}
	var rows []offerRuleRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, r.db.Rebind(query), args...); err != nil {
		return errors.Wrap(err, "load offer rules")
	}

	for _, row := range rows {
		offer := &offers[index[row.OfferID]]
		// Unknown rule types are kept so the rule engine rejects the offer.
		offer.Rules = append(offer.Rules, model.OfferRule{
			ID:      row.ID,
			OfferID: row.OfferID,
			Type:    model.OfferRuleType(row.RuleType),
			Value:   row.Value,
		})
	}
	return nil
}

func (r *offerRepository) CountApplications(ctx context.Context, offerID, userID uuid.UUID) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, r.db, &count,
		`SELECT COUNT(*) FROM offer_applications WHERE offer_id = ? AND user_id = ?`, offerID, userID)
	if err != nil {
		return 0, errors.Wrap(err, "count offer applications")
	}
	return count, nil
}

func (r *offerRepository) IncrementUses(ctx context.Context, offerID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE offers SET current_uses = current_uses + 1
		WHERE id = ? AND (total_max_uses IS NULL OR current_uses < total_max_uses)`, offerID)
	if err != nil {
		return errors.Wrap(err, "increment offer uses")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "increment offer uses")
	}
	if n == 0 {
		return model.ErrOfferCapRace
	}
	return nil
}

func (r *offerRepository) StoreApplication(ctx context.Context, application *model.OfferApplication) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO offer_applications (id, offer_id, order_id, order_item_id, product_id, user_id, discount_amount, applied_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		application.ID, application.OfferID, application.OrderID, application.OrderItemID,
		application.ProductID, application.UserID, application.DiscountAmount, application.AppliedAt)
	return errors.Wrap(err, "store offer application")
}

func (row offerRow) toModel() (model.Offer, error) {
	offerType, ok := offerTypes[row.Type]
	if !ok {
		return model.Offer{}, errors.Errorf("offer %s has unknown type %q", row.ID, row.Type)
	}
	status, ok := offerStatuses[row.Status]
	if !ok {
		return model.Offer{}, errors.Errorf("offer %s has unknown status %q", row.ID, row.Status)
	}
	return model.Offer{
		ID:                 row.ID,
		Name:               row.Name,
		Type:               offerType,
		Status:             status,
		DiscountPercentage: row.DiscountPercentage,
		DiscountAmount:     row.DiscountAmount,
		BuyQuantity:        row.BuyQuantity,
		GetQuantity:        row.GetQuantity,
		MinQuantity:        row.MinQuantity,
		StartDate:          row.StartDate,
		EndDate:            row.EndDate,
		MaxUsesPerCustomer: nullableInt(row.MaxUsesPerCustomer),
		TotalMaxUses:       nullableInt(row.TotalMaxUses),
		CurrentUses:        row.CurrentUses,
		Priority:           row.Priority,
		Scope: model.OfferScope{
			IncludedProducts:   model.NewIDSet(),
			IncludedCategories: model.NewIDSet(),
			ExcludedProducts:   model.NewIDSet(),
			ExcludedCategories: model.NewIDSet(),
		},
	}, nil
}

func nullableInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
