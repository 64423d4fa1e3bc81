package tests

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkout/pkg/checkout/domain/model"
)

func TestParseOrderStatus(t *testing.T) {
	for _, expected := range []model.OrderStatus{model.Pending, model.Processing, model.Shipped, model.Delivered, model.Cancelled} {
		status, err := model.ParseOrderStatus(expected.String())
		require.NoError(t, err, expected.String())
		assert.Equal(t, expected, status)
	}

	for _, input := range []string{"Refunded", "processing", " Shipped", "DELIVERED", ""} {
		_, err := model.ParseOrderStatus(input)
		assert.ErrorIs(t, err, model.ErrInvalidOrderStatus, "%q", input)
	}
}

func TestOrderStatusTransitions(t *testing.T) {
	now := time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)

	t.Run("Happy path", func(t *testing.T) {
		order := &model.Order{Status: model.Pending}
		for _, next := range []model.OrderStatus{model.Processing, model.Shipped, model.Delivered} {
			require.NoError(t, order.TransitionTo(next, now))
		}
		assert.Equal(t, model.Delivered, order.Status)
		require.NotNil(t, order.CompletedAt)
		assert.Equal(t, now, *order.CompletedAt)
	})

	t.Run("Skipping a step is rejected", func(t *testing.T) {
		order := &model.Order{Status: model.Pending}
		assert.ErrorIs(t, order.TransitionTo(model.Shipped, now), model.ErrInvalidStateTransition)
		assert.Equal(t, model.Pending, order.Status)
	})

	t.Run("Cancel from any non-terminal status", func(t *testing.T) {
		for _, from := range []model.OrderStatus{model.Pending, model.Processing, model.Shipped} {
			order := &model.Order{Status: from}
			require.NoError(t, order.TransitionTo(model.Cancelled, now), from.String())
			assert.Nil(t, order.CompletedAt)
		}
	})

	t.Run("Terminal statuses reject everything", func(t *testing.T) {
		for _, from := range []model.OrderStatus{model.Delivered, model.Cancelled} {
			for _, next := range []model.OrderStatus{model.Pending, model.Processing, model.Shipped, model.Delivered, model.Cancelled} {
				assert.False(t, from.CanTransitionTo(next), "%s -> %s", from, next)
			}
		}
	})
}

func TestOfferScopeApplies(t *testing.T) {
	productID, categoryID := uuid.New(), uuid.New()

	assert.True(t, model.OfferScope{}.Applies(productID, categoryID), "empty scope is a wildcard")
	assert.True(t, model.OfferScope{IncludedCategories: model.NewIDSet(categoryID)}.Applies(productID, categoryID))
	assert.False(t, model.OfferScope{IncludedProducts: model.NewIDSet(uuid.New())}.Applies(productID, categoryID))
	assert.False(t, model.OfferScope{
		IncludedCategories: model.NewIDSet(categoryID),
		ExcludedProducts:   model.NewIDSet(productID),
	}.Applies(productID, categoryID), "exclusion wins over inclusion")
	assert.False(t, model.OfferScope{ExcludedCategories: model.NewIDSet(categoryID)}.Applies(productID, categoryID))
}

func TestParseOfferRuleType(t *testing.T) {
	ruleType, err := model.ParseOfferRuleType(" MIN_CART_TOTAL ")
	require.NoError(t, err)
	assert.Equal(t, model.MinCartTotal, ruleType)

	_, err = model.ParseOfferRuleType("weekday_only")
	assert.ErrorIs(t, err, model.ErrUnknownOfferRuleType)
}

func TestOfferActiveWindow(t *testing.T) {
	start := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(48 * time.Hour)
	offer := model.Offer{Status: model.OfferActive, StartDate: start, EndDate: end}

	assert.True(t, offer.ActiveAt(start))
	assert.False(t, offer.ActiveAt(start.Add(-time.Second)))
	assert.False(t, offer.ActiveAt(end), "end of window is exclusive")
	require.NoError(t, offer.ValidateWindow())

	offer.Status = model.OfferPaused
	assert.False(t, offer.ActiveAt(start))

	offer.EndDate = start
	assert.ErrorIs(t, offer.ValidateWindow(), model.ErrInvalidOfferWindow)
}
