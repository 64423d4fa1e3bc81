package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"checkout/pkg/checkout/domain/model"
)

var (
	ErrOfferTotalCapReached    = errors.New("offer total usage cap reached")
	ErrOfferCustomerCapReached = errors.New("offer per-customer usage cap reached")
	ErrOfferMinQuantity        = errors.New("line quantity below offer minimum")
	ErrOfferRuleNotSatisfied   = errors.New("offer rule not satisfied")
)

var hundred = decimal.NewFromInt(100)

// OffersFor returns the offers applicable to product at now, highest priority
// first. Equal priorities fall back to the earlier start date, then the id.
func OffersFor(offers []model.Offer, product *model.Product, now time.Time) []model.Offer {
	var result []model.Offer
	for _, offer := range offers {
		if !offer.ActiveAt(now) || !offer.Scope.Applies(product.ID, product.CategoryID) {
			continue
		}
		result = append(result, offer)
	}
	sort.SliceStable(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.StartDate.Equal(b.StartDate) {
			return a.StartDate.Before(b.StartDate)
		}
		return a.ID.String() < b.ID.String()
	})
	return result
}

type RuleContext struct {
	UnitPrice decimal.Decimal // current, possibly already discounted
	Quantity  int
	CartTotal decimal.Decimal // pre-discount cart total
}

func EvaluateRule(rule model.OfferRule, rc RuleContext) (bool, error) {
	subtotal := rc.UnitPrice.Mul(decimal.NewFromInt(int64(rc.Quantity)))
	switch rule.Type {
	case model.MinItemPrice:
		return rc.UnitPrice.GreaterThanOrEqual(rule.Value), nil
	case model.MaxItemPrice:
		return rc.UnitPrice.LessThanOrEqual(rule.Value), nil
	case model.MinItemSubtotal:
		return subtotal.GreaterThanOrEqual(rule.Value), nil
	case model.MaxItemSubtotal:
		return subtotal.LessThanOrEqual(rule.Value), nil
	case model.MinCartTotal:
		return rc.CartTotal.GreaterThanOrEqual(rule.Value), nil
	}
	return false, model.ErrUnknownOfferRuleType
}

// ComputeDiscount returns the unrounded per-unit discount capped at unitPrice.
// Rounding happens on line and order money amounts only. BuyXGetY and
// FreeShipping yield no discount here.
func ComputeDiscount(offer *model.Offer, unitPrice decimal.Decimal) decimal.Decimal {
	var discount decimal.Decimal
	switch offer.Type {
	case model.Percentage:
		discount = unitPrice.Mul(offer.DiscountPercentage).Div(hundred)
	case model.FixedAmount:
		discount = offer.DiscountAmount
	default:
		return decimal.Zero
	}
	if discount.GreaterThan(unitPrice) {
		return unitPrice
	}
	return discount
}

// UsageLookup reports how many times an offer has been used so far, both in
// total and by one customer, including grants made earlier in the same checkout.
type UsageLookup interface {
	TotalUses(ctx context.Context, offer *model.Offer) (int, error)
	CustomerUses(ctx context.Context, offer *model.Offer, userID uuid.UUID) (int, error)
}

type LineContext struct {
	UserID    uuid.UUID
	BasePrice decimal.Decimal
	Quantity  int
	CartTotal decimal.Decimal
}

type AppliedOffer struct {
	Offer       model.Offer
	PriceBefore decimal.Decimal
	Discount    decimal.Decimal // per unit
}

type SkippedOffer struct {
	OfferID uuid.UUID
	Reason  error
}

type OfferFold struct {
	FinalPrice decimal.Decimal
	Applied    []AppliedOffer
	Skipped    []SkippedOffer
}

// ApplyOffers folds candidates (already in priority order) over the line's
// base price. Each granted discount lowers the price seen by the next offer,
// so stacked percentages compound.
func ApplyOffers(ctx context.Context, candidates []model.Offer, line LineContext, usage UsageLookup) (OfferFold, error) {
	fold := OfferFold{FinalPrice: line.BasePrice}
	for i := range candidates {
		offer := &candidates[i]

		reason, err := rejectOffer(ctx, offer, fold.FinalPrice, line, usage)
		if err != nil {
			return OfferFold{}, err
		}
		if reason != nil {
			fold.Skipped = append(fold.Skipped, SkippedOffer{OfferID: offer.ID, Reason: reason})
			continue
		}

		discount := ComputeDiscount(offer, fold.FinalPrice)
		if !discount.IsPositive() {
			continue
		}
		fold.Applied = append(fold.Applied, AppliedOffer{Offer: *offer, PriceBefore: fold.FinalPrice, Discount: discount})
		fold.FinalPrice = fold.FinalPrice.Sub(discount)
	}
	return fold, nil
}

func rejectOffer(ctx context.Context, offer *model.Offer, unitPrice decimal.Decimal, line LineContext, usage UsageLookup) (reason error, err error) {
	if offer.TotalMaxUses != nil {
		total, err := usage.TotalUses(ctx, offer)
		if err != nil {
			return nil, err
		}
		if total >= *offer.TotalMaxUses {
			return ErrOfferTotalCapReached, nil
		}
	}
	if offer.MaxUsesPerCustomer != nil {
		used, err := usage.CustomerUses(ctx, offer, line.UserID)
		if err != nil {
			return nil, err
		}
		if used >= *offer.MaxUsesPerCustomer {
			return ErrOfferCustomerCapReached, nil
		}
	}
	if line.Quantity < offer.MinQuantity {
		return ErrOfferMinQuantity, nil
	}

	rc := RuleContext{UnitPrice: unitPrice, Quantity: line.Quantity, CartTotal: line.CartTotal}
	for _, rule := range offer.Rules {
		ok, err := EvaluateRule(rule, rc)
		if err != nil {
			return err, nil
		}
		if !ok {
			return ErrOfferRuleNotSatisfied, nil
		}
	}
	return nil, nil
}

// usageTracker counts stored usage once per offer and adds the grants of the
// checkout in progress on top.
type usageTracker struct {
	repo           model.OfferRepository
	customerCounts map[uuid.UUID]int
	pendingByOffer map[uuid.UUID]int
}

func newUsageTracker(repo model.OfferRepository) *usageTracker {
	return &usageTracker{
		repo:           repo,
		customerCounts: make(map[uuid.UUID]int),
		pendingByOffer: make(map[uuid.UUID]int),
	}
}

func (t *usageTracker) TotalUses(_ context.Context, offer *model.Offer) (int, error) {
	return offer.CurrentUses + t.pendingByOffer[offer.ID], nil
}

func (t *usageTracker) CustomerUses(ctx context.Context, offer *model.Offer, userID uuid.UUID) (int, error) {
	count, ok := t.customerCounts[offer.ID]
	if !ok {
		var err error
		count, err = t.repo.CountApplications(ctx, offer.ID, userID)
		if err != nil {
			return 0, err
		}
		t.customerCounts[offer.ID] = count
	}
	return count + t.pendingByOffer[offer.ID], nil
}

func (t *usageTracker) Record(offerID uuid.UUID) {
	t.pendingByOffer[offerID]++
}
