package model

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrOfferNotFound        = errors.New("offer not found")
	ErrUnknownOfferRuleType = errors.New("unknown offer rule type")
	ErrInvalidOfferWindow   = errors.New("offer start date must be before end date")
	// ErrOfferCapRace is returned when the total usage cap was consumed by a
	// concurrent checkout between the read and the increment.
	ErrOfferCapRace = errors.New("offer usage cap reached concurrently")
)

type OfferType int

const (
	Percentage OfferType = iota
	FixedAmount
	BuyXGetY
	FreeShipping
)

func (t OfferType) String() string {
	switch t {
	case Percentage:
		return "Percentage"
	case FixedAmount:
		return "FixedAmount"
	case BuyXGetY:
		return "BuyXGetY"
	case FreeShipping:
		return "FreeShipping"
	}
	return "Unknown"
}

type OfferStatus int

const (
	OfferDraft OfferStatus = iota
	OfferActive
	OfferPaused
	OfferExpired
	OfferCancelled
)

type OfferRuleType string

const (
	MinItemPrice    OfferRuleType = "min_item_price"
	MaxItemPrice    OfferRuleType = "max_item_price"
	MinItemSubtotal OfferRuleType = "min_item_subtotal"
	MaxItemSubtotal OfferRuleType = "max_item_subtotal"
	MinCartTotal    OfferRuleType = "min_cart_total"
)

// ParseOfferRuleType validates a rule type coming from an administrator.
// Rules already stored with an unknown type are kept as-is and make their
// offer fail closed at evaluation time.
func ParseOfferRuleType(s string) (OfferRuleType, error) {
	t := OfferRuleType(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case MinItemPrice, MaxItemPrice, MinItemSubtotal, MaxItemSubtotal, MinCartTotal:
		return t, nil
	}
	return "", ErrUnknownOfferRuleType
}

type OfferRule struct {
	ID      uuid.UUID
	OfferID uuid.UUID
	Type    OfferRuleType
	Value   decimal.Decimal
}

type IDSet map[uuid.UUID]struct{}

func NewIDSet(ids ...uuid.UUID) IDSet {
	set := make(IDSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func (s IDSet) Has(id uuid.UUID) bool {
	_, ok := s[id]
	return ok
}

// OfferScope holds the many-to-many scoping of an offer. Empty inclusion sets
// act as a wildcard; exclusions always win.
type OfferScope struct {
	IncludedProducts   IDSet
	IncludedCategories IDSet
	ExcludedProducts   IDSet
	ExcludedCategories IDSet
}

func (s OfferScope) Applies(productID, categoryID uuid.UUID) bool {
	if s.ExcludedProducts.Has(productID) || s.ExcludedCategories.Has(categoryID) {
		return false
	}
	if len(s.IncludedProducts) == 0 && len(s.IncludedCategories) == 0 {
		return true
	}
	return s.IncludedProducts.Has(productID) || s.IncludedCategories.Has(categoryID)
}

type Offer struct {
	ID                 uuid.UUID
	Name               string
	Type               OfferType
	Status             OfferStatus
	DiscountPercentage decimal.Decimal
	DiscountAmount     decimal.Decimal
	BuyQuantity        int
	GetQuantity        int
	MinQuantity        int
	StartDate          time.Time
	EndDate            time.Time
	MaxUsesPerCustomer *int // nil means unlimited
	TotalMaxUses       *int // nil means unlimited
	CurrentUses        int
	Priority           int // higher is evaluated first
	Scope              OfferScope
	Rules              []OfferRule
}

// ActiveAt reports whether the offer is Active and now falls in [StartDate, EndDate).
func (o *Offer) ActiveAt(now time.Time) bool {
	return o.Status == OfferActive && !now.Before(o.StartDate) && now.Before(o.EndDate)
}

func (o *Offer) ValidateWindow() error {
	if !o.StartDate.Before(o.EndDate) {
		return ErrInvalidOfferWindow
	}
	return nil
}

// OfferApplication is the audit record of a granted discount and the source
// of per-customer usage counts.
type OfferApplication struct {
	ID             uuid.UUID
	OfferID        uuid.UUID
	OrderID        uuid.UUID
	OrderItemID    uuid.UUID
	ProductID      uuid.UUID
	UserID         uuid.UUID
	DiscountAmount decimal.Decimal
	AppliedAt      time.Time
}

type OfferRepository interface {
	// ListActive returns offers with status Active whose window contains at,
	// with scopes and rules loaded.
	ListActive(ctx context.Context, at time.Time) ([]Offer, error)
	CountApplications(ctx context.Context, offerID, userID uuid.UUID) (int, error)
	// IncrementUses returns ErrOfferCapRace if TotalMaxUses was already reached.
	IncrementUses(ctx context.Context, offerID uuid.UUID) error
	StoreApplication(ctx context.Context, application *OfferApplication) error
}
