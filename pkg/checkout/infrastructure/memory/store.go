package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"checkout/pkg/checkout/domain/model"
	"checkout/pkg/checkout/domain/service"
)

type priceKey struct {
	productID    uuid.UUID
	priceLevelID uuid.UUID
}

type state struct {
	users        map[uuid.UUID]model.User
	priceLevels  map[uuid.UUID]model.PriceLevel
	products     map[uuid.UUID]model.Product
	prices       map[priceKey]model.ProductPrice
	offers       map[uuid.UUID]model.Offer
	applications []model.OfferApplication
	suppliers    []model.ProductSupplier
	balances     map[uuid.UUID]model.InventoryBalance
	movements    []model.InventoryMovement
	orders       map[uuid.UUID]model.Order
}

func newState() *state {
	return &state{
		users:       make(map[uuid.UUID]model.User),
		priceLevels: make(map[uuid.UUID]model.PriceLevel),
		products:    make(map[uuid.UUID]model.Product),
		prices:      make(map[priceKey]model.ProductPrice),
		offers:      make(map[uuid.UUID]model.Offer),
		balances:    make(map[uuid.UUID]model.InventoryBalance),
		orders:      make(map[uuid.UUID]model.Order),
	}
}

// clone copies every table. Row values are replaced, never mutated in place,
// so nested slices and sets can be shared.
func (s *state) clone() *state {
	c := newState()
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.priceLevels {
		c.priceLevels[k] = v
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.prices {
		c.prices[k] = v
	}
	for k, v := range s.offers {
		c.offers[k] = v
	}
	for k, v := range s.balances {
		c.balances[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	c.applications = append(c.applications, s.applications...)
	c.suppliers = append(c.suppliers, s.suppliers...)
	c.movements = append(c.movements, s.movements...)
	return c
}

// Store keeps every table in memory. Transactions are serialized and an
// aborted one restores the snapshot taken when it started.
type Store struct {
	mu    sync.Mutex
	state *state
}

func NewStore() *Store {
	return &Store{state: newState()}
}

func (s *Store) Execute(ctx context.Context, fn func(repos service.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	snapshot := s.state.clone()
	defer func() {
		if p := recover(); p != nil {
			s.state = snapshot
			panic(p)
		}
	}()

	if err := fn(s.repositories()); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

func (s *Store) repositories() service.Repositories {
	return service.Repositories{
		Users:     &userRepository{store: s},
		Products:  &productRepository{store: s},
		Prices:    &priceRepository{store: s},
		Offers:    &offerRepository{store: s},
		Suppliers: &supplierRepository{store: s},
		Inventory: &inventoryRepository{store: s},
		Orders:    &orderRepository{store: s},
	}
}

func (s *Store) AddUser(user model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.users[user.ID] = user
}

func (s *Store) AddPriceLevel(level model.PriceLevel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.priceLevels[level.ID] = level
}

func (s *Store) AddProduct(product model.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.products[product.ID] = product
}

func (s *Store) AddPrice(price model.ProductPrice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.prices[priceKey{productID: price.ProductID, priceLevelID: price.PriceLevelID}] = price
}

func (s *Store) AddOffer(offer model.Offer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.offers[offer.ID] = offer
}

func (s *Store) AddSupplier(supplier model.ProductSupplier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.suppliers = append(s.state.suppliers, supplier)
}

func (s *Store) AddMovement(movement model.InventoryMovement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.movements = append(s.state.movements, movement)
}

func (s *Store) SetBalance(productID uuid.UUID, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.balances[productID] = model.InventoryBalance{
		ProductID:         productID,
		AvailableQuantity: quantity,
		UpdatedAt:         time.Now().UTC(),
	}
}

func (s *Store) Product(id uuid.UUID) (model.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.state.products[id]
	return p, ok
}

func (s *Store) Offer(id uuid.UUID) (model.Offer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.state.offers[id]
	return o, ok
}

func (s *Store) Balance(productID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.balances[productID].AvailableQuantity
}

func (s *Store) Orders() []model.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	orders := make([]model.Order, 0, len(s.state.orders))
	for _, o := range s.state.orders {
		orders = append(orders, o)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.Before(orders[j].CreatedAt) })
	return orders
}

func (s *Store) Applications() []model.OfferApplication {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.OfferApplication(nil), s.state.applications...)
}

func (s *Store) Movements() []model.InventoryMovement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.InventoryMovement(nil), s.state.movements...)
}

type userRepository struct{ store *Store }

func (r *userRepository) Find(_ context.Context, id uuid.UUID) (*model.User, error) {
	user, ok := r.store.state.users[id]
	if !ok {
		return nil, model.ErrUserNotFound
	}
	return &user, nil
}

func (r *userRepository) FindPriceLevel(_ context.Context, id uuid.UUID) (*model.PriceLevel, error) {
	level, ok := r.store.state.priceLevels[id]
	if !ok {
		return nil, model.ErrPriceLevelNotFound
	}
	return &level, nil
}

type productRepository struct{ store *Store }

func (r *productRepository) Find(_ context.Context, id uuid.UUID) (*model.Product, error) {
	product, ok := r.store.state.products[id]
	if !ok {
		return nil, model.ErrProductNotFound
	}
	return &product, nil
}

func (r *productRepository) UpdateCost(_ context.Context, id uuid.UUID, cost decimal.Decimal, updatedAt time.Time) error {
	product, ok := r.store.state.products[id]
	if !ok {
		return model.ErrProductNotFound
	}
	product.Cost = cost
	product.UpdatedAt = updatedAt
	r.store.state.products[id] = product
	return nil
}

type priceRepository struct{ store *Store }

func (r *priceRepository) FindActive(_ context.Context, productID, priceLevelID uuid.UUID) (*model.ProductPrice, error) {
	price, ok := r.store.state.prices[priceKey{productID: productID, priceLevelID: priceLevelID}]
	if !ok || !price.IsActive {
		return nil, model.ErrPriceNotFound
	}
	return &price, nil
}

type offerRepository struct{ store *Store }

func (r *offerRepository) ListActive(_ context.Context, at time.Time) ([]model.Offer, error) {
	var offers []model.Offer
	for _, offer := range r.store.state.offers {
		if offer.ActiveAt(at) {
			offers = append(offers, offer)
		}
	}
	return offers, nil
}

func (r *offerRepository) CountApplications(_ context.Context, offerID, userID uuid.UUID) (int, error) {
	count := 0
	for _, application := range r.store.state.applications {
		if application.OfferID == offerID && application.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (r *offerRepository) IncrementUses(_ context.Context, offerID uuid.UUID) error {
	offer, ok := r.store.state.offers[offerID]
	if !ok {
		return model.ErrOfferNotFound
	}
	if offer.TotalMaxUses != nil && offer.CurrentUses >= *offer.TotalMaxUses {
		return model.ErrOfferCapRace
	}
	offer.CurrentUses++
	r.store.state.offers[offerID] = offer
	return nil
}

func (r *offerRepository) StoreApplication(_ context.Context, application *model.OfferApplication) error {
	r.store.state.applications = append(r.store.state.applications, *application)
	return nil
}

type supplierRepository struct{ store *Store }

func (r *supplierRepository) ListActiveByProduct(_ context.Context, productID uuid.UUID) ([]model.ProductSupplier, error) {
	var suppliers []model.ProductSupplier
	for _, supplier := range r.store.state.suppliers {
		if supplier.ProductID == productID && supplier.IsActive {
			suppliers = append(suppliers, supplier)
		}
	}
	sort.SliceStable(suppliers, func(i, j int) bool { return suppliers[i].Priority < suppliers[j].Priority })
	return suppliers, nil
}

type inventoryRepository struct{ store *Store }

func (r *inventoryRepository) FindBalance(_ context.Context, productID uuid.UUID) (*model.InventoryBalance, error) {
	balance, ok := r.store.state.balances[productID]
	if !ok {
		balance = model.InventoryBalance{ProductID: productID}
	}
	return &balance, nil
}

func (r *inventoryRepository) StoreBalance(_ context.Context, balance *model.InventoryBalance) error {
	r.store.state.balances[balance.ProductID] = *balance
	return nil
}

func (r *inventoryRepository) AppendMovement(_ context.Context, movement *model.InventoryMovement) error {
	r.store.state.movements = append(r.store.state.movements, *movement)
	return nil
}

func (r *inventoryRepository) SumMovements(_ context.Context, productID uuid.UUID) (int, error) {
	sum := 0
	for _, movement := range r.store.state.movements {
		if movement.ProductID == productID {
			sum += movement.Quantity
		}
	}
	return sum, nil
}

func (r *inventoryRepository) ListProductsWithMovements(_ context.Context) ([]uuid.UUID, error) {
	seen := make(map[uuid.UUID]struct{})
	var ids []uuid.UUID
	for _, movement := range r.store.state.movements {
		if _, ok := seen[movement.ProductID]; ok {
			continue
		}
		seen[movement.ProductID] = struct{}{}
		ids = append(ids, movement.ProductID)
	}
	return ids, nil
}

type orderRepository struct{ store *Store }

func (r *orderRepository) NextID() (uuid.UUID, error) {
	return uuid.NewRandom()
}

func (r *orderRepository) Create(_ context.Context, order *model.Order) error {
	if _, exists := r.store.state.orders[order.ID]; exists {
		return model.ErrDuplicateOrder
	}
	for _, existing := range r.store.state.orders {
		if existing.OrderNumber == order.OrderNumber {
			return model.ErrDuplicateOrder
		}
	}
	r.store.state.orders[order.ID] = *order
	return nil
}

func (r *orderRepository) Find(_ context.Context, id uuid.UUID) (*model.Order, error) {
	order, ok := r.store.state.orders[id]
	if !ok {
		return nil, model.ErrOrderNotFound
	}
	return &order, nil
}

func (r *orderRepository) UpdateStatus(_ context.Context, order *model.Order) error {
	existing, ok := r.store.state.orders[order.ID]
	if !ok {
		return model.ErrOrderNotFound
	}
	existing.Status = order.Status
	existing.UpdatedAt = order.UpdatedAt
	existing.CompletedAt = order.CompletedAt
	r.store.state.orders[order.ID] = existing
	return nil
}
