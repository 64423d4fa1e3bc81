package transport_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appservice "checkout/pkg/checkout/application/service"
	"checkout/pkg/checkout/domain/model"
	"checkout/pkg/checkout/infrastructure/memory"
	"checkout/pkg/checkout/infrastructure/transport"
)

type server struct {
	handler http.Handler
	user    model.User
	product model.Product
}

func setup(t *testing.T) *server {
	t.Helper()
	level := model.PriceLevel{ID: uuid.New(), Name: "Retail"}
	user := model.User{ID: uuid.New(), Email: "jane@example.com", PriceLevelID: &level.ID}
	product := model.Product{ID: uuid.New(), SKU: "LAMP-01", CategoryID: uuid.New(), Cost: decimal.RequireFromString("12.00")}

	store := memory.NewStore()
	store.AddPriceLevel(level)
	store.AddUser(user)
	store.AddProduct(product)
	store.AddPrice(model.ProductPrice{ID: uuid.New(), ProductID: product.ID, PriceLevelID: level.ID, Price: decimal.RequireFromString("50.00"), IsActive: true})
	store.SetBalance(product.ID, 5)
	store.AddMovement(model.InventoryMovement{ID: uuid.New(), ProductID: product.ID, Type: model.Purchase, Quantity: 5, ReferenceID: "PO-7"})
	store.AddOffer(model.Offer{
		ID:                 uuid.New(),
		Type:               model.Percentage,
		Status:             model.OfferActive,
		DiscountPercentage: decimal.NewFromInt(10),
		StartDate:          time.Now().Add(-time.Hour),
		EndDate:            time.Now().Add(time.Hour),
	})

	checkout := appservice.NewCheckoutService(store, nil, nil, nil, appservice.Config{
		TaxRate:     decimal.RequireFromString("0.16"),
		MaxAttempts: 1,
	})
	return &server{handler: transport.Router(checkout), user: user, product: product}
}

func (s *server) do(method, path, userID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *server) placeOrder(quantity int) *httptest.ResponseRecorder {
	body := `{"items":[{"productId":"` + s.product.ID.String() + `","quantity":` + strconv.Itoa(quantity) + `}]}`
	return s.do(http.MethodPost, "/api/v1/orders", s.user.ID.String(), body)
}

type orderBody struct {
	ID          string `json:"id"`
	OrderNumber string `json:"orderNumber"`
	Subtotal    string `json:"subtotal"`
	Tax         string `json:"tax"`
	Total       string `json:"total"`
	Status      string `json:"status"`
	Items       []struct {
		UnitPrice string `json:"unitPrice"`
		Quantity  int    `json:"quantity"`
	} `json:"items"`
}

func decodeOrder(t *testing.T, rec *httptest.ResponseRecorder) orderBody {
	t.Helper()
	var body orderBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestPlaceOrderHandler(t *testing.T) {
	s := setup(t)

	rec := s.placeOrder(2)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	order := decodeOrder(t, rec)
	assert.Regexp(t, `^ORD-\d{8}-[0-9A-F]{8}$`, order.OrderNumber)
	assert.Equal(t, "90.00", order.Subtotal)
	assert.Equal(t, "14.40", order.Tax)
	assert.Equal(t, "104.40", order.Total)
	assert.Equal(t, "Pending", order.Status)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "45.00", order.Items[0].UnitPrice)

	rec = s.do(http.MethodGet, "/api/v1/orders/"+order.ID, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, order.OrderNumber, decodeOrder(t, rec).OrderNumber)
}

func TestPlaceOrderHandlerErrors(t *testing.T) {
	s := setup(t)

	cases := []struct {
		name     string
		userID   string
		body     string
		expected int
	}{
		{"Missing user", "", `{"items":[]}`, http.StatusBadRequest},
		{"Malformed body", s.user.ID.String(), `{"items":`, http.StatusBadRequest},
		{"Unknown field", s.user.ID.String(), `{"cart":[]}`, http.StatusBadRequest},
		{"Empty cart", s.user.ID.String(), `{"items":[]}`, http.StatusBadRequest},
		{"Unknown user", uuid.NewString(), `{"items":[{"productId":"` + s.product.ID.String() + `","quantity":1}]}`, http.StatusNotFound},
		{"Unknown product", s.user.ID.String(), `{"items":[{"productId":"` + uuid.NewString() + `","quantity":1}]}`, http.StatusNotFound},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			rec := s.do(http.MethodPost, "/api/v1/orders", c.userID, c.body)
			assert.Equal(t, c.expected, rec.Code, rec.Body.String())
		})
	}

	t.Run("Insufficient stock", func(t *testing.T) {
		rec := s.placeOrder(6)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestUpdateStatusHandler(t *testing.T) {
	s := setup(t)
	order := decodeOrder(t, s.placeOrder(1))
	path := "/api/v1/orders/" + order.ID + "/status"

	rec := s.do(http.MethodPut, path, "", `{"status":"Processing"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Processing", decodeOrder(t, rec).Status)

	rec = s.do(http.MethodPut, path, "", `{"status":"Pending"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodPut, path, "", `{"status":"Teleported"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPut, "/api/v1/orders/not-a-uuid/status", "", `{"status":"Shipped"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/api/v1/orders/"+uuid.NewString(), "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReconcileInventoryHandler(t *testing.T) {
	s := setup(t)
	require.Equal(t, http.StatusCreated, s.placeOrder(2).Code)

	rec := s.do(http.MethodPost, "/api/v1/inventory/"+s.product.ID.String()+"/reconcile", "", "")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		ProductID         string `json:"productId"`
		AvailableQuantity int    `json:"availableQuantity"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, s.product.ID.String(), body.ProductID)
	assert.Equal(t, 3, body.AvailableQuantity)
}
