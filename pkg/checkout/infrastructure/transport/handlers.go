package transport

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	appservice "checkout/pkg/checkout/application/service"
	"checkout/pkg/checkout/domain/model"
	"checkout/pkg/checkout/domain/service"
)

const userIDHeader = "X-User-ID"

// Amounts are rendered as fixed-point strings: money with 2 decimals,
// costs with 4.
type supplierResponse struct {
	SupplierID uuid.UUID `json:"supplierId"`
	Quantity   int       `json:"quantity"`
	UnitCost   string    `json:"unitCost"`
	TotalCost  string    `json:"totalCost"`
}

type itemResponse struct {
	ProductID   uuid.UUID          `json:"productId"`
	Quantity    int                `json:"quantity"`
	UnitPrice   string             `json:"unitPrice"`
	Subtotal    string             `json:"subtotal"`
	AverageCost string             `json:"averageCost"`
	Suppliers   []supplierResponse `json:"suppliers"`
}

type orderResponse struct {
	ID           uuid.UUID      `json:"id"`
	OrderNumber  string         `json:"orderNumber"`
	Subtotal     string         `json:"subtotal"`
	Tax          string         `json:"tax"`
	ShippingCost string         `json:"shippingCost"`
	Total        string         `json:"total"`
	Status       string         `json:"status"`
	Items        []itemResponse `json:"items"`
}

type balanceResponse struct {
	ProductID         uuid.UUID `json:"productId"`
	AvailableQuantity int       `json:"availableQuantity"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type Handler struct {
	checkout appservice.CheckoutService
}

func Router(checkout appservice.CheckoutService) http.Handler {
	handler := &Handler{checkout: checkout}

	r := mux.NewRouter()
	s := r.PathPrefix("/api/v1").Subrouter()
	s.HandleFunc("/orders", handler.placeOrder).Methods(http.MethodPost)
	s.HandleFunc("/orders/{orderID}", handler.getOrder).Methods(http.MethodGet)
	s.HandleFunc("/orders/{orderID}/status", handler.updateStatus).Methods(http.MethodPut)
	s.HandleFunc("/inventory/{productID}/reconcile", handler.reconcileInventory).Methods(http.MethodPost)

	return logMiddleware(r)
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.Header.Get(userIDHeader))
	if err != nil {
		writeError(w, errors.Wrap(appservice.ErrInvalidRequest, "missing or malformed "+userIDHeader))
		return
	}

	var request appservice.PlaceOrderRequest
	if err := decode(r.Body, &request); err != nil {
		writeError(w, err)
		return
	}

	order, err := h.checkout.PlaceOrder(r.Context(), userID, request)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r, "orderID")
	if err != nil {
		writeError(w, err)
		return
	}
	order, err := h.checkout.GetOrder(r.Context(), orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r, "orderID")
	if err != nil {
		writeError(w, err)
		return
	}
	var request statusRequest
	if err := decode(r.Body, &request); err != nil {
		writeError(w, err)
		return
	}

	order, err := h.checkout.UpdateOrderStatus(r.Context(), orderID, request.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) reconcileInventory(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "productID")
	if err != nil {
		writeError(w, err)
		return
	}
	balance, err := h.checkout.ReconcileInventory(r.Context(), productID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{ProductID: balance.ProductID, AvailableQuantity: balance.AvailableQuantity})
}

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		return uuid.Nil, errors.Wrapf(appservice.ErrInvalidRequest, "malformed %s", name)
	}
	return id, nil
}

func decode(body io.Reader, v interface{}) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return errors.Wrap(appservice.ErrInvalidRequest, err.Error())
	}
	return nil
}

func toOrderResponse(order *model.Order) orderResponse {
	response := orderResponse{
		ID:           order.ID,
		OrderNumber:  order.OrderNumber,
		Subtotal:     order.Subtotal.StringFixed(2),
		Tax:          order.Tax.StringFixed(2),
		ShippingCost: order.ShippingCost.StringFixed(2),
		Total:        order.Total.StringFixed(2),
		Status:       order.Status.String(),
		Items:        make([]itemResponse, 0, len(order.Items)),
	}
	for _, item := range order.Items {
		itemResp := itemResponse{
			ProductID:   item.ProductID,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice.StringFixed(2),
			Subtotal:    item.Subtotal.StringFixed(2),
			AverageCost: item.AverageCost.StringFixed(4),
			Suppliers:   make([]supplierResponse, 0, len(item.Suppliers)),
		}
		for _, s := range item.Suppliers {
			itemResp.Suppliers = append(itemResp.Suppliers, supplierResponse{
				SupplierID: s.SupplierID,
				Quantity:   s.Quantity,
				UnitCost:   s.UnitCost.StringFixed(4),
				TotalCost:  s.TotalCost.StringFixed(4),
			})
		}
		response.Items = append(response.Items, itemResp)
	}
	return response
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, appservice.ErrInvalidRequest),
		errors.Is(err, model.ErrInvalidOrderStatus),
		errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, service.ErrInvalidQuantity):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrOrderNotFound),
		errors.Is(err, model.ErrProductNotFound),
		errors.Is(err, model.ErrUserNotFound),
		errors.Is(err, model.ErrOfferNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInsufficientStock),
		errors.Is(err, model.ErrInvalidStateTransition):
		return http.StatusConflict
	case errors.Is(err, model.ErrPriceNotFound),
		errors.Is(err, service.ErrPriceLevelMissing),
		errors.Is(err, model.ErrPriceLevelNotFound):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	code := statusCode(err)
	message := err.Error()
	if code == http.StatusInternalServerError {
		log.WithError(err).Error("request failed")
		message = "internal error"
	}
	writeJSON(w, code, errorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err = w.Write(b); err != nil {
		log.WithField("err", err).Error("write response")
	}
}

func logMiddleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.WithFields(log.Fields{
			"method":     r.Method,
			"url":        r.URL,
			"remoteAddr": r.RemoteAddr,
			"userAgent":  r.UserAgent(),
		}).Info("got a new request")
		h.ServeHTTP(w, r)
	})
}
