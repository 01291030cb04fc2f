package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/bizledger/internal/server/services"
	"github.com/go-chi/chi/v5"
)

// orderRequest accepts items either as "items" or in the nested
// {"sales_order_items": {"data": [...]}} shape older clients send.
type orderRequest struct {
	services.OrderInput
	SalesOrderItems *struct {
		Data []services.OrderItemInput `json:"data"`
	} `json:"sales_order_items"`
}

type orderCreatedResponse struct {
	Message string `json:"message"`
	OrderID string `json:"order_id"`
}

type orderItemResponse struct {
	ID         string  `json:"id"`
	ItemName   string  `json:"item_name"`
	Quantity   float64 `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	ItemWeight float64 `json:"item_weight"`
	ItemDate   string  `json:"item_date,omitempty"`
}

type orderResponse struct {
	ID                    string              `json:"id"`
	BuyerID               string              `json:"buyer_id"`
	OrderDate             string              `json:"order_date"`
	TotalAmount           float64             `json:"total_amount"`
	ItemsMissingRateCount int                 `json:"items_missing_rate_count"`
	Items                 []orderItemResponse `json:"items"`
}

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var body orderRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid json")
		return
	}

	in := body.OrderInput
	if len(in.Items) == 0 && body.SalesOrderItems != nil {
		in.Items = body.SalesOrderItems.Data
	}

	res, err := s.orders.SubmitOrder(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.Info(r.Context(), "sales order submitted",
		"order_id", res.OrderID, "buyer_id", in.BuyerID, "created", res.Created, "user_id", identityFrom(r.Context()).UserID)

	writeJSON(w, http.StatusCreated, orderCreatedResponse{
		Message: "Sales order created successfully",
		OrderID: res.OrderID,
	})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	view, err := s.orders.Get(r.Context(), chi.URLParam(r, "buyerID"), chi.URLParam(r, "orderDate"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := orderResponse{
		ID:                    view.Order.ID,
		BuyerID:               view.Order.BuyerID,
		OrderDate:             view.Order.OrderDate,
		TotalAmount:           view.Order.TotalAmount,
		ItemsMissingRateCount: view.Order.ItemsMissingRateCount,
		Items:                 make([]orderItemResponse, 0, len(view.Items)),
	}
	for _, it := range view.Items {
		resp.Items = append(resp.Items, orderItemResponse{
			ID:         it.ID,
			ItemName:   it.ItemName,
			Quantity:   it.Quantity,
			UnitPrice:  it.UnitPrice,
			ItemWeight: it.ItemWeight,
			ItemDate:   it.ItemDate,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}
