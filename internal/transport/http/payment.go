package http

import (
	"context"
	"encoding/json"
	"net/http"
)

// PaymentConfirmer is the minimal interface needed by the payment
// webhook. Signature verification happens upstream at the gateway edge;
// by the time this handler runs the callback is trusted.
type PaymentConfirmer interface {
	ConfirmPayment(ctx context.Context, orderID string) (bool, error)
}

// HandlePaymentWebhook returns an HTTP handler for gateway payment
// callbacks. Duplicate callbacks respond 200 with applied=false so the
// gateway stops retrying.
func HandlePaymentWebhook(svc PaymentConfirmer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req paymentWebhookRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if req.OrderID == "" {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "order_id is required")
			return
		}

		applied, err := svc.ConfirmPayment(r.Context(), req.OrderID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(paymentWebhookResponse{Applied: applied})
	}
}

type paymentWebhookRequest struct {
	OrderID string `json:"order_id"`
}

type paymentWebhookResponse struct {
	Applied bool `json:"applied"`
}
