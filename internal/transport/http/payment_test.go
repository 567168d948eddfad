package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestHandlePaymentWebhook(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		body           string
		applied        bool
		serviceErr     error
		expectedStatus int
		expectedSubstr string
	}{
		{
			name:           "applies a pending payment",
			body:           `{"order_id":"order-123"}`,
			applied:        true,
			expectedStatus: http.StatusOK,
			expectedSubstr: `"applied":true`,
		},
		{
			name:           "duplicate callback is a 200 no-op",
			body:           `{"order_id":"order-123"}`,
			applied:        false,
			expectedStatus: http.StatusOK,
			expectedSubstr: `"applied":false`,
		},
		{
			name:           "invalid json",
			body:           `{"order_id":`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "missing order id",
			body:           `{}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "store failure is a 500 so the gateway retries",
			body:           `{"order_id":"order-123"}`,
			serviceErr:     errors.New("db down"),
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeOrderAPI{confirmed: tc.applied, confirmErr: tc.serviceErr}
			router := NewRouter(svc, zap.NewNop())

			req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tc.expectedStatus {
				t.Fatalf("expected status %d, got %d: %s", tc.expectedStatus, rec.Code, rec.Body.String())
			}
			if tc.expectedSubstr != "" && !strings.Contains(rec.Body.String(), tc.expectedSubstr) {
				t.Fatalf("expected body to contain %q, got %s", tc.expectedSubstr, rec.Body.String())
			}
		})
	}
}
