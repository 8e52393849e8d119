package stripe

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	paymentdomain "github.com/pinksky/orderflow/internal/payment/domain"
)

type recorded struct {
	method string
	path   string
	query  string
	form   url.Values
	header http.Header
}

func newTestServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*Client, *[]recorded) {
	t.Helper()
	var mu sync.Mutex
	calls := []recorded{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		form, _ := url.ParseQuery(string(body))
		mu.Lock()
		calls = append(calls, recorded{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.RawQuery,
			form:   form,
			header: r.Header.Clone(),
		})
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return NewClient("sk_test_123", srv.URL+"/", srv.Client(), nil), &calls
}

func TestCreateCheckoutEncodesLinesShippingTaxAndCoupon(t *testing.T) {
	client, calls := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/coupons":
			_, _ = io.WriteString(w, `{"id":"co_1"}`)
		case "/v1/checkout/sessions":
			_, _ = io.WriteString(w, `{"id":"cs_1","url":"https://pay.example/cs_1"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	checkout, err := client.CreateCheckout(context.Background(), paymentdomain.CheckoutRequest{
		PaymentID:        "42",
		Reference:        "PAY-01",
		Currency:         "usd",
		Country:          "us",
		CustomerEmail:    "jane@example.com",
		ShippingFeeCents: 6000,
		TaxCents:         500,
		DiscountCents:    1000,
		DiscountCode:     "SPRING10",
		LineItems:        []paymentdomain.LineItem{{Name: "Vitamin D - 30 caps", UnitAmountCents: 10000, Quantity: 1}},
		SuccessURL:       "https://shop.example/ok",
		CancelURL:        "https://shop.example/cancel",
	})
	if err != nil {
		t.Fatalf("create checkout: %v", err)
	}
	if checkout.ID != "cs_1" || checkout.RedirectURL != "https://pay.example/cs_1" {
		t.Fatalf("unexpected checkout %+v", checkout)
	}

	if len(*calls) != 2 {
		t.Fatalf("expected coupon and session calls, got %d", len(*calls))
	}
	couponCall := (*calls)[0]
	if couponCall.path != "/v1/coupons" || couponCall.form.Get("amount_off") != "1000" || couponCall.form.Get("name") != "SPRING10" {
		t.Fatalf("unexpected coupon call %+v", couponCall)
	}

	session := (*calls)[1]
	if got := session.header.Get("Authorization"); got != "Bearer sk_test_123" {
		t.Fatalf("authorization header = %q", got)
	}
	if session.header.Get("Idempotency-Key") == "" {
		t.Fatalf("expected idempotency key")
	}
	checks := map[string]string{
		"line_items[0][price_data][unit_amount]":                        "10000",
		"line_items[0][price_data][product_data][name]":                 "Vitamin D - 30 caps",
		"line_items[1][price_data][product_data][name]":                 "Tax",
		"line_items[1][price_data][unit_amount]":                        "500",
		"shipping_options[0][shipping_rate_data][fixed_amount][amount]": "6000",
		"discounts[0][coupon]":                                          "co_1",
		"metadata[payment_id]":                                          "42",
		"shipping_address_collection[allowed_countries][0]":             "US",
	}
	for key, want := range checks {
		if got := session.form.Get(key); got != want {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
	}
}

func TestRetrieveCheckoutAndReceipt(t *testing.T) {
	client, calls := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/v1/checkout/sessions/"):
			_, _ = io.WriteString(w, `{"id":"cs_1","payment_status":"paid","amount_total":16500,"payment_intent":"pi_1"}`)
		case r.URL.Path == "/v1/payment_intents/pi_1":
			_, _ = io.WriteString(w, `{"id":"pi_1","latest_charge":{"receipt_url":"https://receipts.example/pi_1"}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	state, err := client.RetrieveCheckout(context.Background(), "cs_1")
	if err != nil {
		t.Fatalf("retrieve checkout: %v", err)
	}
	if !state.Paid() || state.AmountTotalCents != 16500 || state.PaymentIntentRef != "pi_1" {
		t.Fatalf("unexpected state %+v", state)
	}

	receipt, err := client.RetrieveReceipt(context.Background(), "pi_1")
	if err != nil {
		t.Fatalf("retrieve receipt: %v", err)
	}
	if receipt != "https://receipts.example/pi_1" {
		t.Fatalf("receipt = %q", receipt)
	}
	if q := (*calls)[1].query; !strings.Contains(q, "expand") {
		t.Fatalf("expected expand query, got %q", q)
	}
}

func TestRefundUsesDeterministicIdempotencyKey(t *testing.T) {
	client, calls := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id":"re_1"}`)
	})

	if err := client.Refund(context.Background(), "pi_9"); err != nil {
		t.Fatalf("refund: %v", err)
	}
	call := (*calls)[0]
	if call.path != "/v1/refunds" || call.form.Get("payment_intent") != "pi_9" {
		t.Fatalf("unexpected refund call %+v", call)
	}
	if got := call.header.Get("Idempotency-Key"); got != "refund:pi_9" {
		t.Fatalf("idempotency key = %q", got)
	}
}

func TestExpireCheckoutPostsToSession(t *testing.T) {
	client, calls := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id":"cs_1","status":"expired"}`)
	})

	if err := client.ExpireCheckout(context.Background(), "cs_1"); err != nil {
		t.Fatalf("expire: %v", err)
	}
	call := (*calls)[0]
	if call.method != http.MethodPost || call.path != "/v1/checkout/sessions/cs_1/expire" {
		t.Fatalf("unexpected expire call %+v", call)
	}
	if got := call.header.Get("Idempotency-Key"); got != "expire:cs_1" {
		t.Fatalf("idempotency key = %q", got)
	}
}

func TestErrorEnvelopeIsDecoded(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = io.WriteString(w, `{"error":{"type":"card_error","code":"charge_already_refunded","message":"already refunded"}}`)
	})

	err := client.Refund(context.Background(), "pi_9")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusPaymentRequired || apiErr.Code != "charge_already_refunded" {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
}
