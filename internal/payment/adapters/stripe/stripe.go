package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pinksky/orderflow/internal/config"
	"github.com/pinksky/orderflow/internal/observability/tracing"
	paymentdomain "github.com/pinksky/orderflow/internal/payment/domain"
	"go.uber.org/zap"
)

const peerService = "gateway"

// Client talks to a Stripe-compatible REST API.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

// New returns nil when no API key is configured, which leaves the payment
// service without a gateway.
func New(cfg config.Config, log *zap.Logger) paymentdomain.Gateway {
	if strings.TrimSpace(cfg.Gateway.APIKey) == "" {
		log.Warn("payment gateway api key not set, checkout disabled")
		return nil
	}
	return NewClient(cfg.Gateway.APIKey, cfg.Gateway.BaseURL, &http.Client{Timeout: cfg.Gateway.Timeout}, log)
}

func NewClient(apiKey, baseURL string, httpClient *http.Client, log *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		apiKey:  strings.TrimSpace(apiKey),
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    httpClient,
		log:     log.Named("gateway.stripe"),
	}
}

// APIError is a non-2xx answer from the gateway.
type APIError struct {
	Status  int
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway: status %d: %s %s: %s", e.Status, e.Type, e.Code, e.Message)
}

type checkoutSession struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	PaymentStatus string `json:"payment_status"`
	AmountTotal   int64  `json:"amount_total"`
	PaymentIntent string `json:"payment_intent"`
}

type paymentIntent struct {
	ID           string `json:"id"`
	LatestCharge struct {
		ReceiptURL string `json:"receipt_url"`
	} `json:"latest_charge"`
}

type coupon struct {
	ID string `json:"id"`
}

func (c *Client) CreateCheckout(ctx context.Context, req paymentdomain.CheckoutRequest) (paymentdomain.GatewayCheckout, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", req.SuccessURL)
	form.Set("cancel_url", req.CancelURL)
	form.Set("client_reference_id", req.PaymentID)
	form.Set("metadata[payment_id]", req.PaymentID)
	form.Set("metadata[reference]", req.Reference)
	if req.CustomerEmail != "" {
		form.Set("customer_email", req.CustomerEmail)
	}

	i := 0
	addLine := func(name string, cents int64, qty int) {
		prefix := "line_items[" + strconv.Itoa(i) + "]"
		form.Set(prefix+"[price_data][currency]", req.Currency)
		form.Set(prefix+"[price_data][product_data][name]", name)
		form.Set(prefix+"[price_data][unit_amount]", strconv.FormatInt(cents, 10))
		form.Set(prefix+"[quantity]", strconv.Itoa(qty))
		i++
	}
	for _, item := range req.LineItems {
		addLine(item.Name, item.UnitAmountCents, item.Quantity)
	}
	if req.TaxCents > 0 {
		addLine("Tax", req.TaxCents, 1)
	}

	form.Set("shipping_options[0][shipping_rate_data][type]", "fixed_amount")
	form.Set("shipping_options[0][shipping_rate_data][display_name]", "Shipping")
	form.Set("shipping_options[0][shipping_rate_data][fixed_amount][amount]", strconv.FormatInt(req.ShippingFeeCents, 10))
	form.Set("shipping_options[0][shipping_rate_data][fixed_amount][currency]", req.Currency)
	if req.Country != "" {
		form.Set("shipping_address_collection[allowed_countries][0]", strings.ToUpper(req.Country))
	}

	if req.DiscountCents > 0 {
		couponID, err := c.createCoupon(ctx, req)
		if err != nil {
			return paymentdomain.GatewayCheckout{}, err
		}
		form.Set("discounts[0][coupon]", couponID)
	}

	var out checkoutSession
	if err := c.do(ctx, "create_checkout", http.MethodPost, "/v1/checkout/sessions", form, uuid.NewString(), &out); err != nil {
		return paymentdomain.GatewayCheckout{}, err
	}
	if out.ID == "" || out.URL == "" {
		return paymentdomain.GatewayCheckout{}, fmt.Errorf("gateway: checkout session response missing id or url")
	}
	return paymentdomain.GatewayCheckout{ID: out.ID, RedirectURL: out.URL}, nil
}

func (c *Client) createCoupon(ctx context.Context, req paymentdomain.CheckoutRequest) (string, error) {
	form := url.Values{}
	form.Set("amount_off", strconv.FormatInt(req.DiscountCents, 10))
	form.Set("currency", req.Currency)
	form.Set("duration", "once")
	form.Set("max_redemptions", "1")
	if req.DiscountCode != "" {
		form.Set("name", req.DiscountCode)
	}
	var out coupon
	if err := c.do(ctx, "create_coupon", http.MethodPost, "/v1/coupons", form, uuid.NewString(), &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *Client) RetrieveCheckout(ctx context.Context, checkoutID string) (paymentdomain.CheckoutState, error) {
	var out checkoutSession
	path := "/v1/checkout/sessions/" + url.PathEscape(checkoutID)
	if err := c.do(ctx, "retrieve_checkout", http.MethodGet, path, nil, "", &out); err != nil {
		return paymentdomain.CheckoutState{}, err
	}
	return paymentdomain.CheckoutState{
		PaymentStatus:    out.PaymentStatus,
		AmountTotalCents: out.AmountTotal,
		PaymentIntentRef: out.PaymentIntent,
	}, nil
}

// ExpireCheckout closes an open checkout session. The gateway rejects it once
// the session was paid.
func (c *Client) ExpireCheckout(ctx context.Context, checkoutID string) error {
	path := "/v1/checkout/sessions/" + url.PathEscape(checkoutID) + "/expire"
	return c.do(ctx, "expire_checkout", http.MethodPost, path, url.Values{}, "expire:"+checkoutID, nil)
}

func (c *Client) RetrieveReceipt(ctx context.Context, paymentIntentRef string) (string, error) {
	var out paymentIntent
	path := "/v1/payment_intents/" + url.PathEscape(paymentIntentRef) + "?expand[]=latest_charge"
	if err := c.do(ctx, "retrieve_receipt", http.MethodGet, path, nil, "", &out); err != nil {
		return "", err
	}
	return out.LatestCharge.ReceiptURL, nil
}

func (c *Client) Refund(ctx context.Context, paymentIntentRef string) error {
	form := url.Values{}
	form.Set("payment_intent", paymentIntentRef)
	return c.do(ctx, "refund", http.MethodPost, "/v1/refunds", form, "refund:"+paymentIntentRef, nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, form url.Values, idempotencyKey string, out any) (err error) {
	ctx, span := tracing.StartClientSpan(ctx, peerService, op)
	status := 0
	defer func() { tracing.EndClientSpan(span, status, err) }()

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	tracing.Inject(ctx, req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var envelope struct {
			Error *APIError `json:"error"`
		}
		if json.Unmarshal(raw, &envelope) == nil && envelope.Error != nil {
			apiErr.Type = envelope.Error.Type
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		c.log.Warn("gateway request rejected",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode),
			zap.String("code", apiErr.Code),
		)
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

var _ paymentdomain.Gateway = (*Client)(nil)
