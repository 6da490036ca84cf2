package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

var (
	ErrPaymentsDisabled = errors.New("payments disabled")
	ErrInvalidPayment   = errors.New("invalid payment request")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// StripeGateway es el subconjunto de la API de Stripe que usa el servicio.
type StripeGateway interface {
	CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	CreateCustomer(ctx context.Context, params *stripe.CustomerParams) (*stripe.Customer, error)
	CreateSubscription(ctx context.Context, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
}

type stripeClient struct {
	api *client.API
}

// NewStripeGateway crea un gateway con un cliente propio, sin tocar stripe.Key global.
func NewStripeGateway(secretKey string) StripeGateway {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &stripeClient{api: api}
}

func (c *stripeClient) CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	params.Context = ctx
	return c.api.CheckoutSessions.New(params)
}

func (c *stripeClient) CreateCustomer(ctx context.Context, params *stripe.CustomerParams) (*stripe.Customer, error) {
	params.Context = ctx
	return c.api.Customers.New(params)
}

func (c *stripeClient) CreateSubscription(ctx context.Context, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	params.Context = ctx
	return c.api.Subscriptions.New(params)
}

// LineItem es un precio de Stripe con cantidad.
type LineItem struct {
	Price    string `json:"price"`
	Quantity int64  `json:"quantity"`
}

type CheckoutInput struct {
	Mode       string
	SuccessURL string
	CancelURL  string
	Email      string
	LineItems  []LineItem
	Metadata   map[string]string
}

type SubscriptionInput struct {
	Email     string
	LineItems []LineItem
	DueDays   int64
	Metadata  map[string]string
}

// PaymentService crea checkouts y suscripciones facturadas y valida webhooks.
type PaymentService struct {
	logger        *zap.Logger
	gateway       StripeGateway
	webhookSecret string
}

func NewPaymentService(logger *zap.Logger, gateway StripeGateway, webhookSecret string) *PaymentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{logger: logger, gateway: gateway, webhookSecret: webhookSecret}
}

func (s *PaymentService) Checkout(ctx context.Context, in CheckoutInput) (*stripe.CheckoutSession, error) {
	if s.gateway == nil {
		return nil, ErrPaymentsDisabled
	}
	mode := strings.ToLower(strings.TrimSpace(in.Mode))
	switch mode {
	case string(stripe.CheckoutSessionModePayment), string(stripe.CheckoutSessionModeSubscription), string(stripe.CheckoutSessionModeSetup):
	default:
		return nil, ErrInvalidPayment
	}
	if in.SuccessURL == "" || in.CancelURL == "" || len(in.LineItems) == 0 {
		return nil, ErrInvalidPayment
	}
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(mode),
		SuccessURL: stripe.String(in.SuccessURL),
		CancelURL:  stripe.String(in.CancelURL),
	}
	if in.Email != "" {
		params.CustomerEmail = stripe.String(in.Email)
	}
	for _, item := range in.LineItems {
		if item.Price == "" {
			return nil, ErrInvalidPayment
		}
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			Price:    stripe.String(item.Price),
			Quantity: stripe.Int64(quantity(item.Quantity)),
		})
	}
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}
	sess, err := s.gateway.CreateCheckoutSession(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return sess, nil
}

// Subscribe crea el cliente y una suscripción cobrada por factura con vencimiento.
func (s *PaymentService) Subscribe(ctx context.Context, in SubscriptionInput) (*stripe.Subscription, error) {
	if s.gateway == nil {
		return nil, ErrPaymentsDisabled
	}
	if strings.TrimSpace(in.Email) == "" || len(in.LineItems) == 0 {
		return nil, ErrInvalidPayment
	}
	due := in.DueDays
	if due <= 0 {
		due = 7
	}

	cust, err := s.gateway.CreateCustomer(ctx, &stripe.CustomerParams{Email: stripe.String(in.Email)})
	if err != nil {
		return nil, fmt.Errorf("create customer: %w", err)
	}

	params := &stripe.SubscriptionParams{
		Customer:         stripe.String(cust.ID),
		CollectionMethod: stripe.String(string(stripe.SubscriptionCollectionMethodSendInvoice)),
		DaysUntilDue:     stripe.Int64(due),
		PaymentBehavior:  stripe.String("default_incomplete"),
	}
	for _, item := range in.LineItems {
		if item.Price == "" {
			return nil, ErrInvalidPayment
		}
		params.Items = append(params.Items, &stripe.SubscriptionItemsParams{
			Price:    stripe.String(item.Price),
			Quantity: stripe.Int64(quantity(item.Quantity)),
		})
	}
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}
	sub, err := s.gateway.CreateSubscription(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}
	return sub, nil
}

// ParseWebhook verifica la firma Stripe-Signature sobre el body crudo.
func (s *PaymentService) ParseWebhook(payload []byte, signature string) (stripe.Event, error) {
	if s.webhookSecret == "" {
		return stripe.Event{}, ErrPaymentsDisabled
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		s.logger.Warn("stripe webhook rejected", zap.Error(err))
		return stripe.Event{}, ErrInvalidSignature
	}
	return event, nil
}

func quantity(q int64) int64 {
	if q <= 0 {
		return 1
	}
	return q
}
