package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/bourseville/listings-api/internal/domain"
	pfirestore "github.com/bourseville/listings-api/internal/platform/firestore"
	"github.com/bourseville/listings-api/internal/repositories"
)

const (
	paymentOrderCollection = "payment_orders"
)

// PaymentOrderRepository persists publication-fee orders within Firestore.
type PaymentOrderRepository struct {
	base     *pfirestore.BaseRepository[paymentOrderDocument]
	provider *pfirestore.Provider
}

// NewPaymentOrderRepository constructs a Firestore-backed payment order repository.
func NewPaymentOrderRepository(provider *pfirestore.Provider) (*PaymentOrderRepository, error) {
	if provider == nil {
		return nil, errors.New("payment order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[paymentOrderDocument](provider, paymentOrderCollection, nil, nil)
	return &PaymentOrderRepository{
		base:     base,
		provider: provider,
	}, nil
}

// Get loads the order by ID.
func (r *PaymentOrderRepository) Get(ctx context.Context, orderID string) (domain.PaymentOrder, error) {
	if r == nil || r.base == nil {
		return domain.PaymentOrder{}, errors.New("payment order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.PaymentOrder{}, errors.New("payment order repository: order id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.PaymentOrder{}, err
	}
	return orderFromDocument(doc), nil
}

// GetBySession loads the order created for a checkout session.
func (r *PaymentOrderRepository) GetBySession(ctx context.Context, sessionID string) (domain.PaymentOrder, error) {
	if r == nil || r.base == nil {
		return domain.PaymentOrder{}, errors.New("payment order repository not initialised")
	}
	session := strings.TrimSpace(sessionID)
	if session == "" {
		return domain.PaymentOrder{}, errors.New("payment order repository: session id is required")
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("checkoutSessionId", "==", session).Limit(1)
	})
	if err != nil {
		return domain.PaymentOrder{}, err
	}
	if len(docs) == 0 {
		return domain.PaymentOrder{}, pfirestore.WrapError("payment_orders.get_by_session",
			status.Error(codes.NotFound, "no order for checkout session"))
	}
	return orderFromDocument(docs[0]), nil
}

// Create persists a new order document under the order's ID.
func (r *PaymentOrderRepository) Create(ctx context.Context, order domain.PaymentOrder) (domain.PaymentOrder, error) {
	if r == nil || r.base == nil {
		return domain.PaymentOrder{}, errors.New("payment order repository not initialised")
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return domain.PaymentOrder{}, errors.New("payment order repository: order id is required")
	}

	doc := orderToDocument(order)
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = doc.CreatedAt
	}

	result, err := r.base.Set(ctx, id, doc)
	if err != nil {
		return domain.PaymentOrder{}, err
	}

	saved := order
	saved.ID = id
	saved.CreatedAt = doc.CreatedAt
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

// Update overwrites the order document, including its audit notes.
func (r *PaymentOrderRepository) Update(ctx context.Context, order domain.PaymentOrder) (domain.PaymentOrder, error) {
	if r == nil || r.base == nil {
		return domain.PaymentOrder{}, errors.New("payment order repository not initialised")
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return domain.PaymentOrder{}, errors.New("payment order repository: order id is required")
	}

	doc := orderToDocument(order)
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = time.Now().UTC()
	}

	result, err := r.base.Set(ctx, id, doc)
	if err != nil {
		return domain.PaymentOrder{}, err
	}

	saved := order
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

func orderToDocument(order domain.PaymentOrder) paymentOrderDocument {
	doc := paymentOrderDocument{
		OwnerID:           strings.TrimSpace(order.OwnerID),
		ListingID:         strings.TrimSpace(order.ListingID),
		ProductKey:        strings.TrimSpace(order.ProductKey),
		Amount:            order.Amount,
		Currency:          strings.ToLower(strings.TrimSpace(order.Currency)),
		Status:            string(order.Status),
		CheckoutSessionID: strings.TrimSpace(order.CheckoutSessionID),
		CreatedAt:         order.CreatedAt.UTC(),
		UpdatedAt:         order.UpdatedAt.UTC(),
	}
	for _, note := range order.Notes {
		doc.Notes = append(doc.Notes, orderNoteDocument{
			At:      note.At.UTC(),
			Message: note.Message,
		})
	}
	return doc
}

func orderFromDocument(doc pfirestore.Document[paymentOrderDocument]) domain.PaymentOrder {
	order := domain.PaymentOrder{
		ID:                doc.ID,
		OwnerID:           strings.TrimSpace(doc.Data.OwnerID),
		ListingID:         strings.TrimSpace(doc.Data.ListingID),
		ProductKey:        strings.TrimSpace(doc.Data.ProductKey),
		Amount:            doc.Data.Amount,
		Currency:          strings.ToLower(strings.TrimSpace(doc.Data.Currency)),
		Status:            domain.OrderStatus(doc.Data.Status),
		CheckoutSessionID: strings.TrimSpace(doc.Data.CheckoutSessionID),
		CreatedAt:         doc.Data.CreatedAt,
		UpdatedAt: func() time.Time {
			if !doc.UpdateTime.IsZero() {
				return doc.UpdateTime
			}
			return doc.Data.UpdatedAt
		}(),
	}
	for _, note := range doc.Data.Notes {
		order.Notes = append(order.Notes, domain.OrderNote{
			At:      note.At,
			Message: note.Message,
		})
	}
	return order
}

type paymentOrderDocument struct {
	OwnerID           string              `firestore:"ownerId"`
	ListingID         string              `firestore:"listingId,omitempty"`
	ProductKey        string              `firestore:"productKey"`
	Amount            int64               `firestore:"amount"`
	Currency          string              `firestore:"currency"`
	Status            string              `firestore:"status"`
	CheckoutSessionID string              `firestore:"checkoutSessionId,omitempty"`
	Notes             []orderNoteDocument `firestore:"notes,omitempty"`
	CreatedAt         time.Time           `firestore:"createdAt"`
	UpdatedAt         time.Time           `firestore:"updatedAt"`
}

type orderNoteDocument struct {
	At      time.Time `firestore:"at"`
	Message string    `firestore:"message"`
}

var _ repositories.PaymentOrderRepository = (*PaymentOrderRepository)(nil)
