package erp

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrAlreadyExists     = errors.New("record already exists")
	ErrInvalidTransition = errors.New("invalid order state transition")
)

// Store is the ERP record store shared by the sync flows and the HTTP API.
// Repo (postgres) and MemStore implement it.
type Store interface {
	FindCustomerByEmail(ctx context.Context, email string) (*Customer, error)
	GetCustomer(ctx context.Context, id uuid.UUID) (*Customer, error)
	CreateCustomer(ctx context.Context, c *Customer) error

	// FindProduct matches by name first, then by SKU when sku is not empty.
	FindProduct(ctx context.Context, name, sku string) (*Product, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*Product, error)
	CreateProduct(ctx context.Context, p *Product) error

	// CreateSalesOrder returns ErrAlreadyExists when ExternalRef is already taken.
	CreateSalesOrder(ctx context.Context, o *SalesOrder) error
	SalesOrderExists(ctx context.Context, externalRef string) (bool, error)
	GetSalesOrder(ctx context.Context, id uuid.UUID) (*SalesOrder, error)
	SetOrderState(ctx context.Context, id uuid.UUID, to OrderState) error
	// ListExportable returns confirmed orders that are neither imported nor synced.
	ListExportable(ctx context.Context) ([]SalesOrder, error)
	MarkOrderSynced(ctx context.Context, id uuid.UUID) error

	CreateBooking(ctx context.Context, b *Booking) error
	// ListUnpushedBookings returns bookings without a remote booking id.
	ListUnpushedBookings(ctx context.Context) ([]Booking, error)
	SaveBookingSync(ctx context.Context, b *Booking) error

	GetProfile(ctx context.Context, id uuid.UUID) (*Profile, error)
	ListProfiles(ctx context.Context, enabledOnly bool) ([]Profile, error)
	SaveProfile(ctx context.Context, p *Profile) error
	// UpdateProfileSync writes the status; lastSyncAt nil keeps the current watermark.
	UpdateProfileSync(ctx context.Context, id uuid.UUID, status string, lastSyncAt *time.Time) error
}
