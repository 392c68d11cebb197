package erp

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OriginStorefront menandai sales order hasil import dari storefront.
const OriginStorefront = "WooCommerce"

type Customer struct {
	ID        uuid.UUID
	Name      string
	Email     string
	Phone     string
	CreatedAt time.Time
}

type Product struct {
	ID              uuid.UUID
	Name            string
	SKU             string
	ListPrice       decimal.Decimal
	RemoteProductID string // id produk di storefront, kosong kalau belum pernah dilihat
	CreatedAt       time.Time
}

type SalesOrder struct {
	ID          uuid.UUID
	CustomerID  uuid.UUID
	ExternalRef string // id order storefront; kosong untuk order asli ERP
	Origin      string
	OrderDate   time.Time
	State       OrderState // lihat status.go
	Imported    bool
	Synced      bool
	Lines       []OrderLine
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type OrderLine struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	ProductID uuid.UUID
	Name      string
	Quantity  decimal.Decimal
	PriceUnit decimal.Decimal
}

// Booking is a room reservation kept in the ERP and mirrored to the
// storefront's booking endpoint.
type Booking struct {
	ID              uuid.UUID
	Name            string
	ProductID       *uuid.UUID
	CustomerID      *uuid.UUID
	RoomName        string
	RemoteRoomID    string
	CheckIn         time.Time
	CheckOut        time.Time
	Status          string
	RemoteBookingID string
	LastSyncStatus  string
	LastSyncAt      *time.Time
	CreatedAt       time.Time
}

// Profile holds the storefront endpoint, its credentials and the state of
// the last run. LastSyncAt is the import watermark.
type Profile struct {
	ID             uuid.UUID
	Name           string
	URL            string
	ConsumerKey    string
	ConsumerSecret string
	RoomsURL       string
	BookingsURL    string
	Enabled        bool
	LastSyncAt     *time.Time
	LastSyncStatus string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
