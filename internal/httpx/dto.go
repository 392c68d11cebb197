package httpx

import (
	"time"

	"github.com/ariefcatur/woo-erp-sync/internal/erp"
	"github.com/shopspring/decimal"
)

// Response bodies. Consumer secrets never leave the service.

type ProfileResp struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	URL            string     `json:"url"`
	ConsumerKey    string     `json:"consumer_key"`
	HasSecret      bool       `json:"has_secret"`
	RoomsURL       string     `json:"rooms_url"`
	BookingsURL    string     `json:"bookings_url"`
	Enabled        bool       `json:"enabled"`
	LastSyncAt     *time.Time `json:"last_sync_date,omitempty"`
	LastSyncStatus string     `json:"last_sync_status"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func toProfileResp(p *erp.Profile) ProfileResp {
	return ProfileResp{
		ID:             p.ID.String(),
		Name:           p.Name,
		URL:            p.URL,
		ConsumerKey:    p.ConsumerKey,
		HasSecret:      p.ConsumerSecret != "",
		RoomsURL:       p.RoomsURL,
		BookingsURL:    p.BookingsURL,
		Enabled:        p.Enabled,
		LastSyncAt:     p.LastSyncAt,
		LastSyncStatus: p.LastSyncStatus,
		UpdatedAt:      p.UpdatedAt,
	}
}

type OrderLineResp struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  decimal.Decimal `json:"quantity"`
	PriceUnit decimal.Decimal `json:"price_unit"`
}

type OrderResp struct {
	ID          string          `json:"id"`
	CustomerID  string          `json:"customer_id"`
	ExternalRef string          `json:"external_ref,omitempty"`
	Origin      string          `json:"origin,omitempty"`
	OrderDate   time.Time       `json:"order_date"`
	State       erp.OrderState  `json:"state"`
	Imported    bool            `json:"imported"`
	Synced      bool            `json:"synced"`
	Lines       []OrderLineResp `json:"lines"`
}

func toOrderResp(o *erp.SalesOrder) OrderResp {
	lines := make([]OrderLineResp, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, OrderLineResp{
			ProductID: l.ProductID.String(),
			Name:      l.Name,
			Quantity:  l.Quantity,
			PriceUnit: l.PriceUnit,
		})
	}
	return OrderResp{
		ID:          o.ID.String(),
		CustomerID:  o.CustomerID.String(),
		ExternalRef: o.ExternalRef,
		Origin:      o.Origin,
		OrderDate:   o.OrderDate,
		State:       o.State,
		Imported:    o.Imported,
		Synced:      o.Synced,
		Lines:       lines,
	}
}

type BookingResp struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	RoomName        string    `json:"room_name,omitempty"`
	RemoteRoomID    string    `json:"remote_room_id,omitempty"`
	CheckIn         time.Time `json:"check_in"`
	CheckOut        time.Time `json:"check_out"`
	Status          string    `json:"status"`
	RemoteBookingID string    `json:"remote_booking_id,omitempty"`
	LastSyncStatus  string    `json:"last_sync_status,omitempty"`
}

func toBookingResp(b *erp.Booking) BookingResp {
	return BookingResp{
		ID:              b.ID.String(),
		Name:            b.Name,
		RoomName:        b.RoomName,
		RemoteRoomID:    b.RemoteRoomID,
		CheckIn:         b.CheckIn,
		CheckOut:        b.CheckOut,
		Status:          b.Status,
		RemoteBookingID: b.RemoteBookingID,
		LastSyncStatus:  b.LastSyncStatus,
	}
}
