package woo

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Order is one element of the storefront order-list response.
type Order struct {
	ID          int64      `json:"id"`
	Billing     Billing    `json:"billing"`
	DateCreated string     `json:"date_created"`
	LineItems   []LineItem `json:"line_items"`
	MetaData    []Meta     `json:"meta_data"`
}

type Billing struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// LineItem price and quantity arrive either as JSON numbers or strings;
// decimal.Decimal accepts both.
type LineItem struct {
	ID        int64           `json:"id"`
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	SKU       string          `json:"sku"`
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
}

type Meta struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// StringValue returns the metadata value as text. JSON strings are unquoted,
// anything else is returned as its raw JSON text.
func (m Meta) StringValue() string {
	raw := strings.TrimSpace(string(m.Value))
	if raw == "" || raw == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(m.Value, &s); err == nil {
		return s
	}
	return raw
}

// OrderInput is the body of the order-create call.
type OrderInput struct {
	PaymentMethod      string          `json:"payment_method"`
	PaymentMethodTitle string          `json:"payment_method_title"`
	SetPaid            bool            `json:"set_paid"`
	Billing            BillingInput    `json:"billing"`
	LineItems          []LineItemInput `json:"line_items"`
}

type BillingInput struct {
	FirstName string `json:"first_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

type LineItemInput struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// BookingInput is the body of the booking-create call. Exactly one of
// room_id / room_name is sent.
type BookingInput struct {
	Title    string `json:"title"`
	CheckIn  string `json:"checkin"`
	CheckOut string `json:"checkout"`
	Status   string `json:"status"`
	RoomID   any    `json:"room_id,omitempty"`
	RoomName string `json:"room_name,omitempty"`
}

// RoomIDValue keeps numeric room ids numeric on the wire.
func RoomIDValue(id string) any {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}

// idString converts a JSON id (number or string) to text; "" when absent.
func idString(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" || s == `""` || s == "false" || s == "0" {
		return ""
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str
	}
	return s
}
