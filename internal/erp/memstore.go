package erp

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-memory Store. It applies the same uniqueness rule on
// ExternalRef as the postgres schema.
type MemStore struct {
	mu        sync.Mutex
	customers []Customer
	products  []Product
	orders    []SalesOrder
	bookings  []Booking
	profiles  map[uuid.UUID]Profile
	now       func() time.Time
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{profiles: map[uuid.UUID]Profile{}, now: time.Now}
}

func (m *MemStore) FindCustomerByEmail(_ context.Context, email string) (*Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.customers {
		if c.Email == email {
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemStore) GetCustomer(_ context.Context, id uuid.UUID) (*Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.customers {
		if c.ID == id {
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemStore) CreateCustomer(_ context.Context, c *Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.CreatedAt = m.now()
	m.customers = append(m.customers, *c)
	return nil
}

func (m *MemStore) FindProduct(_ context.Context, name, sku string) (*Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.products {
		if p.Name == name {
			return &p, nil
		}
	}
	if sku == "" {
		return nil, ErrNotFound
	}
	for _, p := range m.products {
		if p.SKU == sku {
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemStore) GetProduct(_ context.Context, id uuid.UUID) (*Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.products {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemStore) CreateProduct(_ context.Context, p *Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = m.now()
	m.products = append(m.products, *p)
	return nil
}

func (m *MemStore) CreateSalesOrder(_ context.Context, o *SalesOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o.ExternalRef != "" {
		for _, x := range m.orders {
			if x.ExternalRef == o.ExternalRef {
				return fmt.Errorf("sales order %s: %w", o.ExternalRef, ErrAlreadyExists)
			}
		}
	}
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.State == "" {
		o.State = StateDraft
	}
	o.CreatedAt = m.now()
	o.UpdatedAt = o.CreatedAt
	for i := range o.Lines {
		if o.Lines[i].ID == uuid.Nil {
			o.Lines[i].ID = uuid.New()
		}
		o.Lines[i].OrderID = o.ID
	}
	m.orders = append(m.orders, cloneOrder(*o))
	return nil
}

func (m *MemStore) SalesOrderExists(_ context.Context, externalRef string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.ExternalRef == externalRef {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemStore) GetSalesOrder(_ context.Context, id uuid.UUID) (*SalesOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.ID == id {
			c := cloneOrder(o)
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemStore) SetOrderState(_ context.Context, id uuid.UUID, to OrderState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.orders {
		if m.orders[i].ID != id {
			continue
		}
		if !CanTransition(m.orders[i].State, to) {
			return fmt.Errorf("%s -> %s: %w", m.orders[i].State, to, ErrInvalidTransition)
		}
		m.orders[i].State = to
		m.orders[i].UpdatedAt = m.now()
		return nil
	}
	return ErrNotFound
}

func (m *MemStore) ListExportable(_ context.Context) ([]SalesOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []SalesOrder
	for _, o := range m.orders {
		if !o.Imported && !o.Synced && o.State == StateConfirmed {
			out = append(out, cloneOrder(o))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OrderDate.Before(out[j].OrderDate) })
	return out, nil
}

func (m *MemStore) MarkOrderSynced(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.orders {
		if m.orders[i].ID == id {
			m.orders[i].Synced = true
			m.orders[i].UpdatedAt = m.now()
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemStore) CreateBooking(_ context.Context, b *Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	b.CreatedAt = m.now()
	m.bookings = append(m.bookings, *b)
	return nil
}

func (m *MemStore) ListUnpushedBookings(_ context.Context) ([]Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Booking
	for _, b := range m.bookings {
		if b.RemoteBookingID == "" {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *MemStore) SaveBookingSync(_ context.Context, b *Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.bookings {
		if m.bookings[i].ID == b.ID {
			m.bookings[i].RemoteRoomID = b.RemoteRoomID
			m.bookings[i].RemoteBookingID = b.RemoteBookingID
			m.bookings[i].LastSyncStatus = b.LastSyncStatus
			m.bookings[i].LastSyncAt = b.LastSyncAt
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemStore) GetProfile(_ context.Context, id uuid.UUID) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *MemStore) ListProfiles(_ context.Context, enabledOnly bool) ([]Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Profile
	for _, p := range m.profiles {
		if enabledOnly && !p.Enabled {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemStore) SaveProfile(_ context.Context, p *Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := m.now()
	if old, ok := m.profiles[p.ID]; ok {
		p.LastSyncAt = old.LastSyncAt
		p.LastSyncStatus = old.LastSyncStatus
		p.CreatedAt = old.CreatedAt
	} else {
		p.LastSyncAt = nil
		p.LastSyncStatus = ""
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	m.profiles[p.ID] = *p
	return nil
}

func (m *MemStore) UpdateProfileSync(_ context.Context, id uuid.UUID, status string, lastSyncAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return ErrNotFound
	}
	p.LastSyncStatus = status
	if lastSyncAt != nil {
		t := *lastSyncAt
		p.LastSyncAt = &t
	}
	p.UpdatedAt = m.now()
	m.profiles[id] = p
	return nil
}

// Orders, Customers, Products and Bookings return snapshots for assertions.

func (m *MemStore) Orders() []SalesOrder {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SalesOrder, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, cloneOrder(o))
	}
	return out
}

func (m *MemStore) Customers() []Customer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Customer(nil), m.customers...)
}

func (m *MemStore) Products() []Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Product(nil), m.products...)
}

func (m *MemStore) Bookings() []Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Booking(nil), m.bookings...)
}

func cloneOrder(o SalesOrder) SalesOrder {
	o.Lines = append([]OrderLine(nil), o.Lines...)
	return o
}
