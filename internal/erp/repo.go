package erp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repo is the postgres implementation of Store.
type Repo struct{ DB *pgxpool.Pool }

var _ Store = (*Repo)(nil)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *Repo) FindCustomerByEmail(ctx context.Context, email string) (*Customer, error) {
	var c Customer
	err := r.DB.QueryRow(ctx, `SELECT id, name, email, phone, created_at
	                            FROM customers WHERE email=$1 ORDER BY created_at LIMIT 1`, email).
		Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (r *Repo) GetCustomer(ctx context.Context, id uuid.UUID) (*Customer, error) {
	var c Customer
	err := r.DB.QueryRow(ctx, `SELECT id, name, email, phone, created_at FROM customers WHERE id=$1`, id).
		Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (r *Repo) CreateCustomer(ctx context.Context, c *Customer) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return r.DB.QueryRow(ctx, `
		INSERT INTO customers(id, name, email, phone)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`, c.ID, c.Name, c.Email, c.Phone).Scan(&c.CreatedAt)
}

const productCols = `id, name, sku, list_price, remote_product_id, created_at`

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	if err := row.Scan(&p.ID, &p.Name, &p.SKU, &p.ListPrice, &p.RemoteProductID, &p.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *Repo) FindProduct(ctx context.Context, name, sku string) (*Product, error) {
	p, err := scanProduct(r.DB.QueryRow(ctx, `SELECT `+productCols+` FROM products
	                                           WHERE name=$1 ORDER BY created_at LIMIT 1`, name))
	if err == nil || !errors.Is(err, ErrNotFound) || sku == "" {
		return p, err
	}
	return scanProduct(r.DB.QueryRow(ctx, `SELECT `+productCols+` FROM products
	                                        WHERE sku=$1 ORDER BY created_at LIMIT 1`, sku))
}

func (r *Repo) GetProduct(ctx context.Context, id uuid.UUID) (*Product, error) {
	return scanProduct(r.DB.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id=$1`, id))
}

func (r *Repo) CreateProduct(ctx context.Context, p *Product) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return r.DB.QueryRow(ctx, `
		INSERT INTO products(id, name, sku, list_price, remote_product_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`, p.ID, p.Name, p.SKU, p.ListPrice, p.RemoteProductID).Scan(&p.CreatedAt)
}

// CreateSalesOrder inserts order + lines in one transaction. The partial
// unique index on external_ref backs up the caller's pre-check.
func (r *Repo) CreateSalesOrder(ctx context.Context, o *SalesOrder) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.State == "" {
		o.State = StateDraft
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO sales_orders(id, customer_id, external_ref, origin, order_date, state, imported, synced)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		o.ID, o.CustomerID, o.ExternalRef, o.Origin, o.OrderDate, string(o.State), o.Imported, o.Synced,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("sales order %s: %w", o.ExternalRef, ErrAlreadyExists)
		}
		return err
	}

	for i := range o.Lines {
		l := &o.Lines[i]
		if l.ID == uuid.Nil {
			l.ID = uuid.New()
		}
		l.OrderID = o.ID
		if _, err = tx.Exec(ctx, `
			INSERT INTO order_lines(id, order_id, product_id, name, quantity, price_unit, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			l.ID, l.OrderID, l.ProductID, l.Name, l.Quantity, l.PriceUnit, i,
		); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *Repo) SalesOrderExists(ctx context.Context, externalRef string) (bool, error) {
	var ok bool
	err := r.DB.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM sales_orders WHERE external_ref=$1)`, externalRef).Scan(&ok)
	return ok, err
}

const orderCols = `id, customer_id, external_ref, origin, order_date, state, imported, synced, created_at, updated_at`

func scanOrder(row pgx.Row) (*SalesOrder, error) {
	var o SalesOrder
	var state string
	if err := row.Scan(&o.ID, &o.CustomerID, &o.ExternalRef, &o.Origin, &o.OrderDate, &state,
		&o.Imported, &o.Synced, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	o.State = OrderState(state)
	return &o, nil
}

// orderLinesSQL returns lines in the order they were written, which is the
// order the exporter posts them.
const orderLinesSQL = `SELECT id, order_id, product_id, name, quantity, price_unit
	FROM order_lines WHERE order_id=$1 ORDER BY position, id`

func (r *Repo) loadLines(ctx context.Context, o *SalesOrder) error {
	rows, err := r.DB.Query(ctx, orderLinesSQL, o.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	o.Lines = o.Lines[:0]
	for rows.Next() {
		var l OrderLine
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.Name, &l.Quantity, &l.PriceUnit); err != nil {
			return err
		}
		o.Lines = append(o.Lines, l)
	}
	return rows.Err()
}

func (r *Repo) GetSalesOrder(ctx context.Context, id uuid.UUID) (*SalesOrder, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderCols+` FROM sales_orders WHERE id=$1`, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadLines(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// SetOrderState locks the row so the transition check and the update see the same state.
func (r *Repo) SetOrderState(ctx context.Context, id uuid.UUID, to OrderState) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var from string
	if err := tx.QueryRow(ctx, `SELECT state FROM sales_orders WHERE id=$1 FOR UPDATE`, id).Scan(&from); err != nil {
		return notFound(err)
	}
	if !CanTransition(OrderState(from), to) {
		return fmt.Errorf("%s -> %s: %w", from, to, ErrInvalidTransition)
	}
	if _, err := tx.Exec(ctx, `UPDATE sales_orders SET state=$2, updated_at=now() WHERE id=$1`, id, string(to)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repo) ListExportable(ctx context.Context) ([]SalesOrder, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+orderCols+` FROM sales_orders
	                               WHERE imported = false AND synced = false AND state = $1
	                               ORDER BY order_date`, string(StateConfirmed))
	if err != nil {
		return nil, err
	}
	var out []SalesOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, *o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		if err := r.loadLines(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *Repo) MarkOrderSynced(ctx context.Context, id uuid.UUID) error {
	ct, err := r.DB.Exec(ctx, `UPDATE sales_orders SET synced = true, updated_at = now() WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) UpdateProfileSync(ctx context.Context, id uuid.UUID, status string, lastSyncAt *time.Time) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE sync_profiles
		SET last_sync_status = $2, last_sync_at = COALESCE($3, last_sync_at), updated_at = now()
		WHERE id = $1`, id, status, lastSyncAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}
