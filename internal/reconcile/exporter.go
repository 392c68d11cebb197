package reconcile

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ariefcatur/woo-erp-sync/internal/erp"
	"github.com/ariefcatur/woo-erp-sync/internal/woo"
	"go.uber.org/zap"
)

// ExportOrders posts confirmed ERP orders that did not come from the
// storefront and were not posted yet. Each posted order is marked synced.
// A failing order is recorded and the loop moves on.
func (s *Service) ExportOrders(ctx context.Context, p *erp.Profile) *Result {
	res := newResult(FlowExport, p.ID, s.now)
	cred := credentials(p)

	orders, err := s.Store.ListExportable(ctx)
	if err != nil {
		return res.fail(fmt.Sprintf("WooCommerce Sync Error: %v", err))
	}
	if len(orders) == 0 {
		return res.finish("No new ERP-originated orders to sync.")
	}
	res.Fetched = len(orders)

	for i := range orders {
		o := &orders[i]
		id := o.ID.String()

		in, err := s.orderPayload(ctx, o)
		if err != nil {
			res.addFailure(id, err.Error())
			continue
		}

		remoteID, err := s.Woo.CreateOrder(ctx, cred, in)
		if err != nil {
			s.log().Warn("WooCommerce POST failed", zap.String("order_id", id), zap.Error(err))
			res.addFailure(id, err.Error())
			continue
		}
		s.log().Info("WooCommerce order posted", zap.String("order_id", id), zap.String("remote_id", remoteID))

		if err := s.Store.MarkOrderSynced(ctx, o.ID); err != nil {
			res.addFailure(id, fmt.Sprintf("posted as %s but not marked synced: %v", remoteID, err))
			continue
		}
		res.Created++
	}
	return res.finish(fmt.Sprintf("WooCommerce Sync Complete: %d ERP orders posted to Woo.", res.Created))
}

func (s *Service) orderPayload(ctx context.Context, o *erp.SalesOrder) (woo.OrderInput, error) {
	cust, err := s.Store.GetCustomer(ctx, o.CustomerID)
	if err != nil {
		return woo.OrderInput{}, fmt.Errorf("customer %s: %w", o.CustomerID, err)
	}

	items := make([]woo.LineItemInput, 0, len(o.Lines))
	for _, l := range o.Lines {
		prod, err := s.Store.GetProduct(ctx, l.ProductID)
		if err != nil {
			return woo.OrderInput{}, fmt.Errorf("product %s: %w", l.ProductID, err)
		}
		remoteID, err := strconv.ParseInt(prod.RemoteProductID, 10, 64)
		if err != nil || remoteID <= 0 {
			return woo.OrderInput{}, fmt.Errorf("product %q has no storefront id", prod.Name)
		}
		items = append(items, woo.LineItemInput{
			ProductID: remoteID,
			Quantity:  int(l.Quantity.IntPart()),
		})
	}

	return woo.OrderInput{
		PaymentMethod:      "bacs",
		PaymentMethodTitle: "Direct Bank Transfer",
		SetPaid:            true,
		Billing: woo.BillingInput{
			FirstName: cust.Name,
			Email:     cust.Email,
			Phone:     cust.Phone,
		},
		LineItems: items,
	}, nil
}
