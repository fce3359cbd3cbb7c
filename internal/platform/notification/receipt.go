package notification

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// ReceiptNotifier sends payment receipts through the notification manager
// using the payment-receipt template. It satisfies the visit handler's
// notifier interface.
type ReceiptNotifier struct {
	manager *Manager
}

// NewReceiptNotifier creates a ReceiptNotifier backed by the given manager.
func NewReceiptNotifier(mgr *Manager) *ReceiptNotifier {
	return &ReceiptNotifier{manager: mgr}
}

// PaymentReceived sends a payment receipt email to the recipient.
func (r *ReceiptNotifier) PaymentReceived(ctx context.Context, recipient, visitNumber string, amount decimal.Decimal) error {
	_, err := r.manager.SendFromTemplate(ctx, "payment-receipt", map[string]string{
		"visit_number": visitNumber,
		"amount":       amount.StringFixed(2),
	}, recipient)
	if err != nil {
		return fmt.Errorf("send payment receipt: %w", err)
	}
	return nil
}
