package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"checkout/pkg/checkout/domain/model"
)

var ErrNoRecipient = errors.New("user has no email address")

type Sender interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// ConfirmationNotifier renders order confirmations and hands them to a Sender.
type ConfirmationNotifier struct {
	sender Sender
}

func NewConfirmationNotifier(sender Sender) *ConfirmationNotifier {
	return &ConfirmationNotifier{sender: sender}
}

func (n *ConfirmationNotifier) SendOrderConfirmation(ctx context.Context, order *model.Order, user *model.User) error {
	if user == nil || strings.TrimSpace(user.Email) == "" {
		return ErrNoRecipient
	}
	subject := fmt.Sprintf("Your order %s has been confirmed!", order.OrderNumber)
	return n.sender.Send(ctx, user.Email, subject, renderConfirmation(order, user))
}

func renderConfirmation(order *model.Order, user *model.User) string {
	var b strings.Builder
	name := user.FirstName
	if name == "" {
		name = user.Email
	}
	fmt.Fprintf(&b, "Hi %s,\n\nWe have received your order %s and will process it shortly.\n\n", name, order.OrderNumber)
	for _, item := range order.Items {
		fmt.Fprintf(&b, "  %d x %s @ %s = %s\n",
			item.Quantity, item.ProductID, item.UnitPrice.StringFixed(2), item.Subtotal.StringFixed(2))
	}
	fmt.Fprintf(&b, "\nSubtotal: %s\nTax: %s\nShipping: %s\nTotal: %s\n",
		order.Subtotal.StringFixed(2), order.Tax.StringFixed(2),
		order.ShippingCost.StringFixed(2), order.Total.StringFixed(2))
	return b.String()
}

// LogSender writes messages to the log instead of delivering them.
type LogSender struct{}

func (LogSender) Send(_ context.Context, recipient, subject, body string) error {
	log.WithFields(log.Fields{
		"recipient": recipient,
		"subject":   subject,
		"bytes":     len(body),
	}).Info("email sent")
	return nil
}
