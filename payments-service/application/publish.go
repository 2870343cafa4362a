package application

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/neocommercepay/commerce-system/payments-service/domain"
	"github.com/neocommercepay/commerce-system/shared/correlation"
	"github.com/neocommercepay/commerce-system/shared/events"
)

// announce publishes the event for the payment's status. It runs after the
// unit of work committed.
func announce(ctx context.Context, publisher events.Publisher, p domain.Payment, reason string, now time.Time) error {
	ctx, correlationID := correlation.Ensure(ctx)
	event := paymentEvent(p, reason, correlationID, now)
	if err := publisher.Publish(ctx, event); err != nil {
		return errors.Wrapf(err, "payment %s saved but %s was not published", p.ID, event.Topic)
	}
	return nil
}
