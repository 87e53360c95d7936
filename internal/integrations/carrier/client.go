package carrier

import (
	"context"

	"github.com/BearBump/TrackBot/internal/models"
)

// Provider fetches and normalizes shipment data from one upstream shape.
// Fetch and ParseWebhook never fail past this boundary: a false result means
// the status is absent (network error, rate limit, not found, empty answer).
type Provider interface {
	Name() string
	Fetch(ctx context.Context, trackingID string) (models.ShipmentStatus, bool)
	ParseWebhook(payload []byte) (models.ShipmentStatus, bool)
}

// Registrar is implemented by providers that need an upstream tracking slot
// before a query succeeds.
type Registrar interface {
	Register(ctx context.Context, trackingID string) (created bool, err error)
	Deregister(ctx context.Context, trackingID string) error
}
