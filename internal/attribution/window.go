package attribution

import (
	"time"

	"github.com/angelmondragon/refermint-backend/pkg/db/models"
)

// windowDays returns the attribution window for an affiliate's offer, falling
// back when the offer is missing or unset.
func windowDays(offer *models.Offer, fallback int) int {
	if offer != nil && offer.AttributionWindowDays > 0 {
		return offer.AttributionWindowDays
	}
	return fallback
}

// clickInWindow reports whether a click at clickAt may attribute an order at
// orderAt under a window of days. The boundary is inclusive: a click exactly
// window days before the order still attributes.
func clickInWindow(clickAt, orderAt time.Time, days int) bool {
	if clickAt.After(orderAt) {
		return false
	}
	earliest := orderAt.Add(-time.Duration(days) * 24 * time.Hour)
	return !clickAt.Before(earliest)
}
