package production

import "github.com/vaidashi/bakery-production/internal/models"

// MaxItemsPerMixer is how many orders a mixer holds at once
const MaxItemsPerMixer = 5

// MixerOf returns the mixer an order sits in. The assignment field wins; rows
// without one fall back to the label suffix and then to mixer #1.
func MixerOf(o *models.Order) int {
	if o.AssignedMixer != nil && ValidMixer(*o.AssignedMixer) {
		return *o.AssignedMixer
	}

	if n, ok := models.ParseMixerSuffix(o.BatchLabel); ok && ValidMixer(n) {
		return n
	}

	return 1
}

// Occupancy counts the mixing orders in mixer
func Occupancy(orders map[string]*models.Order, mixer int) int {
	count := 0

	for _, o := range orders {
		if o.Status == models.OrderStatusMixing && MixerOf(o) == mixer {
			count++
		}
	}

	return count
}

// HasCapacity reports whether mixer can take one more order
func HasCapacity(b *Board, mixer, capacity int) bool {
	return Occupancy(b.Orders, mixer) < capacity
}
