package calibration

import (
	"fmt"
	"math"

	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/domain"
)

// DefaultBucketCount gives ten buckets of width 0.10.
const DefaultBucketCount = 10

// Partition splits [0,1] into equal-width buckets. Bucket i covers
// [i/n, (i+1)/n); the last bucket also contains 1.0.
type Partition struct {
	count int
}

// NewPartition builds a partition of count equal-width buckets.
func NewPartition(count int) (Partition, error) {
	if count < 1 {
		return Partition{}, fmt.Errorf("calibration: bucket count must be positive, got %d", count)
	}
	return Partition{count: count}, nil
}

// DefaultPartition returns the ten-bucket partition.
func DefaultPartition() Partition {
	return Partition{count: DefaultBucketCount}
}

// Count returns the number of buckets.
func (p Partition) Count() int { return p.count }

// Width returns the width of each bucket.
func (p Partition) Width() float64 { return 1 / float64(p.count) }

// Equal reports whether both partitions have identical boundaries.
func (p Partition) Equal(o Partition) bool { return p.count == o.count }

// Bucket returns the i-th bucket. i must be in [0, Count()).
func (p Partition) Bucket(i int) domain.Bucket {
	return domain.Bucket{Index: i, Lower: p.lower(i), Upper: p.lower(i + 1)}
}

// Buckets lists every bucket in ascending order.
func (p Partition) Buckets() []domain.Bucket {
	out := make([]domain.Bucket, p.count)
	for i := range out {
		out[i] = p.Bucket(i)
	}
	return out
}

// BucketOf maps a price to its bucket. It is total over [0,1] and fails
// with domain.ErrInvalidPrice for anything else, NaN included.
func (p Partition) BucketOf(price float64) (domain.Bucket, error) {
	if p.count < 1 {
		return domain.Bucket{}, fmt.Errorf("calibration: bucket of %v: empty partition", price)
	}
	if !domain.ValidPrice(price) {
		return domain.Bucket{}, fmt.Errorf("%w: %v", domain.ErrInvalidPrice, price)
	}

	idx := int(math.Floor(price * float64(p.count)))
	// price*count can land one ulp off a boundary; snap to the bounds the
	// buckets actually advertise.
	if idx > 0 && price < p.lower(idx) {
		idx--
	}
	if idx < p.count && price >= p.lower(idx+1) {
		idx++
	}
	if idx >= p.count {
		idx = p.count - 1
	}
	return p.Bucket(idx), nil
}

func (p Partition) lower(i int) float64 {
	return float64(i) / float64(p.count)
}
