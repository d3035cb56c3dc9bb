package orders

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/multivendhq/multivend-backend/pkg/enums"
)

func TestResolveMasterStatusRules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		statuses []enums.VendorOrderStatus
		fallback enums.MasterOrderStatus
		want     enums.MasterOrderStatus
	}{
		{
			name:     "all cancelled",
			statuses: []enums.VendorOrderStatus{enums.VendorOrderStatusCancelled, enums.VendorOrderStatusCancelled},
			fallback: enums.MasterOrderStatusConfirmed,
			want:     enums.MasterOrderStatusCancelled,
		},
		{
			name:     "all delivered",
			statuses: []enums.VendorOrderStatus{enums.VendorOrderStatusDelivered, enums.VendorOrderStatusDelivered},
			fallback: enums.MasterOrderStatusPartiallyShipped,
			want:     enums.MasterOrderStatusDelivered,
		},
		{
			name:     "any shipped wins over mixed",
			statuses: []enums.VendorOrderStatus{enums.VendorOrderStatusShipped, enums.VendorOrderStatusConfirmed},
			fallback: enums.MasterOrderStatusConfirmed,
			want:     enums.MasterOrderStatusPartiallyShipped,
		},
		{
			name:     "all confirmed",
			statuses: []enums.VendorOrderStatus{enums.VendorOrderStatusConfirmed, enums.VendorOrderStatusConfirmed},
			fallback: enums.MasterOrderStatusProcessing,
			want:     enums.MasterOrderStatusConfirmed,
		},
		{
			name:     "any processing",
			statuses: []enums.VendorOrderStatus{enums.VendorOrderStatusProcessing, enums.VendorOrderStatusConfirmed},
			fallback: enums.MasterOrderStatusConfirmed,
			want:     enums.MasterOrderStatusProcessing,
		},
		{
			name:     "cancelled does not mask delivered check",
			statuses: []enums.VendorOrderStatus{enums.VendorOrderStatusDelivered, enums.VendorOrderStatusCancelled},
			fallback: enums.MasterOrderStatusPartiallyShipped,
			want:     enums.MasterOrderStatusPartiallyShipped,
		},
		{
			name:     "mixed packed and delivered falls back",
			statuses: []enums.VendorOrderStatus{enums.VendorOrderStatusPacked, enums.VendorOrderStatusDelivered},
			fallback: enums.MasterOrderStatusProcessing,
			want:     enums.MasterOrderStatusProcessing,
		},
		{
			name:     "empty input falls back",
			statuses: nil,
			fallback: enums.MasterOrderStatusConfirmed,
			want:     enums.MasterOrderStatusConfirmed,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ResolveMasterStatus(tt.statuses, tt.fallback))
		})
	}
}

func TestResolveMasterStatusIsTotal(t *testing.T) {
	t.Parallel()

	all := []enums.VendorOrderStatus{
		enums.VendorOrderStatusConfirmed,
		enums.VendorOrderStatusProcessing,
		enums.VendorOrderStatusPacked,
		enums.VendorOrderStatusShipped,
		enums.VendorOrderStatusOutForDelivery,
		enums.VendorOrderStatusDelivered,
		enums.VendorOrderStatusCancelled,
	}

	// Every pair of statuses must yield exactly one valid result.
	for _, a := range all {
		for _, b := range all {
			got := ResolveMasterStatus([]enums.VendorOrderStatus{a, b}, enums.MasterOrderStatusConfirmed)
			assert.True(t, got.IsValid(), "resolve(%s, %s) yielded invalid status %q", a, b, got)
		}
	}
}

func TestResolveMasterStatusPermutationInvariant(t *testing.T) {
	t.Parallel()

	statuses := []enums.VendorOrderStatus{
		enums.VendorOrderStatusShipped,
		enums.VendorOrderStatusDelivered,
		enums.VendorOrderStatusProcessing,
		enums.VendorOrderStatusCancelled,
		enums.VendorOrderStatusConfirmed,
	}
	want := ResolveMasterStatus(statuses, enums.MasterOrderStatusConfirmed)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		shuffled := append([]enums.VendorOrderStatus(nil), statuses...)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		assert.Equal(t, want, ResolveMasterStatus(shuffled, enums.MasterOrderStatusConfirmed))
	}
}

func TestTransitionTable(t *testing.T) {
	t.Parallel()

	all := []enums.VendorOrderStatus{
		enums.VendorOrderStatusConfirmed,
		enums.VendorOrderStatusProcessing,
		enums.VendorOrderStatusPacked,
		enums.VendorOrderStatusShipped,
		enums.VendorOrderStatusOutForDelivery,
		enums.VendorOrderStatusDelivered,
		enums.VendorOrderStatusCancelled,
	}
	allowed := map[[2]enums.VendorOrderStatus]bool{
		{enums.VendorOrderStatusConfirmed, enums.VendorOrderStatusProcessing}:     true,
		{enums.VendorOrderStatusProcessing, enums.VendorOrderStatusPacked}:        true,
		{enums.VendorOrderStatusPacked, enums.VendorOrderStatusShipped}:           true,
		{enums.VendorOrderStatusShipped, enums.VendorOrderStatusOutForDelivery}:   true,
		{enums.VendorOrderStatusShipped, enums.VendorOrderStatusDelivered}:        true,
		{enums.VendorOrderStatusOutForDelivery, enums.VendorOrderStatusDelivered}: true,
	}

	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]enums.VendorOrderStatus{from, to}]
			assert.Equal(t, want, transitionAllowed(from, to), "%s -> %s", from, to)
		}
	}
}
