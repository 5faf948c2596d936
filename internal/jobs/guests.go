package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/lalith-99/convo/internal/models"
	"github.com/lalith-99/convo/internal/observ"
)

const ActiveGuestsJob = "active-guests"

// ActiveGuestCounter is the slice of the guest repository the gauge needs.
type ActiveGuestCounter interface {
	CountActiveSince(ctx context.Context, since time.Time) (int64, error)
}

// ActiveGuests returns a job that sets the active guest gauge to the
// number of guests seen within models.GuestActiveWindow. A nil clock means
// time.Now.
func ActiveGuests(guests ActiveGuestCounter, now func() time.Time) Job {
	if now == nil {
		now = time.Now
	}
	return func(ctx context.Context) error {
		n, err := guests.CountActiveSince(ctx, now().Add(-models.GuestActiveWindow))
		if err != nil {
			return fmt.Errorf("count active guests: %w", err)
		}
		observ.GuestSessionsActive.Set(float64(n))
		return nil
	}
}
