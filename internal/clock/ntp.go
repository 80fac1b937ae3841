package clock

import (
	"context"
	"fmt"
	"time"

	"github.com/beevik/ntp"
)

// NTPQuerier queries an NTP server with a bounded timeout.
type NTPQuerier struct {
	Timeout time.Duration
}

func (q NTPQuerier) Query(ctx context.Context, host string) (time.Duration, error) {
	timeout := q.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout || timeout <= 0 {
			timeout = left
		}
	}
	if timeout <= 0 {
		return 0, context.DeadlineExceeded
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	resp, err := ntp.QueryWithOptions(host, ntp.QueryOptions{Timeout: timeout})
	if err != nil {
		return 0, fmt.Errorf("ntp query %s: %w", host, err)
	}
	if err := resp.Validate(); err != nil {
		return 0, fmt.Errorf("ntp response from %s: %w", host, err)
	}
	return resp.ClockOffset, nil
}
