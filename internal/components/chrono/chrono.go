package chrono

import (
	"context"
	"time"
)

// API is the interface that anything depending on the system clock should use,
// this includes waiting.
type API interface {
	Now() time.Time
	Location() *time.Location
	// Sleep blocks for d or until ctx is done, whichever comes first. It
	// returns ctx.Err() when interrupted.
	Sleep(ctx context.Context, d time.Duration) error
}

// StandardImpl is the standard implementation of API using the standard library.
type StandardImpl struct {
	location *time.Location
}

// NewStandardImpl creates a StandardImpl reporting times in `location`, a
// nil location means time.Local.
func NewStandardImpl(location *time.Location) StandardImpl {
	if location == nil {
		location = time.Local
	}
	return StandardImpl{location: location}
}

func (s StandardImpl) Now() time.Time {
	return time.Now().In(s.location)
}

func (s StandardImpl) Location() *time.Location {
	return s.location
}

func (s StandardImpl) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
