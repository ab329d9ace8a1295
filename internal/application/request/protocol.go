package request

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/hr-requests/internal/application/port"
)

// protocolLayout is the date prefix of a protocol
const protocolLayout = "20060102"

// ProtocolGenerator derives the next daily protocol, YYYYMMDD-NNNN, from the
// number of requests already created on the same calendar day.
//
// The count is read inside the creating transaction, but two concurrent
// creations can still read the same count. The unique index on protocol
// turns that race into ErrDuplicateProtocol, which the engine retries.
type ProtocolGenerator struct {
	requests port.RequestRepository
	location *time.Location
}

// NewProtocolGenerator creates a generator that counts days in loc
func NewProtocolGenerator(requests port.RequestRepository, loc *time.Location) *ProtocolGenerator {
	if loc == nil {
		loc = time.UTC
	}
	return &ProtocolGenerator{requests: requests, location: loc}
}

// Generate returns the protocol of a request created at now
func (g *ProtocolGenerator) Generate(ctx context.Context, now time.Time) (string, error) {
	start, end := g.DayBounds(now)

	count, err := g.requests.CountCreatedBetween(ctx, start, end)
	if err != nil {
		return "", fmt.Errorf("failed to count requests of the day: %w", err)
	}

	return fmt.Sprintf("%s-%04d", now.In(g.location).Format(protocolLayout), count+1), nil
}

// DayBounds returns [startOfDay, endOfDay) of now's calendar day in UTC
func (g *ProtocolGenerator) DayBounds(now time.Time) (time.Time, time.Time) {
	local := now.In(g.location)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, g.location)
	end := start.AddDate(0, 0, 1)
	return start.UTC(), end.UTC()
}
