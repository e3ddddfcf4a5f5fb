package vkc

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// QuerySlots is the number of timestamp queries the pipeline uses, start and end.
const QuerySlots = 2

// CreateTimestampQueries creates the query pool for the start and end timestamps.
func CreateTimestampQueries(dc *DeviceContext) (QueryPool, error) {
	if !dc.SupportsTimestamps() {
		return nil, fmt.Errorf("%w: family %d", ErrTimestampsUnsupported, dc.Family.Index)
	}
	pool, err := dc.Device.CreateQueryPool(QuerySlots)
	if err != nil {
		if errors.Is(err, ErrTimestampsUnsupported) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrQueryPoolFailed, err)
	}
	return pool, nil
}

// Timing is a pair of timestamps in device ticks.
type Timing struct {
	Start, End uint64
	// Period is nanoseconds per tick.
	Period float32
}

// Ticks is the number of ticks between the timestamps.
func (t Timing) Ticks() uint64 {
	return t.End - t.Start
}

// Milliseconds is the elapsed device time, period * ticks / 1e6.
func (t Timing) Milliseconds() float64 {
	return float64(t.Period) * float64(t.Ticks()) / 1e6
}

// Elapsed is the elapsed device time.
func (t Timing) Elapsed() time.Duration {
	return time.Duration(float64(t.Period) * float64(t.Ticks()))
}

func (t Timing) String() string {
	return fmt.Sprintf("%.6f ms (%d ticks at %g ns)", t.Milliseconds(), t.Ticks(), t.Period)
}

// ReadTimestamps reads slots 0 and 1 of pool, blocking until both are available. Values are
// masked to the valid bits of the queue family.
func ReadTimestamps(dc *DeviceContext, pool QueryPool) (Timing, error) {
	values, err := pool.Results(0, QuerySlots, true)
	if err != nil {
		if errors.Is(err, ErrQueryResultsUnavailable) {
			return Timing{}, err
		}
		return Timing{}, fmt.Errorf("%w: %v", ErrQueryResultsUnavailable, err)
	}
	if len(values) != QuerySlots {
		return Timing{}, fmt.Errorf("%w: got %d values", ErrQueryResultsUnavailable, len(values))
	}

	mask := timestampMask(dc.Family.TimestampValidBits)
	t := Timing{Start: values[0] & mask, End: values[1] & mask, Period: dc.TimestampPeriod}
	Logger().WithFields(logrus.Fields{"start": t.Start, "end": t.End}).Debug("read timestamps")
	if t.End < t.Start {
		return t, fmt.Errorf("%w: start %d, end %d", ErrTimestampOrder, t.Start, t.End)
	}
	return t, nil
}

func timestampMask(validBits uint32) uint64 {
	if validBits == 0 || validBits >= 64 {
		return ^uint64(0)
	}
	return 1<<validBits - 1
}
