package metricskernel

import (
	"context"
	"fmt"
	"time"

	"github.com/shimmerdata/beacon/models"
)

// DatetimeValue is the internal representation of a Datetime metric: an
// instant plus the precision it was recorded at and the local UTC offset in
// effect when it was recorded.
type DatetimeValue struct {
	Timestamp     time.Time
	Unit          models.TimeUnit
	OffsetMinutes int
}

func init() {
	Register(models.KindDatetime, Handler{
		ValidateStored: func(raw any) bool { _, ok := raw.(DatetimeValue); return ok },
		Payload:        datetimePayload,
	})
}

func datetimePayload(internal any) any {
	v, ok := internal.(DatetimeValue)
	if !ok {
		return nil
	}
	return formatDatetime(v)
}

func formatDatetime(v DatetimeValue) string {
	layout := datetimeLayout(v.Unit)
	t := v.Timestamp.Truncate(unitDuration(v.Unit))
	sign := "+"
	off := v.OffsetMinutes
	if off < 0 {
		sign = "-"
		off = -off
	}
	return fmt.Sprintf("%s%s%02d:%02d", t.Format(layout), sign, off/60, off%60)
}

func datetimeLayout(u models.TimeUnit) string {
	switch u {
	case models.Nanosecond, models.Microsecond, models.Millisecond:
		return "2006-01-02T15:04:05.000000000"
	case models.Second:
		return "2006-01-02T15:04:05"
	case models.Minute:
		return "2006-01-02T15:04"
	case models.Hour:
		return "2006-01-02T15"
	case models.Day:
		return "2006-01-02"
	default:
		return time.RFC3339
	}
}

func unitDuration(u models.TimeUnit) time.Duration {
	switch u {
	case models.Nanosecond:
		return time.Nanosecond
	case models.Microsecond:
		return time.Microsecond
	case models.Millisecond:
		return time.Millisecond
	case models.Second:
		return time.Second
	case models.Minute:
		return time.Minute
	case models.Hour:
		return time.Hour
	case models.Day:
		return 24 * time.Hour
	default:
		return time.Second
	}
}

// Datetime is a timestamp measurement recorded at a fixed precision.
type Datetime struct {
	Base
	Unit models.TimeUnit
}

func NewDatetime(meta Metadata, unit models.TimeUnit, r Recorder, errs ErrorSink) Datetime {
	meta.Kind = models.KindDatetime
	return Datetime{Base: Base{Meta: meta, Recorder: r, Errors: errs}, Unit: unit}
}

// Set records t at the metric's configured precision, capturing the UTC
// offset in effect for t's location.
func (d Datetime) Set(ctx context.Context, t time.Time) {
	_, offsetSeconds := t.Zone()
	d.Record(ctx, func(current any) Outcome {
		return Outcome{
			Next:    DatetimeValue{Timestamp: t, Unit: d.Unit, OffsetMinutes: offsetSeconds / 60},
			Persist: true,
		}
	})
}
