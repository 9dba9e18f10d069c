package telemetry

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	otellog "go.opentelemetry.io/otel/log"

	"github.com/szibis/lf-telemetry/internal/logging"
)

// NewLogHook returns a hook that forwards log records to the OTLP logger,
// or nil when export is disabled.
func (t *Telemetry) NewLogHook() logging.LogHook {
	if !t.Enabled() {
		return nil
	}
	logger := t.logger
	return func(level logging.Level, msg string, attrs map[string]interface{}) {
		var rec otellog.Record
		rec.SetTimestamp(time.Now())
		rec.SetBody(otellog.StringValue(msg))
		rec.SetSeverity(severity(level))
		rec.SetSeverityText(string(level))
		if len(attrs) > 0 {
			keys := make([]string, 0, len(attrs))
			for k := range attrs {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			kvs := make([]otellog.KeyValue, 0, len(keys))
			for _, k := range keys {
				kvs = append(kvs, otellog.KeyValue{Key: k, Value: value(attrs[k])})
			}
			rec.AddAttributes(kvs...)
		}
		logger.Emit(context.Background(), rec)
	}
}

func severity(level logging.Level) otellog.Severity {
	switch level {
	case logging.LevelDebug:
		return otellog.SeverityDebug
	case logging.LevelWarn:
		return otellog.SeverityWarn
	case logging.LevelError:
		return otellog.SeverityError
	case logging.LevelFatal:
		return otellog.SeverityFatal
	default:
		return otellog.SeverityInfo
	}
}

// value converts a log attribute. Counters above MaxInt64 are sent as
// strings.
func value(v interface{}) otellog.Value {
	switch val := v.(type) {
	case nil:
		return otellog.StringValue("<nil>")
	case string:
		return otellog.StringValue(val)
	case bool:
		return otellog.BoolValue(val)
	case int:
		return otellog.IntValue(val)
	case int64:
		return otellog.Int64Value(val)
	case uint64:
		if val > math.MaxInt64 {
			return otellog.StringValue(fmt.Sprint(val))
		}
		return otellog.Int64Value(int64(val))
	case float64:
		return otellog.Float64Value(val)
	case time.Duration:
		return otellog.StringValue(val.String())
	case error:
		return otellog.StringValue(val.Error())
	default:
		return otellog.StringValue(fmt.Sprint(val))
	}
}
