package logging

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// plainValue renders v without quoting; used for the component prefix.
func plainValue(v slog.Value) string {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	default:
		return v.String()
	}
}

// consoleValue renders v for key=value output. Strings, errors and other
// free-form values are quoted when they are empty or contain spaces, control
// characters, '=' or '"'.
func consoleValue(v slog.Value) string {
	v = v.Resolve()
	out := plainValue(v)
	switch v.Kind() {
	case slog.KindString, slog.KindAny:
		if out == "" || strings.IndexFunc(out, breaksPair) >= 0 {
			return strconv.Quote(out)
		}
	}
	return out
}

func breaksPair(r rune) bool {
	return r <= ' ' || r == '=' || r == '"'
}
