package source

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/thingswise/etcdstat/internal/clock"
)

// Text provides helpers for name and value templates. It is registered
// last so that metric keys always win over helper names. String filters
// such as upper, title and round are built into the template engine.
type Text struct{}

func NewText() *Text {
	return &Text{}
}

func (*Text) Name() string { return "text" }

func (*Text) Funcs(context.Context) Funcs {
	return Funcs{
		"now":       func() string { return clock.Now().UTC().Format(time.RFC3339) },
		"timestamp": func() int64 { return clock.Now().Unix() },
		"percent":   percent,
		"uuid":      func() string { return uuid.NewString() },
	}
}

// percent turns a 0..1 fraction into a whole-number percentage.
func percent(v any) (string, error) {
	f, err := toFloat64(v)
	if err != nil {
		return "", err
	}
	return strconv.FormatFloat(math.Round(f*100), 'f', 0, 64), nil
}
func toFloat64(value any) (float64, error) {
	switch current := value.(type) {
	case int:
		return float64(current), nil
	case int32:
		return float64(current), nil
	case int64:
		return float64(current), nil
	case uint32:
		return float64(current), nil
	case uint64:
		return float64(current), nil
	case float32:
		return float64(current), nil
	case float64:
		return current, nil
	case json.Number:
		return current.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(current), 64)
	default:
		return 0, fmt.Errorf("value %T is not a number", value)
	}
}
