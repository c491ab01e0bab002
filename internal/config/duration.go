package config

import (
	"encoding/json"
	"time"

	"github.com/yanun0323/errors"
)

// Duration reads "1.5s" style strings or integer nanoseconds from JSON.
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return errors.Wrap(err, "unmarshal duration")
	}
	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return errors.Wrapf(err, "parse duration %q", value)
		}
		*d = Duration(parsed)
	case nil:
		*d = 0
	default:
		return errors.Errorf("invalid duration: %s", data)
	}
	return nil
}
