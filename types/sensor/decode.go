package sensor

import (
	"fmt"
	"time"

	"github.com/tidwall/gjson"
)

// Decode parses one NDJSON sensor record. Field spellings vary across
// logger apps, so this is deliberately tolerant: it accepts "type" or
// "kind", values as an array or as x/y/z members, and time as RFC3339 or
// unix seconds/millis.
func Decode(line []byte) (Reading, error) {
	r := Reading{}
	if !gjson.ValidBytes(line) {
		return r, fmt.Errorf("%w: not json", ErrInvalidReading)
	}
	root := gjson.ParseBytes(line)

	kindStr := root.Get("type").String()
	if kindStr == "" {
		kindStr = root.Get("kind").String()
	}
	r.Kind = KindFromString(kindStr)

	r.Time = decodeTime(root)

	if vals := root.Get("values"); vals.IsArray() {
		for i, v := range vals.Array() {
			if i > 2 {
				break
			}
			r.Values[i] = v.Float()
		}
	} else {
		r.Values[0] = root.Get("x").Float()
		r.Values[1] = root.Get("y").Float()
		r.Values[2] = root.Get("z").Float()
	}

	switch r.Kind {
	case KindGPS:
		r.Lat = firstFloat(root, "lat", "latitude")
		r.Lon = firstFloat(root, "lon", "lng", "longitude")
		r.Alt = firstFloat(root, "alt", "elevation", "altitude")
		r.Speed = root.Get("speed").Float()
		r.Heading = firstFloat(root, "heading", "course", "bearing")
		r.Accuracy = firstFloat(root, "accuracy", "hdop")
	case KindMotion:
		r.Stationary = root.Get("stationary").Bool()
	default:
		r.Accuracy = root.Get("accuracy").Float()
	}

	return r, r.Validate()
}

func decodeTime(root gjson.Result) time.Time {
	if t := root.Get("time"); t.Exists() {
		if t.Type == gjson.String {
			if parsed, err := time.Parse(time.RFC3339Nano, t.String()); err == nil {
				return parsed
			}
		}
	}
	if ut := root.Get("unix_ms"); ut.Exists() {
		return time.UnixMilli(ut.Int())
	}
	if ut := root.Get("unix"); ut.Exists() {
		return time.Unix(ut.Int(), 0)
	}
	return time.Time{}
}

func firstFloat(root gjson.Result, keys ...string) float64 {
	for _, k := range keys {
		if v := root.Get(k); v.Exists() {
			return v.Float()
		}
	}
	return 0
}
