package analysis

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
)

var errNotObject = errors.New("word is not a JSON object")

// UnmarshalJSON decodes a word leniently: fields holding the wrong JSON type
// are treated as absent instead of failing the whole word. Only a value that
// is not an object is an error.
func (w *Word) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return errNotObject
	}

	*w = Word{}
	if raw, ok := fields["text"]; ok {
		var s string
		if json.Unmarshal(raw, &s) == nil {
			w.Text = &s
		}
	}
	w.Start = millis(fields["start"])
	w.End = millis(fields["end"])
	if raw, ok := fields["confidence"]; ok {
		var f float64
		if json.Unmarshal(raw, &f) == nil {
			w.Confidence = &f
		}
	}
	return nil
}

// maxMillis bounds timestamps to the range a float64 holds exactly.
const maxMillis = 1 << 53

// millis decodes a millisecond timestamp, rounding fractions. Values that are
// not finite or lie outside ±maxMillis are treated as absent.
func millis(raw json.RawMessage) *int64 {
	if raw == nil {
		return nil
	}
	var f float64
	if json.Unmarshal(raw, &f) != nil || math.IsNaN(f) || math.Abs(f) > maxMillis {
		return nil
	}
	ms := int64(math.Round(f))
	return &ms
}

// DecodeWords parses a JSON word array as delivered by a recognizer. ok is
// false when data is not an array at all. Elements that are null or not
// objects come back as nil entries so positions are preserved.
func DecodeWords(data []byte) (words []*Word, ok bool) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '[' {
		return nil, false
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return nil, false
	}

	words = make([]*Word, len(elems))
	for i, raw := range elems {
		var w Word
		if err := json.Unmarshal(raw, &w); err != nil {
			continue
		}
		words[i] = &w
	}
	return words, true
}
