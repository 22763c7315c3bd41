package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"sort"
)

type field struct {
	key   string
	value any
}

// member locates one top-level key/value pair inside a record.
type member struct {
	key        string
	keyStart   int
	keyEnd     int
	valueStart int
	valueEnd   int
}

type edit struct {
	start, end int
	text       []byte
}

// patchRecord sets fields on a JSON object without re-encoding the rest of
// it. Existing values are replaced in place; missing keys are appended after
// the last member with the spacing the record already uses.
func patchRecord(raw json.RawMessage, fields []field) (json.RawMessage, error) {
	members, err := scanObject(raw)
	if err != nil {
		return nil, err
	}

	var (
		edits    []edit
		appended bytes.Buffer
	)
	for _, f := range fields {
		value, err := encodeValue(f.value)
		if err != nil {
			return nil, err
		}
		if m, ok := findMember(members, f.key); ok {
			edits = append(edits, edit{start: m.valueStart, end: m.valueEnd, text: value})
			continue
		}
		key, err := encodeValue(f.key)
		if err != nil {
			return nil, err
		}
		appended.Write(memberLead(raw, members, appended.Len() > 0))
		appended.Write(key)
		appended.Write(colon(raw, members))
		appended.Write(value)
	}

	if appended.Len() > 0 {
		at := bytes.IndexByte(raw, '{') + 1
		if len(members) > 0 {
			at = members[len(members)-1].valueEnd
		}
		edits = append(edits, edit{start: at, end: at, text: appended.Bytes()})
	}

	sort.SliceStable(edits, func(i, j int) bool { return edits[i].start > edits[j].start })
	out := append([]byte(nil), raw...)
	for _, e := range edits {
		tail := append([]byte(nil), out[e.end:]...)
		out = append(append(out[:e.start], e.text...), tail...)
	}
	return out, nil
}

func scanObject(raw []byte) ([]member, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("record is not a JSON object")
	}

	var members []member
	prevEnd := int(dec.InputOffset())
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := tok.(string)
		keyEnd := int(dec.InputOffset())

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		valueEnd := int(dec.InputOffset())

		members = append(members, member{
			key:        key,
			keyStart:   bytes.IndexByte(raw[prevEnd:keyEnd], '"') + prevEnd,
			keyEnd:     keyEnd,
			valueStart: valueEnd - len(value),
			valueEnd:   valueEnd,
		})
		prevEnd = valueEnd
	}
	return members, nil
}

func findMember(members []member, key string) (member, bool) {
	for _, m := range members {
		if m.key == key {
			return m, true
		}
	}
	return member{}, false
}

// memberLead is what goes in front of an appended key: the comma and the
// whitespace that precede the record's last key.
func memberLead(raw []byte, members []member, following bool) []byte {
	n := len(members)
	switch {
	case n >= 2:
		return raw[members[n-2].valueEnd:members[n-1].keyStart]
	case n == 1:
		open := bytes.IndexByte(raw, '{') + 1
		return append([]byte{','}, raw[open:members[0].keyStart]...)
	case following:
		return []byte(",")
	}
	return nil
}

func colon(raw []byte, members []member) []byte {
	if len(members) == 0 {
		return []byte(":")
	}
	m := members[len(members)-1]
	return raw[m.keyEnd:m.valueStart]
}

// encodeValue marshals v the way the producer writes it: no HTML escaping.
func encodeValue(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
