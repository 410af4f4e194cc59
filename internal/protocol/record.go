package protocol

import (
	"bytes"
	"strings"
)

// Field is one key/value pair of a Record.
type Field struct {
	Key   string
	Value string
}

// Record is an ordered flat key/value set: one scraped config page, one dump
// line or one outbound query. Order is kept because the controller replays
// config writes field by field.
type Record []Field

// Params builds a Record from alternating keys and values.
func Params(kv ...string) Record {
	r := make(Record, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		r = append(r, Field{Key: kv[i], Value: kv[i+1]})
	}
	return r
}

// ParseRecord decodes a dump line (raw cp1251 bytes, percent-escaped values).
// Later duplicates win on lookup.
func ParseRecord(line []byte) Record {
	line = bytes.TrimRight(line, "\r\n")
	var r Record
	for _, part := range bytes.Split(line, []byte("&")) {
		if len(part) == 0 {
			continue
		}
		k, v, _ := bytes.Cut(part, []byte("="))
		r = append(r, Field{Key: unescape(k), Value: unescape(v)})
	}
	return r
}

// Get returns the last value stored under key.
func (r Record) Get(key string) (string, bool) {
	for i := len(r) - 1; i >= 0; i-- {
		if r[i].Key == key {
			return r[i].Value, true
		}
	}
	return "", false
}

// Value returns the value under key or "".
func (r Record) Value(key string) string {
	v, _ := r.Get(key)
	return v
}

func (r Record) Has(key string) bool {
	_, ok := r.Get(key)
	return ok
}

// Set replaces the value under key in place or appends it.
func (r Record) Set(key, value string) Record {
	for i := len(r) - 1; i >= 0; i-- {
		if r[i].Key == key {
			r[i].Value = value
			return r
		}
	}
	return append(r, Field{Key: key, Value: value})
}

// Map flattens the record; later duplicates win.
func (r Record) Map() map[string]string {
	m := make(map[string]string, len(r))
	for _, f := range r {
		m[f.Key] = f.Value
	}
	return m
}

// Encode joins the record as k=v&k=v without escaping, the dump line form.
func (r Record) Encode() string {
	var b strings.Builder
	for i, f := range r {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(f.Key)
		b.WriteByte('=')
		b.WriteString(f.Value)
	}
	return b.String()
}

// Query renders the record as a URL query. Separators the controller parses
// literally (':' ';' '/' ',') are left as is.
func (r Record) Query() string {
	var b strings.Builder
	for i, f := range r {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(escapeQuery(f.Key))
		b.WriteByte('=')
		b.WriteString(escapeQuery(f.Value))
	}
	return b.String()
}

func escapeQuery(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9',
			strings.IndexByte("-_.~:;/,", c) >= 0:
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteByte(hex[c>>4])
			b.WriteByte(hex[c&15])
		}
	}
	return b.String()
}

// EscapeRawQuery escapes the bytes of a raw dump line that may not appear in a
// URL, keeping existing %XX sequences and separators intact.
func EscapeRawQuery(line []byte) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for _, c := range line {
		if c <= ' ' || c >= 0x7f || c == '#' {
			b.WriteByte('%')
			b.WriteByte(hex[c>>4])
			b.WriteByte(hex[c&15])
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}
