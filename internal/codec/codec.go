package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrDecode is returned for frames that are not a JSON array of objects.
var ErrDecode = errors.New("decode frame")

// Record type tags.
const (
	TypeOpen   = "open"
	TypeInit   = "init"
	TypePing   = "ping"
	TypeUpdate = "update"
	TypeQuote  = "quote"
	TypeFinish = "finish"
)

// Record field names.
const (
	FieldType      = "msg"
	FieldSessionID = "sid"
	FieldPingID    = "pid"
	FieldTickers   = "tickers"
	FieldTicker    = "ticker"
	FieldBid       = "bid"
	FieldAsk       = "ask"
	FieldTime      = "utcdt"
)

// Record is one decoded unit of a frame.
type Record map[string]any

// Type returns the record's "msg" tag, or "" when missing.
func (r Record) Type() string {
	s, _ := r.Field(FieldType)
	return s
}

// Has reports whether key is present.
func (r Record) Has(key string) bool {
	_, ok := r[key]
	return ok
}

// Field returns a scalar field as a string. Numbers keep their wire text.
func (r Record) Field(key string) (string, bool) {
	switch v := r[key].(type) {
	case string:
		return v, true
	case json.Number:
		return v.String(), true
	default:
		return "", false
	}
}

// Decode parses one inbound frame into its records, preserving order.
// A bare object is accepted as a single-record frame.
func Decode(data []byte) ([]Record, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrDecode)
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	if trimmed[0] == '{' {
		var r Record
		if err := dec.Decode(&r); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDecode, err)
		}
		if err := expectEOF(dec); err != nil {
			return nil, err
		}
		return []Record{r}, nil
	}

	var records []Record
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if err := expectEOF(dec); err != nil {
		return nil, err
	}
	return records, nil
}

// expectEOF rejects anything after the first JSON value.
func expectEOF(dec *json.Decoder) error {
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("%w: trailing data after frame", ErrDecode)
	}
	return nil
}

// Encode renders one outbound record as a frame.
func Encode(r Record) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return data, nil
}

// EncodeFrame renders records as one inbound-style frame (a JSON array).
func EncodeFrame(records ...Record) ([]byte, error) {
	if records == nil {
		records = []Record{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return data, nil
}

// Open builds the authentication record.
func Open(token string) Record {
	return Record{FieldType: TypeOpen, FieldSessionID: token}
}

// Ping builds a heartbeat record.
func Ping(sessionID, pingID string) Record {
	return Record{FieldType: TypePing, FieldSessionID: sessionID, FieldPingID: pingID}
}

// Update builds a ticker subscription record.
func Update(sessionID string, tickers []string) Record {
	if tickers == nil {
		tickers = []string{}
	}
	return Record{FieldType: TypeUpdate, FieldSessionID: sessionID, FieldTickers: tickers}
}

// Init builds the handshake response carrying the session id.
func Init(sessionID string) Record {
	return Record{FieldType: TypeInit, FieldSessionID: sessionID}
}

// Quote builds a quote record. Prices and time are passed as wire text.
func Quote(ticker, bid, ask, utcdt string) Record {
	return Record{FieldType: TypeQuote, FieldTicker: ticker, FieldBid: bid, FieldAsk: ask, FieldTime: utcdt}
}

// Finish builds the terminal record.
func Finish() Record {
	return Record{FieldType: TypeFinish}
}

// Tickers returns the string entries of the tickers field.
// Non-string entries are skipped.
func (r Record) Tickers() []string {
	raw, _ := r[FieldTickers].([]any)
	if raw == nil {
		if ts, ok := r[FieldTickers].([]string); ok {
			return ts
		}
		return nil
	}

	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
