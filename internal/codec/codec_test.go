package codec

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecode_PreservesOrder(t *testing.T) {
	frame := `[{"msg":"init","sid":"S1"},{"msg":"quote","ticker":"EURUSD"},{"msg":"finish"}]`

	records, err := Decode([]byte(frame))
	require.NoError(t, err)
	require.Len(t, records, 3)

	require.Equal(t, TypeInit, records[0].Type())
	require.Equal(t, TypeQuote, records[1].Type())
	require.Equal(t, TypeFinish, records[2].Type())
}

func TestDecode_SingleObject(t *testing.T) {
	records, err := Decode([]byte(` {"msg":"ping","sid":"S1","pid":"7"} `))
	require.NoError(t, err)
	require.Len(t, records, 1)

	pid, ok := records[0].Field(FieldPingID)
	require.True(t, ok)
	require.Equal(t, "7", pid)
}

func TestDecode_NumbersKeepWireText(t *testing.T) {
	records, err := Decode([]byte(`[{"msg":"quote","bid":1.0500,"ask":"1.0502"}]`))
	require.NoError(t, err)

	bid, ok := records[0].Field(FieldBid)
	require.True(t, ok)
	require.Equal(t, "1.0500", bid)

	ask, ok := records[0].Field(FieldAsk)
	require.True(t, ok)
	require.Equal(t, "1.0502", ask)
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"empty", ""},
		{"whitespace", "   "},
		{"not json", "hello"},
		{"array of scalars", "[1,2,3]"},
		{"truncated", `[{"msg":"init"`},
		{"trailing garbage", `[{"msg":"finish"}]garbage`},
		{"second array", `[{"msg":"finish"}][{"msg":"quote"}]`},
		{"object then garbage", `{"msg":"init","sid":"S1"} x`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.frame))
			require.ErrorIs(t, err, ErrDecode)
		})
	}
}

func TestRecord_MissingFields(t *testing.T) {
	r := Record{"msg": "init", "sid": 42.0}

	require.True(t, r.Has(FieldSessionID))
	_, ok := r.Field(FieldSessionID)
	require.False(t, ok, "non-string, non-number values are not scalar fields")

	require.Equal(t, "", Record{}.Type())
}

func TestEncode_Builders(t *testing.T) {
	tests := []struct {
		name   string
		record Record
		want   map[string]any
	}{
		{
			name:   "open",
			record: Open("token-1"),
			want:   map[string]any{"msg": "open", "sid": "token-1"},
		},
		{
			name:   "ping",
			record: Ping("S1", "3"),
			want:   map[string]any{"msg": "ping", "sid": "S1", "pid": "3"},
		},
		{
			name:   "update",
			record: Update("S1", []string{"EURUSD", "gold"}),
			want:   map[string]any{"msg": "update", "sid": "S1", "tickers": []any{"EURUSD", "gold"}},
		},
		{
			name:   "update nil tickers",
			record: Update("S1", nil),
			want:   map[string]any{"msg": "update", "sid": "S1", "tickers": []any{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.record)
			require.NoError(t, err)

			var got map[string]any
			require.NoError(t, json.Unmarshal(data, &got))
			require.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeFrame(t *testing.T) {
	data, err := EncodeFrame(
		Init("S1"),
		Quote("EURUSD", "1.0500", "1.0502", "01-01-2024 12:00:00.000000"),
		Finish(),
	)
	require.NoError(t, err)

	records, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, records, 3)

	sid, _ := records[0].Field(FieldSessionID)
	require.Equal(t, "S1", sid)

	bid, _ := records[1].Field(FieldBid)
	require.Equal(t, "1.0500", bid)
	require.Equal(t, TypeFinish, records[2].Type())

	empty, err := EncodeFrame()
	require.NoError(t, err)
	require.JSONEq(t, `[]`, string(empty))
}

func TestRecord_Tickers(t *testing.T) {
	records, err := Decode([]byte(`[{"msg":"update","tickers":["EURUSD",7,"gold"]},{"msg":"update"}]`))
	require.NoError(t, err)

	require.Equal(t, []string{"EURUSD", "gold"}, records[0].Tickers())
	require.Nil(t, records[1].Tickers())
	require.Equal(t, []string{"USDJPY"}, Update("S1", []string{"USDJPY"}).Tickers())
}
