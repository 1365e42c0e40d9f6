package codec

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"quantbrains/internal/errors"
	"quantbrains/internal/schema"
	"quantbrains/pkg/exception"
)

// ByteOrderMark is stripped from inbound payloads and never written outbound.
const ByteOrderMark = "\ufeff"

type wireResponse struct {
	Success *bool           `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type wireStrategy struct {
	ID          Number    `json:"id"`
	Name        string    `json:"name"`
	Symbol      string    `json:"symbol"`
	Timeframe   string    `json:"timeframe"`
	MagicNumber Number    `json:"magicNumber"`
	Status      Number    `json:"status"`
	Profit      Number    `json:"profit"`
	Drawdown    Number    `json:"drawdown"`
	WinRate     Number    `json:"winRate"`
	Momentum    Number    `json:"momentum"`
	TotalTrades Number    `json:"totalTrades"`
	LastUpdate  Timestamp `json:"lastUpdate"`
}

// StripBOM removes a leading byte order marker.
func StripBOM(raw string) string {
	return strings.TrimPrefix(raw, ByteOrderMark)
}

// DecodeResponse parses a response file body.
// Unknown fields are ignored and missing optional fields take zero values,
// but a missing success flag, strategy id or strategy status is a decode error.
// Numeric fields also accept numeric strings and whole floats.
// The data field is only interpreted for successful responses; data that is
// neither a list nor an object is ignored.
func DecodeResponse(raw string) (schema.Response, error) {
	body := bytes.TrimSpace([]byte(StripBOM(raw)))
	if len(body) == 0 {
		return schema.Response{}, errors.Annotate(exception.ErrDecode, "empty body", "", nil)
	}

	var wire wireResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return schema.Response{}, errors.Annotate(exception.ErrDecode, "unmarshal", "envelope", err)
	}
	if wire.Success == nil {
		return schema.Response{}, errors.Annotate(exception.ErrDecode, "missing field", "success", nil)
	}

	resp := schema.Response{
		Success: *wire.Success,
		Message: wire.Message,
		Kind:    schema.DataNone,
	}
	if !resp.Success {
		return resp, nil
	}

	data := bytes.TrimSpace(wire.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return resp, nil
	}

	switch data[0] {
	case '[':
		strategies, err := DecodeStrategies(data)
		if err != nil {
			return schema.Response{}, err
		}
		resp.Kind = schema.DataStrategies
		resp.Strategies = strategies
	case '{':
		status, err := DecodeStatus(data)
		if err != nil {
			return schema.Response{}, err
		}
		resp.Kind = schema.DataStatus
		resp.Status = &status
	}

	return resp, nil
}

// DecodeStrategies parses a JSON array of strategy objects.
func DecodeStrategies(data []byte) ([]schema.Strategy, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, errors.Annotate(exception.ErrDecode, "unmarshal", "strategies", err)
	}

	strategies := make([]schema.Strategy, 0, len(items))
	for i, item := range items {
		s, err := decodeStrategy(item)
		if err != nil {
			return nil, errors.Wrapf(err, "strategy index: %d", i)
		}
		strategies = append(strategies, s)
	}
	return strategies, nil
}

func decodeStrategy(item json.RawMessage) (schema.Strategy, error) {
	var w wireStrategy
	if err := json.Unmarshal(item, &w); err != nil {
		return schema.Strategy{}, errors.Annotate(exception.ErrDecode, "unmarshal", "strategy", err)
	}
	if !w.ID.Set {
		return schema.Strategy{}, errors.Annotate(exception.ErrDecode, "missing field", "id", nil)
	}
	if !w.Status.Set {
		return schema.Strategy{}, errors.Annotate(exception.ErrDecode, "missing field", "status", nil)
	}
	id, err := w.ID.Int()
	if err != nil {
		return schema.Strategy{}, errors.Wrap(err, "id")
	}
	rawStatus, err := w.Status.Int()
	if err != nil {
		return schema.Strategy{}, errors.Wrap(err, "status")
	}
	status := schema.Status(rawStatus)
	if !status.Valid() {
		return schema.Strategy{}, errors.Annotate(exception.ErrDecode, "invalid status", strconv.FormatInt(rawStatus, 10), nil)
	}
	trades, err := w.TotalTrades.Int()
	if err != nil {
		return schema.Strategy{}, errors.Wrap(err, "totalTrades")
	}

	return schema.Strategy{
		ID:          int(id),
		Name:        w.Name,
		Symbol:      w.Symbol,
		Timeframe:   w.Timeframe,
		MagicNumber: int64(math.RoundToEven(w.MagicNumber.Value)),
		Status:      status,
		Profit:      w.Profit.Value,
		Drawdown:    w.Drawdown.Value,
		WinRate:     w.WinRate.Value,
		Momentum:    schema.ClampMomentum(w.Momentum.Value),
		TotalTrades: int(trades),
		LastUpdate:  w.LastUpdate.Time,
	}, nil
}

// DecodeStatus parses the object form of a response's data field.
func DecodeStatus(data []byte) (schema.StatusData, error) {
	var status schema.StatusData
	if err := json.Unmarshal(data, &status); err != nil {
		return schema.StatusData{}, errors.Annotate(exception.ErrDecode, "unmarshal", "status", err)
	}
	return status, nil
}

// EncodeResponse builds a response body in the terminal's format.
func EncodeResponse(success bool, message string, data any) ([]byte, error) {
	payload := struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Data    any    `json:"data,omitempty"`
	}{
		Success: success,
		Message: message,
		Data:    data,
	}
	return json.Marshal(payload)
}

// Timestamp accepts the time layouts the terminal is known to emit.
// Unparseable values decode to the zero time.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006.01.02 15:04:05",
	"2006.01.02 15:04",
	"2006.01.02",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}

	if data[0] != '"' {
		secs, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			t.Time = time.Time{}
			return nil
		}
		t.Time = time.Unix(int64(secs), 0).UTC()
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	t.Time = ParseTimestamp(s)
	return nil
}

// ParseTimestamp tries each known layout and returns the zero time on failure.
func ParseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts
		}
	}
	return time.Time{}
}
