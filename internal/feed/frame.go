package feed

import (
	json "github.com/goccy/go-json"

	"github.com/coachpo/chronicle/internal/domain/marketdata"
)

// Frame is the wire envelope of one published record.
type Frame struct {
	Type     marketdata.Kind `json:"type"`
	Session  string          `json:"session"`
	Security string          `json:"security"`
	Value    json.RawMessage `json:"value"`
}

func encodeFrame(kind marketdata.Kind, session, index string, value any) ([]byte, error) {
	body, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Type: kind, Session: session, Security: index, Value: body})
}

// DecodeFrame parses a frame produced by a Client.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	err := json.Unmarshal(data, &f)
	return f, err
}
