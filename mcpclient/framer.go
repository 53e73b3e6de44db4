package mcpclient

import (
	"bytes"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/vishpuri/FRED/metrics"
)

// Message is one JSON-RPC 2.0 envelope. Requests carry ID and Method,
// notifications only Method, responses ID and Result or Error.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  any             `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// IsResponse reports whether m answers an earlier request.
func (m *Message) IsResponse() bool {
	return m.ID != nil && m.Method == ""
}

// Encode serializes msg as a single line terminated by '\n'.
func Encode(msg *Message) ([]byte, error) {
	if msg.JSONRPC == "" {
		msg.JSONRPC = "2.0"
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Framer splits an inbound byte stream into messages. It is not safe for
// concurrent use; a single reader goroutine owns it.
type Framer struct {
	buf []byte
	log zerolog.Logger
}

func NewFramer(log zerolog.Logger) *Framer {
	return &Framer{log: log}
}

// Feed appends chunk to the buffer and returns every message completed by it,
// in order. The trailing partial line is retained. Blank lines are skipped and
// lines that are not valid JSON are logged and dropped.
func (f *Framer) Feed(chunk []byte) []Message {
	f.buf = append(f.buf, chunk...)
	var out []Message
	for {
		i := bytes.IndexByte(f.buf, '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimSpace(f.buf[:i])
		f.buf = f.buf[i+1:]
		if len(line) == 0 {
			continue
		}
		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			metrics.RecordFramingError()
			f.log.Warn().Str("line", truncate(line, 200)).Msg("failed to parse MCP message")
			continue
		}
		out = append(out, msg)
	}
	if len(f.buf) == 0 {
		f.buf = nil
	}
	return out
}

// Buffered returns a copy of the incomplete trailing line.
func (f *Framer) Buffered() []byte {
	return append([]byte(nil), f.buf...)
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
