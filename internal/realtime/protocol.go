package realtime

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Hub wire format: JSON records terminated by the record separator.
const recordSeparator = 0x1E

const (
	msgInvocation = 1
	msgStreamItem = 2
	msgCompletion = 3
	msgPing       = 6
	msgClose      = 7
)

// hubMessage is one framed record exchanged with the hub.
type hubMessage struct {
	Type         int               `json:"type"`
	InvocationID string            `json:"invocationId,omitempty"`
	Target       string            `json:"target,omitempty"`
	Arguments    []json.RawMessage `json:"arguments,omitempty"`
	Result       json.RawMessage   `json:"result,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// handshakeRequest is sent once, right after the socket opens.
func handshakeRequest() []byte {
	return append([]byte(`{"protocol":"json","version":1}`), recordSeparator)
}

// parseHandshakeResponse checks the hub's reply to the handshake. Messages
// batched behind it are returned for normal dispatch.
func parseHandshakeResponse(data []byte) ([]byte, error) {
	idx := bytes.IndexByte(data, recordSeparator)
	if idx < 0 {
		return nil, fmt.Errorf("handshake response not terminated")
	}
	var resp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data[:idx], &resp); err != nil {
		return nil, fmt.Errorf("decoding handshake response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("handshake rejected: %s", resp.Error)
	}
	return data[idx+1:], nil
}

// encodeInvocation frames a hub method call. Every call carries an
// invocation id so a failed completion can be logged against it.
func encodeInvocation(target string, args ...interface{}) ([]byte, string, error) {
	rawArgs := make([]json.RawMessage, 0, len(args))
	for _, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return nil, "", fmt.Errorf("encoding %s argument: %w", target, err)
		}
		rawArgs = append(rawArgs, b)
	}

	id := uuid.NewString()
	b, err := json.Marshal(hubMessage{
		Type:         msgInvocation,
		InvocationID: id,
		Target:       target,
		Arguments:    rawArgs,
	})
	if err != nil {
		return nil, "", err
	}
	return append(b, recordSeparator), id, nil
}

// encodePing frames a protocol-level keep-alive.
func encodePing() []byte {
	return append([]byte(`{"type":6}`), recordSeparator)
}

// decodeMessages splits a frame into records. A malformed record is
// reported but does not hide the records around it.
func decodeMessages(data []byte) ([]hubMessage, error) {
	var (
		out  []hubMessage
		errs []error
	)
	for _, rec := range bytes.Split(data, []byte{recordSeparator}) {
		rec = bytes.TrimSpace(rec)
		if len(rec) == 0 {
			continue
		}
		var m hubMessage
		if err := json.Unmarshal(rec, &m); err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, m)
	}
	if len(errs) > 0 {
		return out, fmt.Errorf("%d malformed hub record(s): %w", len(errs), errs[0])
	}
	return out, nil
}
