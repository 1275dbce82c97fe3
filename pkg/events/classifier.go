package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// resumedMarkers are matched case-insensitively against engine-linked text.
var resumedMarkers = []string{"reconnected to existing", "resumed"}

// Unrecognized reasons.
const (
	ReasonInvalidJSON    = "invalid JSON"
	ReasonNotObject      = "not a JSON object"
	ReasonMissingID      = "missing or empty message_id"
	ReasonMissingType    = "missing or empty type"
	ReasonMissingPayload = "missing payload"
)

// wirePayload is the union of every payload member the relay sends. Unknown
// members are ignored.
type wirePayload struct {
	SessionID string          `json:"session_id"`
	Message   string          `json:"message"`
	Text      string          `json:"text"`
	Response  string          `json:"response"`
	Reason    string          `json:"reason"`
	Resumed   *bool           `json:"resumed"`
	CommandID string          `json:"command_id"`
	Command   string          `json:"command"`
	Success   *bool           `json:"success"`
	Result    json.RawMessage `json:"result"`
	Data      json.RawMessage `json:"data"`
	Error     json.RawMessage `json:"error"`
	Details   json.RawMessage `json:"details"`
	Traceback string          `json:"traceback"`
	RequestID string          `json:"request_id"`
	Count     int             `json:"count"`
}

// text returns the first non-empty human-readable member.
func (p *wirePayload) text() string {
	for _, s := range []string{p.Message, p.Text, p.Response} {
		if s != "" {
			return s
		}
	}
	return ""
}

// errorText flattens the error member, which the relay sends either as a
// string or as an object with a message.
func (p *wirePayload) errorText() string {
	return flatten(p.Error)
}

func (p *wirePayload) detailText() string {
	if d := flatten(p.Details); d != "" {
		return d
	}
	return p.Traceback
}

// Classify maps a raw inbound frame to a typed Message. It never fails and
// never panics; anything that does not fit the standard shape comes back as
// *Unrecognized with the raw bytes unchanged.
func Classify(raw []byte) Message {
	frame := make([]byte, len(raw))
	copy(frame, raw)

	unrecognized := func(reason string) Message {
		return &Unrecognized{Raw: frame, Reason: reason}
	}

	if !json.Valid(frame) {
		return unrecognized(ReasonInvalidJSON)
	}
	var members map[string]json.RawMessage
	if err := json.Unmarshal(frame, &members); err != nil || members == nil {
		return unrecognized(ReasonNotObject)
	}

	id, ok := stringMember(members, "message_id")
	if !ok {
		return unrecognized(ReasonMissingID)
	}
	typ, ok := stringMember(members, "type")
	if !ok {
		return unrecognized(ReasonMissingType)
	}
	rawPayload, ok := members["payload"]
	if !ok {
		return unrecognized(ReasonMissingPayload)
	}
	kind, ok := knownKinds[typ]
	if !ok {
		return unrecognized(fmt.Sprintf("unknown type %q", typ))
	}

	p, err := decodePayload(rawPayload)
	if err != nil {
		return unrecognized(fmt.Sprintf("malformed %s payload: %v", typ, err))
	}

	h := Header{MessageID: id, Raw: frame}
	switch kind {
	case KindSessionCreated:
		return &SessionCreated{Header: h, SessionID: p.SessionID, Text: p.text()}
	case KindEngineLinked:
		text := p.text()
		return &EngineLinked{Header: h, Text: text, Resumed: isResumed(text, p.Resumed)}
	case KindEngineLost:
		return &EngineLost{Header: h, Text: p.text(), Reason: p.Reason}
	case KindCommandCompleted:
		errText := p.errorText()
		success := errText == ""
		if p.Success != nil {
			success = *p.Success
		}
		if !success && errText == "" {
			errText = "command reported failure"
		}
		return &CommandCompleted{
			Header:    h,
			CommandID: p.CommandID,
			Command:   p.Command,
			Success:   success,
			Result:    p.Result,
			Error:     errText,
		}
	case KindCommandFailed:
		return &CommandFailed{
			Header:    h,
			CommandID: p.CommandID,
			Command:   p.Command,
			Error:     firstNonEmpty(p.errorText(), p.text()),
			Details:   p.detailText(),
		}
	case KindAgentResponse:
		return &AgentResponse{Header: h, RequestID: p.RequestID, Text: p.text(), Data: p.Data}
	case KindAgentError:
		return &AgentError{
			Header:    h,
			RequestID: p.RequestID,
			Error:     firstNonEmpty(p.errorText(), p.text()),
			Details:   p.detailText(),
		}
	case KindExecutionError:
		return &ExecutionError{
			Header:  h,
			Error:   firstNonEmpty(p.errorText(), p.text()),
			Details: p.detailText(),
		}
	case KindInboxCleared:
		return &InboxCleared{Header: h, Count: p.Count}
	}
	return unrecognized(fmt.Sprintf("unknown type %q", typ))
}

// decodePayload accepts an object, a bare string (treated as the message
// text) or null.
func decodePayload(raw json.RawMessage) (*wirePayload, error) {
	var p wirePayload
	trimmed := bytes.TrimSpace(raw)
	switch {
	case len(trimmed) == 0, bytes.Equal(trimmed, []byte("null")):
		return &p, nil
	case trimmed[0] == '"':
		if err := json.Unmarshal(trimmed, &p.Message); err != nil {
			return nil, err
		}
		return &p, nil
	case trimmed[0] == '{':
		if err := json.Unmarshal(trimmed, &p); err != nil {
			return nil, err
		}
		return &p, nil
	}
	return nil, fmt.Errorf("payload must be an object or a string")
}

func stringMember(members map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := members[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

func isResumed(text string, flag *bool) bool {
	if flag != nil && *flag {
		return true
	}
	lower := strings.ToLower(text)
	for _, marker := range resumedMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// flatten renders a string member as-is and anything else (object, array)
// as compact JSON. Null and absent members become "".
func flatten(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(trimmed, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return string(trimmed)
	}
	return buf.String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
