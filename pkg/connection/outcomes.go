package connection

import (
	"github.com/codeready-toolchain/relaylink/pkg/events"
	"github.com/codeready-toolchain/relaylink/pkg/ledger"
)

// installOutcomeRecorder links answers from the relay back to the command
// they answer in the ledger.
func (m *Manager) installOutcomeRecorder() {
	record := func(msg events.Message) {
		if out, ok := outcomeOf(msg); ok {
			out.ReceivedAt = m.now()
			m.ledger.RecordOutcome(out)
		}
	}
	for _, kind := range []events.Kind{
		events.KindCommandCompleted,
		events.KindCommandFailed,
		events.KindAgentResponse,
		events.KindAgentError,
	} {
		m.router.Handle(kind, record)
	}
}

// outcomeOf maps an answer to the outcome of the command it references.
// Answers without a correlation id are not recorded.
func outcomeOf(msg events.Message) (ledger.Outcome, bool) {
	var out ledger.Outcome
	switch v := msg.(type) {
	case *events.CommandCompleted:
		out = ledger.Outcome{MessageID: v.CommandID, Success: v.Success, Error: v.Error, Result: v.Result}
	case *events.CommandFailed:
		out = ledger.Outcome{MessageID: v.CommandID, Error: v.Error}
	case *events.AgentResponse:
		out = ledger.Outcome{MessageID: v.RequestID, Success: true, Result: v.Data, Text: v.Text}
	case *events.AgentError:
		out = ledger.Outcome{MessageID: v.RequestID, Error: v.Error}
	default:
		return out, false
	}
	if out.MessageID == "" {
		return out, false
	}
	out.Kind = string(msg.Kind())
	return out, true
}
