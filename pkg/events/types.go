// Package events defines the wire contract between the client and the relay
// server: the outbound envelope, the inbound message kinds, the classifier
// that turns raw frames into typed messages, and the router that delivers
// them to the rest of the application.
//
// Every inbound frame produces exactly one Message. Frames that do not carry
// the standard shape ({message_id, type, payload}) or name an unknown type are
// classified as *Unrecognized and still delivered, with the raw bytes intact.
//
// Inbound kinds (relay → client):
//
//	session_created        relay accepted the transport and assigned a session
//	blender_connected      engine linked; text may carry a "resumed" marker
//	blender_disconnected   engine lost
//	command_completed      result of a command_sent (success or error payload)
//	command_failed         command could not be executed
//	agent_response_ready   agent answered an agent_request
//	agent_error            agent failed
//	execution_error        engine raised while executing
//	inbox_cleared          pending agent inbox was emptied
//
// Outbound types (client → relay) are the Type* constants below.
package events

// Kind identifies the variant of an inbound Message.
type Kind string

// Inbound message kinds. The string values are the wire "type" tags.
const (
	KindSessionCreated   Kind = "session_created"
	KindEngineLinked     Kind = "blender_connected"
	KindEngineLost       Kind = "blender_disconnected"
	KindCommandCompleted Kind = "command_completed"
	KindCommandFailed    Kind = "command_failed"
	KindAgentResponse    Kind = "agent_response_ready"
	KindAgentError       Kind = "agent_error"
	KindExecutionError   Kind = "execution_error"
	KindInboxCleared     Kind = "inbox_cleared"

	// KindUnrecognized is never sent by the relay; it tags frames the
	// classifier could not map to any of the kinds above.
	KindUnrecognized Kind = "unrecognized"
)

// knownKinds maps wire tags to kinds for the classifier.
var knownKinds = map[string]Kind{
	string(KindSessionCreated):   KindSessionCreated,
	string(KindEngineLinked):     KindEngineLinked,
	string(KindEngineLost):       KindEngineLost,
	string(KindCommandCompleted): KindCommandCompleted,
	string(KindCommandFailed):    KindCommandFailed,
	string(KindAgentResponse):    KindAgentResponse,
	string(KindAgentError):       KindAgentError,
	string(KindExecutionError):   KindExecutionError,
	string(KindInboxCleared):     KindInboxCleared,
}

// Kinds returns every inbound kind the relay may send, in wire order.
func Kinds() []Kind {
	return []Kind{
		KindSessionCreated,
		KindEngineLinked,
		KindEngineLost,
		KindCommandCompleted,
		KindCommandFailed,
		KindAgentResponse,
		KindAgentError,
		KindExecutionError,
		KindInboxCleared,
	}
}

// Outbound envelope types.
const (
	// TypeCommandSent carries a direct UI command to the engine.
	TypeCommandSent = "command_sent"
	// TypeAgentRequest carries a natural-language request for the agent.
	TypeAgentRequest = "agent_request"
	// TypeClientReady is the one-shot ready handshake.
	TypeClientReady = "client_ready"
	// TypeGetSceneInfo is the context-sync request.
	TypeGetSceneInfo = "get_scene_info"
)

// Route distinguishes synchronous-feeling UI control from asynchronous
// agent traffic in outbound metadata.
type Route string

const (
	RouteDirect Route = "direct"
	RouteAgent  Route = "agent"
)

// Valid reports whether r is one of the known routes.
func (r Route) Valid() bool {
	return r == RouteDirect || r == RouteAgent
}

// Context-sync reasons tagged into outbound metadata for observability.
const (
	SyncReasonInitial = "initial"
	SyncReasonResume  = "resume"
)
