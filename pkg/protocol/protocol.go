package protocol

import "encoding/json"

// APIName selects one of the broker's built-in operations.
type APIName string

const (
	APIUserGetInfo APIName = "USER_GET_INFO"
	APIEventBus    APIName = "EVENT_BUS"
	APIGetLanguage APIName = "GET_LANGUAGE"
)

// Reply messages sent back to frames.
const (
	MessageParamsError        = "params error"
	MessageFunctionNotDeclare = "function is not declare"
	MessageEventNotRegister   = "event is not register"
	MessageNoLogin            = "no login in"
	MessageUnauthorizedOrigin = "unauthorized origin"
)

// Wildcard in an allow-list accepts any origin.
const Wildcard = "*"

// TypeBroadcast marks shell-initiated pushes to every frame.
const TypeBroadcast = "broadcast"

// ParseAPIName maps a wire name onto the closed set of built-ins.
func ParseAPIName(name string) (APIName, bool) {
	switch APIName(name) {
	case APIUserGetInfo, APIEventBus, APIGetLanguage:
		return APIName(name), true
	default:
		return "", false
	}
}

// InboundMessage is what a frame posts to the shell.
type InboundMessage struct {
	APIName   string          `json:"apiName"`
	MessageID string          `json:"messageId"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Valid reports whether both correlation fields are present.
func (m InboundMessage) Valid() bool {
	return m.APIName != "" && m.MessageID != ""
}

// DecodeInbound parses a raw frame payload. Undecodable input yields an empty
// message, which fails Valid.
func DecodeInbound(raw []byte) InboundMessage {
	var msg InboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return InboundMessage{}
	}
	return msg
}

// EventBusPayload is the data carried by an EVENT_BUS request.
type EventBusPayload struct {
	EventName string          `json:"eventName"`
	EventData json.RawMessage `json:"eventData,omitempty"`
}

// DecodeEventBusPayload unwraps {eventName, eventData}; missing data yields a
// zero payload.
func DecodeEventBusPayload(data json.RawMessage) EventBusPayload {
	var payload EventBusPayload
	if len(data) == 0 {
		return payload
	}
	_ = json.Unmarshal(data, &payload)
	return payload
}

// Reply is the correlated answer posted back to the originating frame.
type Reply struct {
	MasterOrigin string `json:"masterOrigin"`
	MessageID    string `json:"messageId"`
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	Data         any    `json:"data"`
}

// Broadcast is pushed by the shell to every attached frame.
type Broadcast struct {
	MasterOrigin string          `json:"masterOrigin"`
	Type         string          `json:"type"`
	Data         json.RawMessage `json:"data,omitempty"`
}

// Envelope is the union a frame reads off its connection: replies carry a
// messageId, broadcasts carry type "broadcast".
type Envelope struct {
	MasterOrigin string          `json:"masterOrigin"`
	MessageID    string          `json:"messageId,omitempty"`
	Type         string          `json:"type,omitempty"`
	Success      bool            `json:"success"`
	Message      string          `json:"message,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
}

// IsBroadcast reports whether the envelope is a shell push rather than a reply.
func (e Envelope) IsBroadcast() bool {
	return e.Type == TypeBroadcast && e.MessageID == ""
}

// User is the public projection of the logged-in user.
type User struct {
	ID          string `json:"id"`
	K8sUsername string `json:"k8sUsername"`
	Name        string `json:"name"`
	Avatar      string `json:"avatar"`
	NSID        string `json:"nsid"`
}

// SessionSnapshot is the read-only session view handed to frames.
type SessionSnapshot struct {
	User       User   `json:"user"`
	Token      string `json:"token"`
	Kubeconfig string `json:"kubeconfig"`
}

// Language is the GET_LANGUAGE reply payload.
type Language struct {
	Lng string `json:"lng"`
}
