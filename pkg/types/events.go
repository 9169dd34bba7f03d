package types

import (
	"encoding/json"
	"time"
)

// Inbound event names pushed by the server over the session channel.
const (
	EventChatRequestAccepted  = "chatRequestAccepted"
	EventChatRequestRejected  = "chatRequestRejected"
	EventChatRequestScheduled = "chatRequestScheduled"
	EventChatRequestEnded     = "chatRequestEnded"
	EventCallRequestAccepted  = "callRequestAccepted"
	EventCallAcceptedByAstro  = "callAcceptedByAstro"
	EventProviderOnline       = "astrologerOnline"
	EventProviderCalling      = "astrologerCalling"
	EventMissedCall           = "missedCall"
	EventWaitlistCallback     = "callBack"
	EventNewMessage           = "newMessageReceived"
	EventRechargeAck          = "rechargeAck"
	EventAITokenChunk         = "aiTokenChunk"
	EventAISessionEnd         = "aiSessionEnd"
)

// Outbound command names emitted by the client.
const (
	CommandAddUser            = "addUser"
	CommandChatCancel         = "chatCancel"
	CommandNewMessage         = "newMessage"
	CommandRechargeDuringChat = "rechargeDuringChat"
	CommandLogout             = "logout"
)

// Frame is the wire envelope for both directions of the session channel.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Command is a typed outbound instruction. ID correlates retries and
// logging; it is client-assigned.
type Command struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Data any    `json:"data,omitempty"`
}

// AddUserPayload re-associates push routing after every (re)connect. The
// transport does not preserve server-side routing state across reconnects,
// so this must be emitted on each connect event.
type AddUserPayload struct {
	UserID    string `json:"sub"`
	SessionID string `json:"sessionId"`
}

// RequestAcceptedEvent signals the provider accepted a pending request.
// For chat the payload carries the consultation the client must adopt.
type RequestAcceptedEvent struct {
	RequestID    string              `json:"chatRequestId"`
	ProviderName string              `json:"astrologerName"`
	Consultation *ActiveConsultation `json:"chat,omitempty"`
}

// RequestRejectedEvent signals the provider declined a pending request.
type RequestRejectedEvent struct {
	RequestID    string `json:"chatRequestId"`
	ProviderName string `json:"astrologerName"`
	Action       Action `json:"action"`
}

// RequestScheduledEvent signals the provider scheduled the request for a
// later absolute time.
type RequestScheduledEvent struct {
	RequestID     string    `json:"chatRequestId"`
	ProviderName  string    `json:"astrologerName"`
	Action        Action    `json:"action"`
	ScheduledTime time.Time `json:"scheduledTime"`
}

// RequestEndedEvent signals the server terminated the active consultation.
type RequestEndedEvent struct {
	Message string `json:"message"`
}

// ProviderEvent carries provider identity for online/calling/missed-call
// notifications.
type ProviderEvent struct {
	ProviderID   string `json:"astrologerId"`
	ProviderName string `json:"astrologerName"`
}

// CancelPayload is the body of a chatCancel command.
type CancelPayload struct {
	ProviderID string `json:"astroId"`
	UserID     string `json:"userId"`
}

// RechargePayload is the body of a rechargeDuringChat command.
type RechargePayload struct {
	ProviderID string `json:"astroId"`
}

// AITokenChunkEvent is one streamed token of an AI chat reply.
type AITokenChunkEvent struct {
	Token string `json:"token"`
}

// AIMessage is a finalized AI chat message.
type AIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AISessionEndEvent closes an AI token stream and carries the canonical
// full message the buffered tokens approximated.
type AISessionEndEvent struct {
	SessionID string    `json:"sessionId"`
	Message   AIMessage `json:"newMessage"`
}
