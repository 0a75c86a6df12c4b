package model

import "time"

// MessageType enumerates the roundtable's typed message kinds.
type MessageType string

const (
	MsgBroadcast    MessageType = "broadcast"
	MsgDirect       MessageType = "direct"
	MsgPrivateChat  MessageType = "private_chat"
	MsgQuestion     MessageType = "question"
	MsgReply        MessageType = "reply"
	MsgAgree        MessageType = "agree"
	MsgDisagree     MessageType = "disagree"
	MsgThinking     MessageType = "thinking"
	MsgIntervention MessageType = "external_intervention"
	MsgConclusion   MessageType = "conclusion"
)

// RecipientAll addresses every mailbox on the bus.
const RecipientAll = "ALL"

// Message is one entry on the roundtable's message bus.
type Message struct {
	ID        int64       `json:"id"`
	Type      MessageType `json:"type"`
	Sender    string      `json:"sender"`
	Recipient string      `json:"recipient"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
	ParentID  int64       `json:"parent_id,omitempty"`
}

// AgentProfile describes one roundtable participant.
type AgentProfile struct {
	Name    string   `json:"name"`
	Role    string   `json:"role"`
	Persona string   `json:"persona"`
	Tools   []string `json:"tools,omitempty"`
	Leader  bool     `json:"leader,omitempty"`
}

// MeetingSummary is emitted on roundtable termination.
type MeetingSummary struct {
	TopicID              string         `json:"topic_id"`
	TotalRounds          int            `json:"total_rounds"`
	TotalMessages        int            `json:"total_messages"`
	Duration             time.Duration  `json:"duration_ns"`
	PerAgentMessageCount map[string]int `json:"per_agent_message_count"`
	History              []Message      `json:"history"`
	Terminated           string         `json:"terminated"` // rounds_exhausted | leader_conclusion | external_abort
}
