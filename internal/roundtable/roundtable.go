// Package roundtable implements the Roundtable Meeting (spec section
// 4.6): a turn-based multi-agent conversation with a named message bus,
// typed messages, per-agent thinking/acting loops, an external-
// intervention inbox, and bounded-round termination. Direct generalization
// of the teacher's pkg/core/debate package: DebateOrchestrator -> Meeting,
// DebateAgent -> Participant, SharedContext/DebateMessage -> the spec's
// generic Message/MeetingContext (not fixed to six named financial
// personas -- profiles are supplied by the caller per spec.md section 3
// AgentProfile).
package roundtable

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ddorchestrator/internal/jsonx"
	"ddorchestrator/internal/logging"
	"ddorchestrator/internal/model"
	"ddorchestrator/internal/prompt"
	"ddorchestrator/internal/serviceclients/llmgateway"
)

const (
	defaultMaxRounds       = 5
	defaultMessagesPerTurn = 3
	maxTotalMessages       = 200
	maxMeetingDuration     = 30 * time.Minute
	perCallTimeout         = 60 * time.Second
)

// MeetingContext is the shared state every participant's turn is built
// from: the topic, the company name, and a free-form domain context
// object. The history tail is passed to Participant.Think separately.
type MeetingContext struct {
	Topic       string
	CompanyName string
	Context     map[string]any
}

// Participant is the per-agent capability (spec 4.6 "per-agent contract").
// Think is given the tail of history and the agent's own mailbox and
// returns 0-K messages to emit; the roundtable does not interpret message
// content beyond the typed fields, consistent with the teacher's
// DebateAgent.Generate contract.
type Participant interface {
	Profile() model.AgentProfile
	Think(ctx context.Context, mc MeetingContext, history []model.Message, mailbox []model.Message) ([]model.Message, error)
}

// LLMParticipant is the default Participant implementation: it prompts
// the shared LLM Gateway client with the agent's persona and the history
// tail, then parses a JSON array of emitted messages, bounding output at
// K messages per turn.
type LLMParticipant struct {
	AgentProfile    model.AgentProfile
	LLM             *llmgateway.Client
	ModelID         string
	MessagesPerTurn int
	Prompts         *prompt.Registry
}

func (p *LLMParticipant) Profile() model.AgentProfile { return p.AgentProfile }

func (p *LLMParticipant) Think(ctx context.Context, mc MeetingContext, history []model.Message, mailbox []model.Message) ([]model.Message, error) {
	k := p.MessagesPerTurn
	if k <= 0 {
		k = defaultMessagesPerTurn
	}

	prompt := fmt.Sprintf(`You are %s, role: %s. Persona: %s

Topic: %s (company: %s)

Conversation so far:
%s

Your private mailbox (messages addressed directly to you):
%s

Emit at most %d messages as a JSON array:
[{"type": "broadcast|direct|question|reply|agree|disagree|thinking|conclusion", "recipient": "ALL or an agent name", "content": "string"}]
If you believe the discussion has reached a conclusion and you are the designated leader, use type "conclusion".`,
		p.AgentProfile.Name, p.AgentProfile.Role, p.AgentProfile.Persona, mc.Topic, mc.CompanyName, formattedHistory(history), formattedHistory(mailbox), k)

	systemPrompt := "You are a disciplined participant in a structured multi-agent roundtable."
	if ov, ok := p.Prompts.Get("roundtable_participant_system"); ok {
		systemPrompt = ov
	}
	raw, err := p.LLM.Generate(ctx, systemPrompt, prompt, llmgateway.GenConfig{
		ModelID:  p.ModelID,
		JSONMode: true,
	})
	if err != nil {
		return nil, err
	}

	var wire []struct {
		Type      string `json:"type"`
		Recipient string `json:"recipient"`
		Content   string `json:"content"`
	}
	if err := jsonx.SmartParseInto(raw, &wire); err != nil {
		logging.Warn("roundtable participant %s: parse failed, raw response: %s", p.AgentProfile.Name, raw)
		return nil, nil
	}

	if len(wire) > k {
		wire = wire[:k]
	}

	msgs := make([]model.Message, 0, len(wire))
	for _, w := range wire {
		recipient := w.Recipient
		if recipient == "" {
			recipient = model.RecipientAll
		}
		msgs = append(msgs, model.Message{
			Type:      model.MessageType(w.Type),
			Sender:    p.AgentProfile.Name,
			Recipient: recipient,
			Content:   w.Content,
			Timestamp: time.Now(),
		})
	}
	return msgs, nil
}

func formattedHistory(msgs []model.Message) string {
	var out string
	for _, m := range msgs {
		out += fmt.Sprintf("[%s -> %s] (%s) %s\n", m.Sender, m.Recipient, m.Type, m.Content)
	}
	if out == "" {
		out = "(none yet)"
	}
	return out
}

// Meeting is one roundtable run.
type Meeting struct {
	mc           MeetingContext
	participants []Participant
	leader       string
	maxRounds    int

	mu            sync.Mutex
	history       []model.Message
	mailboxes     map[string][]model.Message
	nextID        int64
	started       time.Time
	interventions chan model.Message
}

// NewMeeting builds a Meeting from an ordered list of participants. The
// leader (re-planned on intervention, and the only participant whose
// conclusion ends the meeting) is the first participant whose profile has
// Leader set, or the first participant if none does. maxRounds <= 0 means
// the default of 5 rounds.
func NewMeeting(mc MeetingContext, participants []Participant, maxRounds int) *Meeting {
	if maxRounds <= 0 {
		maxRounds = defaultMaxRounds
	}
	leader := ""
	for _, p := range participants {
		if p.Profile().Leader {
			leader = p.Profile().Name
			break
		}
	}
	if leader == "" && len(participants) > 0 {
		leader = participants[0].Profile().Name
	}

	mailboxes := make(map[string][]model.Message, len(participants))
	for _, p := range participants {
		mailboxes[p.Profile().Name] = nil
	}

	return &Meeting{
		mc:            mc,
		participants:  participants,
		leader:        leader,
		maxRounds:     maxRounds,
		mailboxes:     mailboxes,
		interventions: make(chan model.Message, 8),
	}
}

// Intervene injects an external_intervention message addressed to ALL,
// inserted before the next agent's turn (spec 4.6).
func (m *Meeting) Intervene(content string) {
	msg := model.Message{
		Type:      model.MsgIntervention,
		Sender:    "external",
		Recipient: model.RecipientAll,
		Content:   content,
		Timestamp: time.Now(),
	}
	select {
	case m.interventions <- msg:
	default:
		logging.Warn("roundtable: intervention channel full, dropping intervention")
	}
}

// Run executes the meeting to completion, invoking onMessage for every
// emitted message (including system/intervention messages) as it happens,
// so a caller can stream agent_event frames (spec 6.1) without this
// package depending on any transport.
func (m *Meeting) Run(ctx context.Context, onMessage func(model.Message)) model.MeetingSummary {
	m.started = time.Now()
	terminated := "rounds_exhausted"
	actualRounds := 0

roundLoop:
	for round := 1; round <= m.maxRounds; round++ {
		actualRounds = round
		for _, p := range m.participants {
			select {
			case iv := <-m.interventions:
				m.deliver(iv, onMessage)
				m.replanLeader(ctx, onMessage)
			default:
			}

			if m.totalMessages() >= maxTotalMessages {
				terminated = "external_abort"
				break roundLoop
			}
			if time.Since(m.started) >= maxMeetingDuration {
				terminated = "external_abort"
				break roundLoop
			}

			turnCtx, cancel := context.WithTimeout(ctx, perCallTimeout)
			msgs, err := p.Think(turnCtx, m.mc, m.tail(20), m.mailboxFor(p.Profile().Name))
			cancel()
			if err != nil {
				onMessage(model.Message{Type: model.MsgThinking, Sender: p.Profile().Name, Recipient: model.RecipientAll, Content: "error: " + err.Error(), Timestamp: time.Now()})
				continue
			}

			concluded := false
			for _, msg := range msgs {
				m.deliver(msg, onMessage)
				if msg.Type == model.MsgConclusion && p.Profile().Name == m.leader {
					concluded = true
				}
			}
			if concluded {
				terminated = "leader_conclusion"
				break roundLoop
			}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	perAgent := make(map[string]int)
	for _, msg := range m.history {
		perAgent[msg.Sender]++
	}

	return model.MeetingSummary{
		TopicID:              m.mc.Topic,
		TotalRounds:          actualRounds,
		TotalMessages:        len(m.history),
		Duration:             time.Since(m.started),
		PerAgentMessageCount: perAgent,
		History:              append([]model.Message(nil), m.history...),
		Terminated:           terminated,
	}
}

func (m *Meeting) replanLeader(ctx context.Context, onMessage func(model.Message)) {
	for _, p := range m.participants {
		if p.Profile().Name != m.leader {
			continue
		}
		turnCtx, cancel := context.WithTimeout(ctx, perCallTimeout)
		msgs, err := p.Think(turnCtx, m.mc, m.tail(20), m.mailboxFor(m.leader))
		cancel()
		if err != nil {
			return
		}
		for _, msg := range msgs {
			m.deliver(msg, onMessage)
		}
		return
	}
}

func (m *Meeting) deliver(msg model.Message, onMessage func(model.Message)) {
	m.mu.Lock()
	m.nextID++
	msg.ID = m.nextID
	m.history = append(m.history, msg)
	if msg.Recipient == model.RecipientAll {
		for name := range m.mailboxes {
			m.mailboxes[name] = append(m.mailboxes[name], msg)
		}
	} else {
		m.mailboxes[msg.Recipient] = append(m.mailboxes[msg.Recipient], msg)
	}
	m.mu.Unlock()

	if onMessage != nil {
		onMessage(msg)
	}
}

func (m *Meeting) tail(n int) []model.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.history) <= n {
		return append([]model.Message(nil), m.history...)
	}
	return append([]model.Message(nil), m.history[len(m.history)-n:]...)
}

func (m *Meeting) mailboxFor(name string) []model.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	box := m.mailboxes[name]
	m.mailboxes[name] = nil
	return append([]model.Message(nil), box...)
}

func (m *Meeting) totalMessages() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.history)
}
