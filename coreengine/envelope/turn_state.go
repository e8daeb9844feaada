package envelope

import (
	"time"

	"github.com/google/uuid"
)

// ProcessingRecord is one stage execution in the audit trail.
type ProcessingRecord struct {
	Stage       string     `json:"stage"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMS  int        `json:"duration_ms"`
	Status      string     `json:"status"` // "running", "success", "error"
	Error       *string    `json:"error,omitempty"`
}

// StageError is a recorded stage failure.
type StageError struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// TurnState is the single typed state carried through one turn.
//
// History and Conversation are snapshots read at the start of the turn and
// are never written by stages. Every other field is filled by applying the
// Update a stage returns.
type TurnState struct {
	EnvelopeID string    `json:"envelope_id"`
	RequestID  string    `json:"request_id"`
	SessionID  string    `json:"session_id"`
	RawText    string    `json:"raw_text"`
	ReceivedAt time.Time `json:"received_at"`

	History      []Message          `json:"history"`
	Conversation *ConversationState `json:"conversation,omitempty"`

	Questions   []AtomicQuestion      `json:"questions"`
	Classified  []ClassifiedQuestion  `json:"classified"`
	Partition   *PartitionedQuestions `json:"partition,omitempty"`
	Answerable  AnswerableProcessing  `json:"answerable"`
	Skippable   SkippableActions      `json:"skippable"`
	Merged      *MergedOutput         `json:"merged,omitempty"`
	Interaction *InteractionState     `json:"interaction,omitempty"`
	NextAction  NextAction            `json:"next_action,omitempty"`
	CallSummary string                `json:"call_summary,omitempty"`

	CurrentStage      string             `json:"current_stage"`
	StageHopCount     int                `json:"stage_hop_count"`
	ProcessingHistory []ProcessingRecord `json:"processing_history"`
	Errors            []StageError       `json:"errors"`
	Terminated        bool               `json:"terminated"`
	TerminationReason string             `json:"termination_reason,omitempty"`
	CompletedAt       *time.Time         `json:"completed_at,omitempty"`
}

// NewTurnState creates the state for one inbound message.
func NewTurnState(sessionID, rawText string) *TurnState {
	return &TurnState{
		EnvelopeID:        "env_" + uuid.New().String()[:16],
		RequestID:         "req_" + uuid.New().String()[:16],
		SessionID:         sessionID,
		RawText:           rawText,
		ReceivedAt:        time.Now().UTC(),
		CurrentStage:      "start",
		ProcessingHistory: []ProcessingRecord{},
		Errors:            []StageError{},
	}
}

// =============================================================================
// Processing History
// =============================================================================

// RecordStageStart records the start of a stage.
func (s *TurnState) RecordStageStart(stage string) {
	s.ProcessingHistory = append(s.ProcessingHistory, ProcessingRecord{
		Stage:     stage,
		StartedAt: time.Now().UTC(),
		Status:    "running",
	})
	s.StageHopCount++
}

// RecordStageComplete closes the last running record of a stage.
func (s *TurnState) RecordStageComplete(stage, status string, errMsg *string) {
	for i := len(s.ProcessingHistory) - 1; i >= 0; i-- {
		rec := &s.ProcessingHistory[i]
		if rec.Stage == stage && rec.Status == "running" {
			now := time.Now().UTC()
			rec.CompletedAt = &now
			rec.Status = status
			rec.Error = errMsg
			rec.DurationMS = int(now.Sub(rec.StartedAt).Milliseconds())
			return
		}
	}
}

// RecordError appends a stage failure.
func (s *TurnState) RecordError(stage string, err error) {
	s.Errors = append(s.Errors, StageError{Stage: stage, Message: err.Error()})
}

// Terminate stops the turn.
func (s *TurnState) Terminate(reason string) {
	s.Terminated = true
	s.TerminationReason = reason
	now := time.Now().UTC()
	s.CompletedAt = &now
}

// =============================================================================
// Routing Signals
// =============================================================================

// Signal names understood by routing rules.
const (
	SignalHasNonSkippable = "has_non_skippable"
	SignalHasSkippable    = "has_skippable"
	SignalHasHandlerWork  = "has_handler_blocks"
	SignalHasMerged       = "has_merged_output"
	SignalEscalated       = "escalated"
)

// Signal evaluates a named routing condition against the state. Unknown names
// return nil so that no rule matches them.
func (s *TurnState) Signal(name string) any {
	switch name {
	case SignalHasNonSkippable:
		return s.Partition != nil && len(s.Partition.NonSkippable) > 0
	case SignalHasSkippable:
		return s.Partition != nil && s.Partition.Skippable.Any()
	case SignalHasHandlerWork:
		if s.Answerable.AnswerPlan == nil {
			return false
		}
		for _, b := range s.Answerable.AnswerPlan.AnswerBlocks {
			if b.Handler.Known() {
				return true
			}
		}
		return false
	case SignalHasMerged:
		return s.Merged != nil
	case SignalEscalated:
		return s.Interaction != nil && s.Interaction.EscalationFlag
	default:
		return nil
	}
}

// QuestionText returns the text of an atomic question by id.
func (s *TurnState) QuestionText(id string) (string, bool) {
	for _, q := range s.Questions {
		if q.ID == id {
			return q.Text, true
		}
	}
	return "", false
}

// FinalText returns the merged reply, or "" before merge.
func (s *TurnState) FinalText() string {
	if s.Merged == nil {
		return ""
	}
	return s.Merged.FinalText
}

// =============================================================================
// Clone
// =============================================================================

// Clone creates a deep copy so fan-out members never share mutable slices.
func (s *TurnState) Clone() *TurnState {
	clone := *s
	clone.History = append([]Message(nil), s.History...)
	clone.Conversation = s.Conversation.Clone()
	clone.Questions = append([]AtomicQuestion(nil), s.Questions...)
	clone.Classified = append([]ClassifiedQuestion(nil), s.Classified...)
	if s.Partition != nil {
		p := clonePartition(*s.Partition)
		clone.Partition = &p
	}
	clone.Answerable = cloneAnswerable(s.Answerable)
	clone.Skippable = cloneSkippable(s.Skippable)
	if s.Merged != nil {
		m := *s.Merged
		clone.Merged = &m
	}
	if s.Interaction != nil {
		i := *s.Interaction
		clone.Interaction = &i
	}
	clone.ProcessingHistory = append([]ProcessingRecord(nil), s.ProcessingHistory...)
	clone.Errors = append([]StageError(nil), s.Errors...)
	return &clone
}

func clonePartition(p PartitionedQuestions) PartitionedQuestions {
	return PartitionedQuestions{
		NonSkippable: copyStrings(p.NonSkippable),
		Skippable: SkippableBuckets{
			Malformed: copyStrings(p.Skippable.Malformed),
			Forbidden: copyStrings(p.Skippable.Forbidden),
			Hostile:   copyStrings(p.Skippable.Hostile),
		},
	}
}

func cloneAnswerable(a AnswerableProcessing) AnswerableProcessing {
	out := AnswerableProcessing{
		StructuredQuestions: append([]StructuredQuestion(nil), a.StructuredQuestions...),
		NormalizedText:      a.NormalizedText,
		HandlerOutputs:      cloneHandlerOutputs(a.HandlerOutputs),
	}
	if a.TripContext != nil {
		tc := *a.TripContext
		out.TripContext = &tc
	}
	if a.AnswerPlan != nil {
		out.AnswerPlan = clonePlan(a.AnswerPlan)
	}
	if a.AnswerText != nil {
		t := *a.AnswerText
		out.AnswerText = &t
	}
	return out
}

func clonePlan(p *AnswerPlan) *AnswerPlan {
	blocks := make([]AnswerBlock, len(p.AnswerBlocks))
	for i, b := range p.AnswerBlocks {
		b.QuestionIDs = copyStrings(b.QuestionIDs)
		blocks[i] = b
	}
	return &AnswerPlan{AnswerBlocks: blocks}
}

func cloneHandlerOutputs(in []HandlerOutput) []HandlerOutput {
	if in == nil {
		return nil
	}
	out := make([]HandlerOutput, len(in))
	for i, o := range in {
		o.Facts = copyStrings(o.Facts)
		out[i] = o
	}
	return out
}

func cloneSkippable(s SkippableActions) SkippableActions {
	return SkippableActions{
		Clarifications:   copyStrings(s.Clarifications),
		Boundaries:       copyStrings(s.Boundaries),
		ToneSafeMessages: copyStrings(s.ToneSafeMessages),
	}
}

func copyStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
