package envelope

// AtomicQuestion is one fragment of the customer's message.
type AtomicQuestion struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// ClassifiedQuestion carries the routing label of an atomic question.
type ClassifiedQuestion struct {
	ID    string        `json:"id"`
	Class QuestionClass `json:"class"`
}

// SkippableBuckets holds ids that do not need a substantive answer.
type SkippableBuckets struct {
	Malformed []string `json:"malformed"`
	Forbidden []string `json:"forbidden"`
	Hostile   []string `json:"hostile"`
}

// Any reports whether at least one bucket is non-empty.
func (b SkippableBuckets) Any() bool {
	return len(b.Malformed) > 0 || len(b.Forbidden) > 0 || len(b.Hostile) > 0
}

// PartitionedQuestions splits classified ids into answerable and skippable sets.
type PartitionedQuestions struct {
	NonSkippable []string         `json:"non_skippable"`
	Skippable    SkippableBuckets `json:"skippable"`
}

// IDs returns every id in the partition, non-skippable first.
func (p PartitionedQuestions) IDs() []string {
	out := make([]string, 0, len(p.NonSkippable)+len(p.Skippable.Malformed)+len(p.Skippable.Forbidden)+len(p.Skippable.Hostile))
	out = append(out, p.NonSkippable...)
	out = append(out, p.Skippable.Malformed...)
	out = append(out, p.Skippable.Forbidden...)
	out = append(out, p.Skippable.Hostile...)
	return out
}

// StructuredQuestion is a non-skippable question with its category.
type StructuredQuestion struct {
	ID       string   `json:"id"`
	Category Category `json:"category"`
	Text     string   `json:"text"`
}

// TripContext is the trip the conversation is about.
type TripContext struct {
	TripID     string     `json:"trip_id"`
	Confidence Confidence `json:"confidence"`
}

// AnswerBlock groups questions for one handler.
type AnswerBlock struct {
	BlockID     string      `json:"block_id"`
	QuestionIDs []string    `json:"question_ids"`
	Handler     HandlerName `json:"handler"`
	AnswerStyle AnswerStyle `json:"answer_style"`
}

// AnswerPlan is the ordered set of blocks dispatched to handlers.
type AnswerPlan struct {
	AnswerBlocks []AnswerBlock `json:"answer_blocks"`
}

// BlocksFor returns the blocks assigned to handler h.
func (p *AnswerPlan) BlocksFor(h HandlerName) []AnswerBlock {
	if p == nil {
		return nil
	}
	var out []AnswerBlock
	for _, b := range p.AnswerBlocks {
		if b.Handler == h {
			out = append(out, b)
		}
	}
	return out
}

// HandlerOutput is the fact list produced for one block.
type HandlerOutput struct {
	BlockID              string   `json:"block_id"`
	Facts                []string `json:"facts"`
	RequiresConfirmation bool     `json:"requires_confirmation"`
}

// AnswerableProcessing is the aggregate owned by the non-skippable branch.
type AnswerableProcessing struct {
	StructuredQuestions []StructuredQuestion `json:"structured_questions"`
	NormalizedText      string               `json:"normalized_text"`
	TripContext         *TripContext         `json:"trip_context,omitempty"`
	AnswerPlan          *AnswerPlan          `json:"answer_plan,omitempty"`
	HandlerOutputs      []HandlerOutput      `json:"handler_outputs"`
	AnswerText          *string              `json:"answer_text,omitempty"`
}

// SkippableActions collects the messages produced by the skippable branch.
type SkippableActions struct {
	Clarifications   []string `json:"clarifications"`
	Boundaries       []string `json:"boundaries"`
	ToneSafeMessages []string `json:"tone_safe_messages"`
}

// MergedOutput is the final reply of a turn.
type MergedOutput struct {
	FinalText string `json:"final_text"`
}

// InteractionState records the decision stage reached by the turn.
type InteractionState struct {
	DecisionStage  DecisionStage `json:"decision_stage"`
	EscalationFlag bool          `json:"escalation_flag"`
}

// Message is one history entry. Timestamp is RFC 3339 and may be empty or
// invalid in persisted data.
type Message struct {
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`
}
