package envelope

// Update is the partial state a stage returns. Nil or empty fields leave the
// state untouched. Apply and Merge are the only places state is written.
//
// Merge rules:
//   - HandlerOutputs: union keyed by block_id, first seen wins.
//   - Skippable lists: appended.
//   - Everything else: set when present, later update wins.
type Update struct {
	Questions           []AtomicQuestion
	Classified          []ClassifiedQuestion
	Partition           *PartitionedQuestions
	StructuredQuestions []StructuredQuestion
	NormalizedText      *string
	TripContext         *TripContext
	AnswerPlan          *AnswerPlan
	HandlerOutputs      []HandlerOutput
	AnswerText          *string
	Skippable           SkippableActions
	Merged              *MergedOutput
	Interaction         *InteractionState
	NextAction          NextAction
	CallSummary         *string
}

// IsEmpty reports whether applying u would change nothing.
func (u Update) IsEmpty() bool {
	return u.Questions == nil && u.Classified == nil && u.Partition == nil &&
		u.StructuredQuestions == nil && u.NormalizedText == nil && u.TripContext == nil &&
		u.AnswerPlan == nil && len(u.HandlerOutputs) == 0 && u.AnswerText == nil &&
		len(u.Skippable.Clarifications) == 0 && len(u.Skippable.Boundaries) == 0 &&
		len(u.Skippable.ToneSafeMessages) == 0 && u.Merged == nil && u.Interaction == nil &&
		u.NextAction == "" && u.CallSummary == nil
}

// Merge combines two updates into one, as if a were applied before b.
func Merge(a, b Update) Update {
	out := a
	if b.Questions != nil {
		out.Questions = b.Questions
	}
	if b.Classified != nil {
		out.Classified = b.Classified
	}
	if b.Partition != nil {
		out.Partition = b.Partition
	}
	if b.StructuredQuestions != nil {
		out.StructuredQuestions = b.StructuredQuestions
	}
	if b.NormalizedText != nil {
		out.NormalizedText = b.NormalizedText
	}
	if b.TripContext != nil {
		out.TripContext = b.TripContext
	}
	if b.AnswerPlan != nil {
		out.AnswerPlan = b.AnswerPlan
	}
	out.HandlerOutputs = MergeHandlerOutputs(a.HandlerOutputs, b.HandlerOutputs)
	if b.AnswerText != nil {
		out.AnswerText = b.AnswerText
	}
	out.Skippable = appendSkippable(a.Skippable, b.Skippable)
	if b.Merged != nil {
		out.Merged = b.Merged
	}
	if b.Interaction != nil {
		out.Interaction = b.Interaction
	}
	if b.NextAction != "" {
		out.NextAction = b.NextAction
	}
	if b.CallSummary != nil {
		out.CallSummary = b.CallSummary
	}
	return out
}

// Apply writes u into the state.
func (s *TurnState) Apply(u Update) {
	if u.Questions != nil {
		s.Questions = u.Questions
	}
	if u.Classified != nil {
		s.Classified = u.Classified
	}
	if u.Partition != nil {
		p := clonePartition(*u.Partition)
		s.Partition = &p
	}
	if u.StructuredQuestions != nil {
		s.Answerable.StructuredQuestions = u.StructuredQuestions
	}
	if u.NormalizedText != nil {
		s.Answerable.NormalizedText = *u.NormalizedText
	}
	if u.TripContext != nil {
		tc := *u.TripContext
		s.Answerable.TripContext = &tc
	}
	if u.AnswerPlan != nil {
		s.Answerable.AnswerPlan = clonePlan(u.AnswerPlan)
	}
	s.Answerable.HandlerOutputs = MergeHandlerOutputs(s.Answerable.HandlerOutputs, u.HandlerOutputs)
	if u.AnswerText != nil {
		t := *u.AnswerText
		s.Answerable.AnswerText = &t
	}
	s.Skippable = appendSkippable(s.Skippable, u.Skippable)
	if u.Merged != nil {
		m := *u.Merged
		s.Merged = &m
	}
	if u.Interaction != nil {
		i := *u.Interaction
		s.Interaction = &i
	}
	if u.NextAction != "" {
		s.NextAction = u.NextAction
	}
	if u.CallSummary != nil {
		s.CallSummary = *u.CallSummary
	}
}

// MergeHandlerOutputs unions two output lists keyed by block_id. When both
// sides carry the same block the existing entry is kept.
func MergeHandlerOutputs(existing, incoming []HandlerOutput) []HandlerOutput {
	if len(incoming) == 0 {
		return existing
	}
	seen := make(map[string]bool, len(existing)+len(incoming))
	out := make([]HandlerOutput, 0, len(existing)+len(incoming))
	for _, o := range existing {
		if seen[o.BlockID] {
			continue
		}
		seen[o.BlockID] = true
		out = append(out, o)
	}
	for _, o := range incoming {
		if seen[o.BlockID] {
			continue
		}
		seen[o.BlockID] = true
		o.Facts = copyStrings(o.Facts)
		out = append(out, o)
	}
	return out
}

func appendSkippable(a, b SkippableActions) SkippableActions {
	if len(b.Clarifications) == 0 && len(b.Boundaries) == 0 && len(b.ToneSafeMessages) == 0 {
		return a
	}
	return SkippableActions{
		Clarifications:   append(copyStrings(a.Clarifications), b.Clarifications...),
		Boundaries:       append(copyStrings(a.Boundaries), b.Boundaries...),
		ToneSafeMessages: append(copyStrings(a.ToneSafeMessages), b.ToneSafeMessages...),
	}
}

// StringPtr returns a pointer to s for optional Update fields.
func StringPtr(s string) *string { return &s }
