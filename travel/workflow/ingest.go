package workflow

import (
	"context"

	"github.com/jeeves-cluster-organization/tripdesk/coreengine/envelope"
	"github.com/jeeves-cluster-organization/tripdesk/travel/text"
)

// Split breaks the raw message into atomic questions.
func (s *Stages) Split(_ context.Context, state *envelope.TurnState) (envelope.Update, error) {
	questions := text.SplitQuestions(state.RawText)
	return envelope.Update{Questions: questions}, nil
}

// Classify labels every atomic question. Several questions go to the model in
// one batch; a single one uses the cached per-question path.
func (s *Stages) Classify(ctx context.Context, state *envelope.TurnState) (envelope.Update, error) {
	classified := make([]envelope.ClassifiedQuestion, 0, len(state.Questions))
	if len(state.Questions) == 1 {
		q := state.Questions[0]
		classified = append(classified, envelope.ClassifiedQuestion{ID: q.ID, Class: s.reasoning.Classify(ctx, q.Text)})
		return envelope.Update{Classified: classified}, nil
	}

	labels := s.reasoning.ClassifyBatch(ctx, state.Questions)
	for _, q := range state.Questions {
		classified = append(classified, envelope.ClassifiedQuestion{ID: q.ID, Class: labels[q.ID]})
	}
	return envelope.Update{Classified: classified}, nil
}

// Partition buckets classified ids by label. Every id lands in exactly one
// bucket; an unknown label is dropped with a debug log.
func (s *Stages) Partition(_ context.Context, state *envelope.TurnState) (envelope.Update, error) {
	p := envelope.PartitionedQuestions{
		NonSkippable: []string{},
		Skippable: envelope.SkippableBuckets{
			Malformed: []string{},
			Forbidden: []string{},
			Hostile:   []string{},
		},
	}
	for _, c := range state.Classified {
		switch c.Class {
		case envelope.ClassAnswerable:
			p.NonSkippable = append(p.NonSkippable, c.ID)
		case envelope.ClassMalformed:
			p.Skippable.Malformed = append(p.Skippable.Malformed, c.ID)
		case envelope.ClassForbidden:
			p.Skippable.Forbidden = append(p.Skippable.Forbidden, c.ID)
		case envelope.ClassHostile:
			p.Skippable.Hostile = append(p.Skippable.Hostile, c.ID)
		default:
			s.logger.Debug("partition_dropped_question", "question_id", c.ID, "class", string(c.Class))
		}
	}
	return envelope.Update{Partition: &p}, nil
}
