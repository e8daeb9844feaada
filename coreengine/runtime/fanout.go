package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/jeeves-cluster-organization/tripdesk/coreengine/config"
	"github.com/jeeves-cluster-organization/tripdesk/coreengine/envelope"
	"github.com/jeeves-cluster-organization/tripdesk/coreengine/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("tripdesk/runtime")

// runFanOut runs every member of a fan-out stage against one snapshot of the
// state and returns only after all of them have finished. Member updates are
// merged in member order, so parallel and sequential runs produce the same
// state.
func (r *PipelineRunner) runFanOut(
	ctx context.Context,
	state *envelope.TurnState,
	stage *config.StageConfig,
	mode RunMode,
	outputChan chan StageOutput,
) (envelope.Update, error) {
	ctx, span := tracer.Start(ctx, "stage.fan_out")
	span.SetAttributes(
		attribute.String("tripdesk.stage.name", stage.Name),
		attribute.String("tripdesk.run_mode", string(mode)),
		attribute.Int("tripdesk.fan_out.members", len(stage.Members)),
	)
	defer span.End()

	startTime := time.Now()
	state.RecordStageStart(stage.Name)

	snapshot := state.Clone()
	members := stage.Members
	updates := make([]envelope.Update, len(members))
	branches := make([]*envelope.TurnState, len(members))

	runMember := func(ctx context.Context, i int) error {
		branch := snapshot.Clone()
		branch.ProcessingHistory = nil
		branch.Errors = nil
		branches[i] = branch

		update, err := r.agents[members[i]].Process(ctx, branch)
		if err != nil {
			return fmt.Errorf("member '%s': %w", members[i], err)
		}
		updates[i] = update
		return nil
	}

	var err error
	switch mode {
	case RunModeParallel:
		g, gctx := errgroup.WithContext(ctx)
		for i := range members {
			g.Go(func() error { return runMember(gctx, i) })
		}
		err = g.Wait()
	default:
		for i := range members {
			if err = runMember(ctx, i); err != nil {
				break
			}
		}
	}

	// Fold member audit trails back in member order.
	for _, branch := range branches {
		if branch == nil {
			continue
		}
		state.ProcessingHistory = append(state.ProcessingHistory, branch.ProcessingHistory...)
		state.Errors = append(state.Errors, branch.Errors...)
		state.StageHopCount += len(branch.ProcessingHistory)
	}

	durationMS := int(time.Since(startTime).Milliseconds())
	if err != nil {
		observability.RecordStageExecution(stage.Name, "error", durationMS)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		errStr := err.Error()
		state.RecordStageComplete(stage.Name, "error", &errStr)
		state.RecordError(stage.Name, err)

		if stage.ErrorNext != "" {
			state.CurrentStage = stage.ErrorNext
			return envelope.Update{}, nil
		}
		return envelope.Update{}, err
	}

	merged := envelope.Update{}
	for i, update := range updates {
		merged = envelope.Merge(merged, update)
		if outputChan != nil {
			outputChan <- StageOutput{Stage: members[i], Update: update}
		}
	}
	state.Apply(merged)
	state.CurrentStage = stage.DefaultNext

	observability.RecordStageExecution(stage.Name, "success", durationMS)
	span.SetStatus(codes.Ok, "success")
	state.RecordStageComplete(stage.Name, "success", nil)
	r.Logger.Info(fmt.Sprintf("%s_completed", stage.Name),
		"envelope_id", state.EnvelopeID,
		"members", len(members),
		"mode", string(mode),
		"duration_ms", durationMS,
		"next_stage", state.CurrentStage,
	)

	return merged, nil
}
