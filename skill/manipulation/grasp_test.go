package manipulation

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	contractx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/skill/contract"
	geometryx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/skill/geometry"
)

type sideRig struct {
	frames *fakeFrames
	ik     *fakeIK
	motion *fakeMotion
	speech *fakeSpeaker
	grasp  *SideGrasp
}

func newSideRig(t *testing.T) *sideRig {
	t.Helper()

	r := &sideRig{frames: &fakeFrames{}, ik: &fakeIK{}, motion: &fakeMotion{}, speech: &fakeSpeaker{}}
	transformer, err := NewPoseTransformer(r.frames, nil)
	if err != nil {
		t.Fatalf("new transformer: %v", err)
	}
	ik, err := NewIKClient(r.ik, "sdh_grasp_link")
	if err != nil {
		t.Fatalf("new ik client: %v", err)
	}
	r.grasp, err = NewSideGrasp(transformer, ik, r.motion, r.speech, DefaultConfig(), quiet())
	if err != nil {
		t.Fatalf("new side grasp: %v", err)
	}
	return r
}

func near(a, b r3.Vector) bool {
	return a.Sub(b).Norm() < 1e-9
}

func sameRotation(a, b quat.Number) bool {
	return quat.Abs(quat.Sub(a, b)) < 1e-9
}

func TestSideGraspPlanOffsets(t *testing.T) {
	t.Parallel()

	r := newSideRig(t)
	plan, err := r.grasp.Plan(context.Background(), objectAt("cup", 0.6, -0.2, 0.8))
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if !near(plan.Grasp.Position, r3.Vector{X: 0.6, Y: -0.2, Z: 0.9}) {
		t.Fatalf("unexpected grasp position: %v", plan.Grasp.Position)
	}
	if !near(plan.PreGrasp.Position, plan.Grasp.Position.Add(r3.Vector{Y: 0.10, Z: 0.20})) {
		t.Fatalf("unexpected pre-grasp position: %v", plan.PreGrasp.Position)
	}
	if !near(plan.PostGrasp.Position, plan.Grasp.Position.Add(r3.Vector{X: 0.05, Z: 0.17})) {
		t.Fatalf("unexpected post-grasp position: %v", plan.PostGrasp.Position)
	}
	if plan.Grasp.Frame != "/base_link" {
		t.Fatalf("unexpected frame: %s", plan.Grasp.Frame)
	}
	want := geometryx.FromEuler(-1.5708, 0, 2.481)
	if !sameRotation(plan.PreGrasp.Orientation, want) || !sameRotation(plan.PostGrasp.Orientation, want) {
		t.Fatalf("orientation override not applied: %v", plan.PreGrasp.Orientation)
	}
}

func TestSideGraspEndToEndHighObject(t *testing.T) {
	t.Parallel()

	r := newSideRig(t)
	ctx := context.Background()
	obj := objectAt("cup", 0.6, -0.2, 0.8)

	selector, err := NewGraspSelector(r.grasp.transformer, DefaultConfig(), quiet())
	if err != nil {
		t.Fatalf("new selector: %v", err)
	}
	strategy, err := selector.Execute(ctx, obj)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if strategy != contractx.OutcomeSide {
		t.Fatalf("expected side, got %s", strategy)
	}

	retry := &RetryState{Attempts: 1, MaxRetries: 1}
	outcome, err := r.grasp.Execute(ctx, obj, retry)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if outcome != contractx.OutcomeGrasped {
		t.Fatalf("expected grasped, got %s", outcome)
	}
	if retry.Attempts != 0 {
		t.Fatalf("expected attempts reset, got %d", retry.Attempts)
	}

	if len(r.ik.requests) != 3 {
		t.Fatalf("expected 3 ik solves, got %d", len(r.ik.requests))
	}
	if r.ik.requests[0].TipLink != "sdh_grasp_link" {
		t.Fatalf("unexpected tip link: %s", r.ik.requests[0].TipLink)
	}
	if r.ik.requests[0].Seed.Positions[0] != DefaultConfig().PregraspSeed[0] {
		t.Fatalf("first solve not seeded with pregrasp seed: %v", r.ik.requests[0].Seed.Positions)
	}
	if r.ik.requests[1].Seed.Positions[0] != 1 || r.ik.requests[2].Seed.Positions[0] != 2 {
		t.Fatal("solves must be seeded by the previous solution")
	}

	want := []string{
		"torso front",
		"arm j1,j2~",
		"sdh cylopen",
		"wait arm",
		"sdh cylclosed",
		"head front~",
		"arm j3,hold",
	}
	if !equalLog(r.motion.log, want) {
		t.Fatalf("unexpected motion log:\n got %v\nwant %v", r.motion.log, want)
	}
	if len(r.speech.said) != 1 || r.speech.said[0] != "I am grasping the cup now." {
		t.Fatalf("unexpected speech: %v", r.speech.said)
	}
}

func TestSideGraspRetrySequence(t *testing.T) {
	t.Parallel()

	r := newSideRig(t)
	r.ik.codes = []contractx.IKErrorCode{contractx.IKNoSolution, contractx.IKNoSolution}
	ctx := context.Background()
	obj := objectAt("cup", 0.6, -0.2, 0.8)
	retry := NewRetryState(1)

	for i, wantAttempts := range []int{1, 2} {
		outcome, err := r.grasp.Execute(ctx, obj, retry)
		if err != nil {
			t.Fatalf("call %d: %v", i+1, err)
		}
		if outcome != contractx.OutcomeNotGrasped {
			t.Fatalf("call %d: expected not_grasped, got %s", i+1, outcome)
		}
		if retry.Attempts != wantAttempts {
			t.Fatalf("call %d: expected attempts %d, got %d", i+1, wantAttempts, retry.Attempts)
		}
	}
	if len(r.ik.requests) != 2 {
		t.Fatalf("each failed attempt must stop at the first solve, got %d solves", len(r.ik.requests))
	}
	if len(r.motion.log) != 0 {
		t.Fatalf("no motion expected before retries run out: %v", r.motion.log)
	}

	outcome, err := r.grasp.Execute(ctx, obj, retry)
	if err != nil {
		t.Fatalf("call 3: %v", err)
	}
	if outcome != contractx.OutcomeNotGrasped {
		t.Fatalf("call 3: expected not_grasped, got %s", outcome)
	}
	if retry.Attempts != 0 {
		t.Fatalf("call 3: expected attempts reset, got %d", retry.Attempts)
	}
	if len(r.ik.requests) != 2 {
		t.Fatalf("call 3 must not solve ik, got %d solves", len(r.ik.requests))
	}
	want := []string{"torso home~", "wait torso", "arm look_at_table-to-folded~"}
	if !equalLog(r.motion.log, want) {
		t.Fatalf("unexpected retreat: %v", r.motion.log)
	}
}

func TestSideGraspIKFailureStopsAtFailingStage(t *testing.T) {
	t.Parallel()

	r := newSideRig(t)
	r.ik.codes = []contractx.IKErrorCode{contractx.IKSuccess, contractx.IKOtherFailure}
	retry := NewRetryState(1)

	outcome, err := r.grasp.Execute(context.Background(), objectAt("cup", 0.6, 0, 0.8), retry)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != contractx.OutcomeNotGrasped {
		t.Fatalf("expected not_grasped, got %s", outcome)
	}
	if len(r.ik.requests) != 2 {
		t.Fatalf("post-grasp must not be solved after a grasp failure, got %d solves", len(r.ik.requests))
	}
	if retry.Attempts != 1 {
		t.Fatalf("expected attempts 1, got %d", retry.Attempts)
	}
}

func TestSideGraspTransformFailure(t *testing.T) {
	t.Parallel()

	r := newSideRig(t)
	r.frames.err = errFake
	retry := NewRetryState(1)

	outcome, err := r.grasp.Execute(context.Background(), objectAt("cup", 0.6, 0, 0.8), retry)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != contractx.OutcomeFailed {
		t.Fatalf("expected failed, got %s", outcome)
	}
	if len(r.ik.requests) != 0 || retry.Attempts != 0 {
		t.Fatalf("transform failure must not solve or count: solves=%d attempts=%d", len(r.ik.requests), retry.Attempts)
	}
}

func TestSideGraspActuationFailure(t *testing.T) {
	t.Parallel()

	r := newSideRig(t)
	r.motion.failOn = "sdh cylopen"
	retry := &RetryState{Attempts: 1, MaxRetries: 1}

	outcome, err := r.grasp.Execute(context.Background(), objectAt("cup", 0.6, 0, 0.8), retry)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != contractx.OutcomeFailed {
		t.Fatalf("expected failed, got %s", outcome)
	}
	want := []string{"torso front", "arm j1,j2~", "sdh cylopen"}
	if !equalLog(r.motion.log, want) {
		t.Fatalf("commands after the failure must be skipped: %v", r.motion.log)
	}
	if retry.Attempts != 1 {
		t.Fatalf("actuation failure must not touch attempts, got %d", retry.Attempts)
	}
}

func TestSideGraspRequiresRetryState(t *testing.T) {
	t.Parallel()

	r := newSideRig(t)
	_, err := r.grasp.Execute(context.Background(), objectAt("cup", 0, 0, 0.8), nil)
	if !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestSideGraspCancelledContext(t *testing.T) {
	t.Parallel()

	r := newSideRig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.grasp.Execute(ctx, objectAt("cup", 0, 0, 0.8), NewRetryState(1))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

type topRig struct {
	ik     *fakeIK
	motion *fakeMotion
	grasp  *TopGrasp
}

func newTopRig(t *testing.T) *topRig {
	t.Helper()

	r := &topRig{ik: &fakeIK{}, motion: &fakeMotion{}}
	transformer, err := NewPoseTransformer(&fakeFrames{}, nil)
	if err != nil {
		t.Fatalf("new transformer: %v", err)
	}
	ik, err := NewIKClient(r.ik, "sdh_grasp_link")
	if err != nil {
		t.Fatalf("new ik client: %v", err)
	}
	r.grasp, err = NewTopGrasp(transformer, ik, r.motion, &fakeSpeaker{}, DefaultConfig(), quiet())
	if err != nil {
		t.Fatalf("new top grasp: %v", err)
	}
	return r
}

func TestTopGraspLowObjectNoIKSolution(t *testing.T) {
	t.Parallel()

	r := newTopRig(t)
	r.ik.codes = []contractx.IKErrorCode{contractx.IKNoSolution}
	retry := NewRetryState(1)

	outcome, err := r.grasp.Execute(context.Background(), objectAt("box", 0.5, 0, 0.3), retry)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != contractx.OutcomeNoIKSolution {
		t.Fatalf("expected no_ik_solution, got %s", outcome)
	}
	if retry.Attempts != 1 {
		t.Fatalf("expected attempts 1, got %d", retry.Attempts)
	}
	if len(r.motion.log) != 0 {
		t.Fatalf("unexpected motion: %v", r.motion.log)
	}
}

func TestTopGraspSucceeded(t *testing.T) {
	t.Parallel()

	r := newTopRig(t)
	retry := &RetryState{Attempts: 1, MaxRetries: 1}
	obj := objectAt("box", 0.5, 0.1, 0.3)

	outcome, err := r.grasp.Execute(context.Background(), obj, retry)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != contractx.OutcomeSucceeded {
		t.Fatalf("expected succeeded, got %s", outcome)
	}
	if retry.Attempts != 0 {
		t.Fatalf("expected attempts reset, got %d", retry.Attempts)
	}

	grasp := r.ik.requests[1].Target
	if !near(grasp.Position, r3.Vector{X: 0.5, Y: 0.1, Z: 0.3}) {
		t.Fatalf("top grasp must not offset the object: %v", grasp.Position)
	}
	if !near(r.ik.requests[0].Target.Position, grasp.Position.Add(r3.Vector{Z: 0.18})) {
		t.Fatalf("unexpected pre-grasp: %v", r.ik.requests[0].Target.Position)
	}
	if !near(r.ik.requests[2].Target.Position, grasp.Position.Add(r3.Vector{X: 0.05, Z: 0.15})) {
		t.Fatalf("unexpected post-grasp: %v", r.ik.requests[2].Target.Position)
	}
	if r.ik.requests[0].Seed.Positions[0] != DefaultConfig().PregraspTopSeed[0] {
		t.Fatalf("expected top seed, got %v", r.ik.requests[0].Seed.Positions)
	}

	want := []string{
		"torso home",
		"arm j1,j2~",
		"sdh spheropen",
		"wait arm",
		"sdh spherclosed",
		"head front~",
		"arm j3,hold",
	}
	if !equalLog(r.motion.log, want) {
		t.Fatalf("unexpected motion log:\n got %v\nwant %v", r.motion.log, want)
	}
}

func TestTopGraspNoMoreRetries(t *testing.T) {
	t.Parallel()

	r := newTopRig(t)
	retry := &RetryState{Attempts: 2, MaxRetries: 1}

	outcome, err := r.grasp.Execute(context.Background(), objectAt("box", 0.5, 0, 0.3), retry)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != contractx.OutcomeNoMoreRetries {
		t.Fatalf("expected no_more_retries, got %s", outcome)
	}
	if retry.Attempts != 0 || len(r.ik.requests) != 0 {
		t.Fatalf("expected reset without solving: attempts=%d solves=%d", retry.Attempts, len(r.ik.requests))
	}
}

type plannedRig struct {
	poses    *fakePoses
	ik       *fakeIK
	motion   *fakeMotion
	speech   *fakeSpeaker
	light    *fakeLight
	detector *fakeDetector
	grasp    *SidePlannedGrasp
}

func newPlannedRig(t *testing.T) *plannedRig {
	t.Helper()

	r := &plannedRig{
		poses:    &fakePoses{},
		ik:       &fakeIK{},
		motion:   &fakeMotion{},
		speech:   &fakeSpeaker{},
		light:    &fakeLight{},
		detector: &fakeDetector{grasped: true},
	}
	transformer, err := NewPoseTransformer(nil, r.poses)
	if err != nil {
		t.Fatalf("new transformer: %v", err)
	}
	ik, err := NewIKClient(r.ik, "sdh_grasp_link")
	if err != nil {
		t.Fatalf("new ik client: %v", err)
	}
	r.grasp, err = NewSidePlannedGrasp(transformer, ik, r.motion, r.speech, r.light, r.detector, DefaultConfig(), quiet())
	if err != nil {
		t.Fatalf("new planned grasp: %v", err)
	}
	return r
}

func TestSidePlannedGraspConfirmed(t *testing.T) {
	t.Parallel()

	r := newPlannedRig(t)
	retry := &RetryState{Attempts: 1, MaxRetries: 1}
	obj := objectAt("cup", 0.4, 0.1, 0.7)

	outcome, err := r.grasp.Execute(context.Background(), obj, retry)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != contractx.OutcomeGrasped {
		t.Fatalf("expected grasped, got %s", outcome)
	}
	if retry.Attempts != 0 {
		t.Fatalf("expected attempts reset, got %d", retry.Attempts)
	}

	req := r.poses.requests[0]
	if req.TipLink != "arm_7_link" || req.RootLink != "arm_base_link" || req.Origin.Frame != "sdh_grasp_link" {
		t.Fatalf("unexpected transform request: %+v", req)
	}
	if req.OrientationOverride != geometryx.FromEuler(-1.552, -0.042, 2.481) {
		t.Fatalf("unexpected orientation override: %v", req.OrientationOverride)
	}

	grasp := r.ik.requests[1].Target.Position
	if math.Abs(grasp.Z-(0.7+0.06)) > 1e-9 {
		t.Fatalf("grasp must be raised by half the object height, got z=%v", grasp.Z)
	}
	seed := r.ik.requests[0].Seed
	if len(seed.Names) != 7 || seed.Names[0] != "arm_1_joint" {
		t.Fatalf("expected named seed, got %v", seed.Names)
	}

	wantLights := []contractx.Color{contractx.ColorBlue, contractx.ColorYellow}
	if len(r.light.colors) != len(wantLights) || r.light.colors[0] != wantLights[0] || r.light.colors[1] != wantLights[1] {
		t.Fatalf("unexpected light sequence: %v", r.light.colors)
	}
	want := []string{
		"planned arm j1~",
		"sdh cylopen~",
		"wait arm",
		"arm j2",
		"sdh cylclosed",
		"head front~",
		"torso front",
		"arm j3",
		"arm hold",
	}
	if !equalLog(r.motion.log, want) {
		t.Fatalf("unexpected motion log:\n got %v\nwant %v", r.motion.log, want)
	}
}

func TestSidePlannedGraspNotConfirmed(t *testing.T) {
	t.Parallel()

	r := newPlannedRig(t)
	r.detector.grasped = false
	retry := NewRetryState(1)

	outcome, err := r.grasp.Execute(context.Background(), objectAt("cup", 0.4, 0.1, 0.7), retry)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != contractx.OutcomeNotGrasped {
		t.Fatalf("expected not_grasped, got %s", outcome)
	}
	if retry.Attempts != 0 {
		t.Fatalf("expected attempts reset before detection, got %d", retry.Attempts)
	}
	last := r.speech.said[len(r.speech.said)-1]
	if last != "I could not grasp cup" {
		t.Fatalf("unexpected announcement: %q", last)
	}
}

func TestSidePlannedGraspLightSeverity(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		code contractx.IKErrorCode
		want []contractx.Color
	}{
		{name: "no solution", code: contractx.IKNoSolution, want: []contractx.Color{contractx.ColorBlue}},
		{name: "other failure", code: contractx.IKOtherFailure, want: []contractx.Color{contractx.ColorBlue, contractx.ColorRed}},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			r := newPlannedRig(t)
			r.ik.codes = []contractx.IKErrorCode{tc.code}
			retry := NewRetryState(1)

			outcome, err := r.grasp.Execute(context.Background(), objectAt("cup", 0.4, 0.1, 0.7), retry)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if outcome != contractx.OutcomeNotGrasped {
				t.Fatalf("expected not_grasped, got %s", outcome)
			}
			if retry.Attempts != 1 {
				t.Fatalf("expected attempts 1, got %d", retry.Attempts)
			}
			if len(r.light.colors) != len(tc.want) {
				t.Fatalf("unexpected light sequence: %v", r.light.colors)
			}
			for i := range tc.want {
				if r.light.colors[i] != tc.want[i] {
					t.Fatalf("unexpected light sequence: %v", r.light.colors)
				}
			}
		})
	}
}

func TestSidePlannedGraspTransformFailure(t *testing.T) {
	t.Parallel()

	r := newPlannedRig(t)
	r.poses.err = errFake
	retry := &RetryState{Attempts: 1, MaxRetries: 1}

	outcome, err := r.grasp.Execute(context.Background(), objectAt("cup", 0.4, 0.1, 0.7), retry)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != contractx.OutcomeFailed {
		t.Fatalf("expected failed, got %s", outcome)
	}
	if retry.Attempts != 0 {
		t.Fatalf("expected attempts reset, got %d", retry.Attempts)
	}
	if len(r.light.colors) != 1 || r.light.colors[0] != contractx.ColorRed {
		t.Fatalf("expected red light, got %v", r.light.colors)
	}
}

func TestSidePlannedGraspRetryExhaustedTurnsYellow(t *testing.T) {
	t.Parallel()

	r := newPlannedRig(t)
	retry := &RetryState{Attempts: 2, MaxRetries: 1}

	outcome, err := r.grasp.Execute(context.Background(), objectAt("cup", 0.4, 0.1, 0.7), retry)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != contractx.OutcomeNotGrasped {
		t.Fatalf("expected not_grasped, got %s", outcome)
	}
	if len(r.light.colors) != 1 || r.light.colors[0] != contractx.ColorYellow {
		t.Fatalf("expected yellow light, got %v", r.light.colors)
	}
	if len(r.poses.requests) != 0 {
		t.Fatal("exhausted retries must not transform")
	}
}
