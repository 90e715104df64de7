package progression_test

import (
	"context"
	"testing"
	"time"

	"github.com/dojokit/beltway/core"
	"github.com/dojokit/beltway/core/progression"
	"github.com/dojokit/beltway/core/rank"
	"github.com/dojokit/beltway/storage/database/dummy"
	testutil "github.com/dojokit/beltway/tests"
)

const (
	student1 = "5c9b6a3e-7a68-4f57-9e5a-111111111111"
	student2 = "5c9b6a3e-7a68-4f57-9e5a-222222222222"
)

type testEnv struct {
	svc      *progression.Service
	rankSvc  *rank.Service
	rankRepo rank.Repository
	repo     progression.Repository
	clock    *testutil.FixedClock
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	db, err := dummy.Open()
	if err != nil {
		t.Fatalf("dummy.Open() failed: %v", err)
	}

	clock := &testutil.FixedClock{T: time.Date(2021, 6, 1, 10, 0, 0, 0, time.UTC)}
	rankRepo := dummy.NewRankRepository(db)
	rankSvc := rank.NewService(rankRepo, clock)
	repo := dummy.NewProgressionRepository(db)
	return &testEnv{
		svc:      progression.NewService(db, repo, rankSvc, clock),
		rankSvc:  rankSvc,
		rankRepo: rankRepo,
		repo:     repo,
		clock:    clock,
	}
}

func (env *testEnv) start(t *testing.T, studentID string, rnk rank.Rank, degrees int) progression.Record {
	t.Helper()
	rec, err := env.svc.Start(context.Background(), progression.StartProgression{
		StudentID:      studentID,
		RankID:         rnk.ID,
		InitialDegrees: degrees,
	})
	if err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	return rec
}

func isValidationErr(err error) bool {
	_, ok := err.(*core.ValidationError)
	return ok
}

func TestService_Start(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	white, _, _ := testutil.CreateAdultLadder(t, env.rankRepo)

	rec := env.start(t, student1, white, 2)
	if !rec.IsActive {
		t.Error("Start() record should be active")
	}
	if rec.Degrees != 2 {
		t.Errorf("Start() degrees = %d, want 2", rec.Degrees)
	}
	if rec.CycleAttendance != 0 || rec.TotalAttendance != 0 {
		t.Error("Start() counters should be zero")
	}

	// the imported stripes are backfilled in the ledger
	grants, err := env.svc.DegreeHistory(ctx, student1)
	if err != nil {
		t.Fatalf("DegreeHistory() failed: %v", err)
	}
	if len(grants) != 2 {
		t.Fatalf("DegreeHistory() returned %d grants, want 2", len(grants))
	}
	for _, grant := range grants {
		if grant.Origin != progression.GrantOriginImported {
			t.Errorf("grant origin = %s, want IMPORTED", grant.Origin)
		}
	}

	// the first history entry has no origin rank
	hist, err := env.svc.RankHistory(ctx, student1)
	if err != nil {
		t.Fatalf("RankHistory() failed: %v", err)
	}
	if len(hist) != 1 {
		t.Fatalf("RankHistory() returned %d entries, want 1", len(hist))
	}
	if hist[0].FromRankID.Valid {
		t.Error("first history entry should have a null origin rank")
	}
	if hist[0].ToRankID != white.ID {
		t.Errorf("history ToRankID = %s, want white", hist[0].ToRankID)
	}

	// a second active record is rejected
	_, err = env.svc.Start(ctx, progression.StartProgression{StudentID: student1, RankID: white.ID})
	if !isValidationErr(err) {
		t.Errorf("Start() twice error = %v, want a validation error", err)
	}
}

func TestService_Start_capsInitialDegrees(t *testing.T) {
	env := setup(t)
	white, _, _ := testutil.CreateAdultLadder(t, env.rankRepo)

	rec := env.start(t, student1, white, 10)
	if rec.Degrees != white.MaxDegrees {
		t.Errorf("Start() degrees = %d, want capped at %d", rec.Degrees, white.MaxDegrees)
	}
}

func TestService_RecordAttendance(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	white, _, _ := testutil.CreateAdultLadder(t, env.rankRepo) // 20 classes per degree
	env.start(t, student1, white, 0)

	// 19 classes: no degree yet
	for i := 0; i < 19; i++ {
		res, err := env.svc.RecordAttendance(ctx, student1)
		if err != nil {
			t.Fatalf("RecordAttendance() #%d failed: %v", i+1, err)
		}
		if res.DegreeGranted {
			t.Fatalf("RecordAttendance() #%d granted a degree early", i+1)
		}
	}

	// the 20th grants a stripe and resets the cycle
	res, err := env.svc.RecordAttendance(ctx, student1)
	if err != nil {
		t.Fatalf("RecordAttendance() #20 failed: %v", err)
	}
	if !res.DegreeGranted {
		t.Fatal("RecordAttendance() #20 should grant a degree")
	}
	if res.Record.Degrees != 1 {
		t.Errorf("degrees = %d, want 1", res.Record.Degrees)
	}
	if res.Record.CycleAttendance != 0 {
		t.Errorf("cycle attendance = %d, want 0 after the grant", res.Record.CycleAttendance)
	}
	if res.Record.TotalAttendance != 20 {
		t.Errorf("total attendance = %d, want 20", res.Record.TotalAttendance)
	}

	grants, err := env.svc.DegreeHistory(ctx, student1)
	if err != nil {
		t.Fatalf("DegreeHistory() failed: %v", err)
	}
	if len(grants) != 1 {
		t.Fatalf("DegreeHistory() returned %d grants, want 1", len(grants))
	}
	if grants[0].Origin != progression.GrantOriginAutomatic {
		t.Errorf("grant origin = %s, want AUTOMATIC", grants[0].Origin)
	}
	if grants[0].Issuer.Valid {
		t.Error("automatic grant should have a null issuer")
	}
}

func TestService_RecordAttendance_maxDegrees(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	white, _, _ := testutil.CreateAdultLadder(t, env.rankRepo)
	env.start(t, student1, white, white.MaxDegrees)

	// counters keep rising but no further degree is granted
	var last progression.AttendanceResult
	for i := 0; i < 25; i++ {
		var err error
		if last, err = env.svc.RecordAttendance(ctx, student1); err != nil {
			t.Fatalf("RecordAttendance() failed: %v", err)
		}
		if last.DegreeGranted {
			t.Fatal("RecordAttendance() granted a degree past the cap")
		}
	}
	if last.Record.Degrees != white.MaxDegrees {
		t.Errorf("degrees = %d, want %d", last.Record.Degrees, white.MaxDegrees)
	}
	if last.Record.CycleAttendance != 25 {
		t.Errorf("cycle attendance = %d, want 25", last.Record.CycleAttendance)
	}
	if !last.Record.ReadyForPromotion() {
		t.Error("record should be ready for promotion at the degree cap")
	}
}

func TestService_CancelAttendance(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	white, _, _ := testutil.CreateAdultLadder(t, env.rankRepo)
	env.start(t, student1, white, 0)

	// cancelling on a fresh record floors at zero
	rec, err := env.svc.CancelAttendance(ctx, student1)
	if err != nil {
		t.Fatalf("CancelAttendance() failed: %v", err)
	}
	if rec.CycleAttendance != 0 || rec.TotalAttendance != 0 {
		t.Errorf("counters = (%d, %d), want floored at 0", rec.CycleAttendance, rec.TotalAttendance)
	}

	// a granted degree is never retracted
	for i := 0; i < 20; i++ {
		if _, err = env.svc.RecordAttendance(ctx, student1); err != nil {
			t.Fatalf("RecordAttendance() failed: %v", err)
		}
	}
	rec, err = env.svc.CancelAttendance(ctx, student1)
	if err != nil {
		t.Fatalf("CancelAttendance() failed: %v", err)
	}
	if rec.Degrees != 1 {
		t.Errorf("degrees = %d, want the granted degree kept", rec.Degrees)
	}
	if rec.TotalAttendance != 19 {
		t.Errorf("total attendance = %d, want 19", rec.TotalAttendance)
	}
}

func TestService_GrantDegree(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	white, _, _ := testutil.CreateAdultLadder(t, env.rankRepo)
	env.start(t, student1, white, 0)

	// build up some cycle attendance first
	for i := 0; i < 5; i++ {
		if _, err := env.svc.RecordAttendance(ctx, student1); err != nil {
			t.Fatalf("RecordAttendance() failed: %v", err)
		}
	}

	grant, err := env.svc.GrantDegree(ctx, progression.GrantDegree{
		StudentID: student1,
		Issuer:    "professor-mendes",
		Note:      "exceptional tournament performance",
	})
	if err != nil {
		t.Fatalf("GrantDegree() failed: %v", err)
	}
	if grant.Origin != progression.GrantOriginManual {
		t.Errorf("grant origin = %s, want MANUAL", grant.Origin)
	}
	if grant.Issuer.String != "professor-mendes" {
		t.Errorf("grant issuer = %s, want professor-mendes", grant.Issuer.String)
	}

	// the manual grant resets the cycle
	status, err := env.svc.Status(ctx, student1)
	if err != nil {
		t.Fatalf("Status() failed: %v", err)
	}
	if status.Degrees != 1 {
		t.Errorf("degrees = %d, want 1", status.Degrees)
	}
	if status.CycleAttendance != 0 {
		t.Errorf("cycle attendance = %d, want 0 after a manual grant", status.CycleAttendance)
	}
	if status.TotalAttendance != 5 {
		t.Errorf("total attendance = %d, want untouched 5", status.TotalAttendance)
	}
}

func TestService_GrantDegree_maxReached(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	white, _, _ := testutil.CreateAdultLadder(t, env.rankRepo)
	env.start(t, student1, white, white.MaxDegrees)

	_, err := env.svc.GrantDegree(ctx, progression.GrantDegree{StudentID: student1, Issuer: "coach"})
	if !isValidationErr(err) {
		t.Fatalf("GrantDegree() error = %v, want a validation error", err)
	}
	if err.Error() != progression.ErrMaxDegreesReached.Error() {
		t.Errorf("GrantDegree() error = %q, want %q", err, progression.ErrMaxDegreesReached)
	}
}

func TestService_RequestPromotion(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	white, blue, _ := testutil.CreateAdultLadder(t, env.rankRepo)
	grey := testutil.CreateRank(t, env.rankRepo, "CINZA", "Faixa Cinza", rank.CategoryYouth, 2, 4, 15)
	env.start(t, student1, white, 4)

	// cross-category target is rejected on the target field
	_, err := env.svc.RequestPromotion(ctx, progression.NewPromotionRequest{
		StudentID: student1, TargetRank: grey.ID, RequestedBy: "coach",
	})
	vErr, ok := err.(*core.ValidationError)
	if !ok {
		t.Fatalf("RequestPromotion() error = %v, want a validation error", err)
	}
	if len(vErr.Fields) != 1 || vErr.Fields[0].Field != "target_rank_id" {
		t.Errorf("fields = %+v, want a single error on 'target_rank_id'", vErr.Fields)
	}

	req, err := env.svc.RequestPromotion(ctx, progression.NewPromotionRequest{
		StudentID: student1, TargetRank: blue.ID, RequestedBy: "coach",
	})
	if err != nil {
		t.Fatalf("RequestPromotion() failed: %v", err)
	}
	if req.Status != progression.StatusPending {
		t.Errorf("status = %s, want PENDING", req.Status)
	}
	if req.FromRankID != white.ID || req.ToRankID != blue.ID {
		t.Error("request does not record the white -> blue transition")
	}
	if req.DecidedAt.Valid || req.DecidedBy.Valid {
		t.Error("a pending request should have no decision stamp")
	}

	// a second request for the same target is rejected while one is pending
	_, err = env.svc.RequestPromotion(ctx, progression.NewPromotionRequest{
		StudentID: student1, TargetRank: blue.ID, RequestedBy: "coach",
	})
	if !isValidationErr(err) {
		t.Fatalf("duplicate RequestPromotion() error = %v, want a validation error", err)
	}
	if err.Error() != progression.ErrDuplicateRequest.Error() {
		t.Errorf("duplicate RequestPromotion() error = %q, want %q", err, progression.ErrDuplicateRequest)
	}
}

func TestService_ApprovePromotion(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	white, blue, _ := testutil.CreateAdultLadder(t, env.rankRepo)
	env.start(t, student1, white, 4)

	for i := 0; i < 10; i++ {
		if _, err := env.svc.RecordAttendance(ctx, student1); err != nil {
			t.Fatalf("RecordAttendance() failed: %v", err)
		}
	}

	req, err := env.svc.RequestPromotion(ctx, progression.NewPromotionRequest{
		StudentID: student1, TargetRank: blue.ID, RequestedBy: "coach",
	})
	if err != nil {
		t.Fatalf("RequestPromotion() failed: %v", err)
	}

	env.clock.T = env.clock.T.Add(24 * time.Hour)
	res, err := env.svc.ApprovePromotion(ctx, req.ID, progression.Decision{DecidedBy: "professor-mendes"})
	if err != nil {
		t.Fatalf("ApprovePromotion() failed: %v", err)
	}

	// the request carries the decision
	if res.Request.Status != progression.StatusApproved {
		t.Errorf("status = %s, want APPROVED", res.Request.Status)
	}
	if res.Request.DecidedBy.String != "professor-mendes" {
		t.Errorf("decided by = %s, want professor-mendes", res.Request.DecidedBy.String)
	}
	if !res.Request.DecidedAt.Valid {
		t.Error("approved request should have a decision timestamp")
	}

	// the new record starts the target rank from scratch
	if res.NewRecord.RankID != blue.ID {
		t.Errorf("new record rank = %s, want blue", res.NewRecord.RankID)
	}
	if res.NewRecord.Degrees != 0 || res.NewRecord.CycleAttendance != 0 || res.NewRecord.TotalAttendance != 0 {
		t.Error("new record counters should be zeroed")
	}
	if !res.NewRecord.IsActive {
		t.Error("new record should be active")
	}

	// exactly one active record remains, at the new rank
	status, err := env.svc.Status(ctx, student1)
	if err != nil {
		t.Fatalf("Status() failed: %v", err)
	}
	if status.Rank.ID != blue.ID {
		t.Errorf("active rank = %s, want blue", status.Rank.Code)
	}

	// the transition is in the rank history
	hist, err := env.svc.RankHistory(ctx, student1)
	if err != nil {
		t.Fatalf("RankHistory() failed: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("RankHistory() returned %d entries, want 2", len(hist))
	}
	if hist[0].FromRankID.String != white.ID || hist[0].ToRankID != blue.ID {
		t.Error("latest history entry does not record white -> blue")
	}

	// a decided request cannot be decided again
	_, err = env.svc.ApprovePromotion(ctx, req.ID, progression.Decision{DecidedBy: "professor-mendes"})
	if !isValidationErr(err) || err.Error() != progression.ErrAlreadyDecided.Error() {
		t.Errorf("second ApprovePromotion() error = %v, want already-decided", err)
	}

	// an approved request blocks re-requests for the same target forever
	_, err = env.svc.RequestPromotion(ctx, progression.NewPromotionRequest{
		StudentID: student1, TargetRank: blue.ID, RequestedBy: "coach",
	})
	if !isValidationErr(err) || err.Error() != progression.ErrDuplicateRequest.Error() {
		t.Errorf("re-request after approval error = %v, want duplicate", err)
	}
}

func TestService_CancelPromotion(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	white, blue, _ := testutil.CreateAdultLadder(t, env.rankRepo)
	env.start(t, student1, white, 4)

	req, err := env.svc.RequestPromotion(ctx, progression.NewPromotionRequest{
		StudentID: student1, TargetRank: blue.ID, RequestedBy: "coach",
	})
	if err != nil {
		t.Fatalf("RequestPromotion() failed: %v", err)
	}

	cancelled, err := env.svc.CancelPromotion(ctx, req.ID, progression.Decision{DecidedBy: "front-desk", Note: "student injured"})
	if err != nil {
		t.Fatalf("CancelPromotion() failed: %v", err)
	}
	if cancelled.Status != progression.StatusCancelled {
		t.Errorf("status = %s, want CANCELLED", cancelled.Status)
	}
	if !cancelled.DecidedAt.Valid || cancelled.DecidedBy.String != "front-desk" {
		t.Error("cancelled request should carry the decision stamp")
	}

	// the student's record is untouched
	status, err := env.svc.Status(ctx, student1)
	if err != nil {
		t.Fatalf("Status() failed: %v", err)
	}
	if status.Rank.ID != white.ID {
		t.Errorf("active rank = %s, want still white", status.Rank.Code)
	}

	// a cancelled request frees the (student, target) pair
	if _, err = env.svc.RequestPromotion(ctx, progression.NewPromotionRequest{
		StudentID: student1, TargetRank: blue.ID, RequestedBy: "coach",
	}); err != nil {
		t.Errorf("re-request after cancellation failed: %v", err)
	}
}

func TestService_Status(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	_, _, purple := testutil.CreateAdultLadder(t, env.rankRepo)
	env.start(t, student1, purple, 1)

	for i := 0; i < 12; i++ {
		if _, err := env.svc.RecordAttendance(ctx, student1); err != nil {
			t.Fatalf("RecordAttendance() failed: %v", err)
		}
	}

	status, err := env.svc.Status(ctx, student1)
	if err != nil {
		t.Fatalf("Status() failed: %v", err)
	}
	testutil.JSONEqual(t, progression.Status{
		Rank:             purple,
		Degrees:          1,
		MaxDegrees:       4,
		CycleAttendance:  12,
		ClassesPerDegree: 30,
		RemainingClasses: 18,
		TotalAttendance:  12,
		CycleStart:       env.clock.T,
		NextRank:         nil, // ladder terminus
	}, status)

	if _, err = env.svc.Status(ctx, student2); err != progression.ErrNoActiveRecord {
		t.Errorf("Status() error = %v, want ErrNoActiveRecord", err)
	}
}

func TestService_ListEligible(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	white, _, _ := testutil.CreateAdultLadder(t, env.rankRepo)
	grey := testutil.CreateRank(t, env.rankRepo, "CINZA", "Faixa Cinza", rank.CategoryYouth, 2, 4, 15)

	env.start(t, student1, white, 4)
	env.start(t, student2, white, 2)
	youth := "5c9b6a3e-7a68-4f57-9e5a-333333333333"
	env.start(t, youth, grey, 4)

	for i := 0; i < 30; i++ {
		if _, err := env.svc.RecordAttendance(ctx, student1); err != nil {
			t.Fatalf("RecordAttendance() failed: %v", err)
		}
	}

	// 4 stripes required: only student1 and the youth qualify
	policy := progression.EligibilityPolicy{MinDegrees: 4}
	candidates, err := env.svc.ListEligible(ctx, policy, nil)
	if err != nil {
		t.Fatalf("ListEligible() failed: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("ListEligible() returned %d candidates, want 2", len(candidates))
	}

	// category filter narrows to the adult ladder
	candidates, err = env.svc.ListEligible(ctx, policy, &progression.CandidateFilter{Category: rank.CategoryAdult})
	if err != nil {
		t.Fatalf("ListEligible() failed: %v", err)
	}
	if len(candidates) != 1 || candidates[0].StudentID != student1 {
		t.Fatalf("ListEligible(ADULT) = %+v, want only student1", candidates)
	}
	if !candidates[0].ReadyForPromotion {
		t.Error("student1 should be ready for promotion")
	}

	// a total-attendance floor excludes the idle youth
	policy.MinTotalAttendance = 10
	candidates, err = env.svc.ListEligible(ctx, policy, nil)
	if err != nil {
		t.Fatalf("ListEligible() failed: %v", err)
	}
	if len(candidates) != 1 || candidates[0].StudentID != student1 {
		t.Fatalf("ListEligible(min attendance) = %+v, want only student1", candidates)
	}
}
