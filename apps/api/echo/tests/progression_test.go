package tests

import (
	"fmt"
	"net/http"
	"testing"

	echoapi "github.com/dojokit/beltway/apps/api/echo"
	"github.com/dojokit/beltway/core/progression"
	testutil "github.com/dojokit/beltway/tests"
)

const studentID = "5c9b6a3e-7a68-4f57-9e5a-444444444444"

func Test_progressionApi_lifecycle(t *testing.T) {
	env := setup(t)
	admin := env.token(t, "admin-1", echoapi.RoleAdmin)
	coach := env.token(t, "coach-1", echoapi.RoleCoach)
	frontDesk := env.token(t, "desk-1", echoapi.RoleFrontDesk)
	student := env.token(t, studentID, echoapi.RoleStudent)

	white, blue, _ := testutil.CreateAdultLadder(t, env.rankRepo)
	basePath := "/v1/students/" + studentID

	// status of an unknown student is a 404
	rec := env.request(t, http.MethodGet, basePath+"/progression", coach, nil)
	wantCode(t, rec, http.StatusNotFound)

	// starting a progression takes promotion management rights
	startBody := map[string]interface{}{"rank_id": white.ID, "initial_degrees": 3}
	rec = env.request(t, http.MethodPost, basePath+"/progression", coach, startBody)
	wantCode(t, rec, http.StatusForbidden)

	rec = env.request(t, http.MethodPost, basePath+"/progression", admin, startBody)
	wantCode(t, rec, http.StatusCreated)

	var record progression.Record
	decode(t, rec, &record)
	if record.Degrees != 3 {
		t.Errorf("degrees = %d, want 3", record.Degrees)
	}

	// a second active record is rejected
	rec = env.request(t, http.MethodPost, basePath+"/progression", admin, startBody)
	wantCode(t, rec, http.StatusBadRequest)

	// the front desk checks the student in; students cannot
	rec = env.request(t, http.MethodPost, basePath+"/attendance", student, nil)
	wantCode(t, rec, http.StatusForbidden)

	for i := 0; i < 20; i++ {
		rec = env.request(t, http.MethodPost, basePath+"/attendance", frontDesk, nil)
		wantCode(t, rec, http.StatusOK)
	}
	var attRes progression.AttendanceResult
	decode(t, rec, &attRes)
	if !attRes.DegreeGranted {
		t.Error("the 20th class should have granted the 4th stripe")
	}

	// the student can read their own status
	rec = env.request(t, http.MethodGet, basePath+"/progression", student, nil)
	wantCode(t, rec, http.StatusOK)

	var status progression.Status
	decode(t, rec, &status)
	if status.Degrees != 4 {
		t.Errorf("degrees = %d, want 4", status.Degrees)
	}
	if status.NextRank == nil || status.NextRank.ID != blue.ID {
		t.Error("next rank should be blue")
	}

	// promotion request, then approval
	reqBody := map[string]interface{}{"student_id": studentID, "target_rank_id": blue.ID}
	rec = env.request(t, http.MethodPost, "/v1/promotions", coach, reqBody)
	wantCode(t, rec, http.StatusCreated)

	var promReq progression.PromotionRequest
	decode(t, rec, &promReq)
	if promReq.Status != progression.StatusPending {
		t.Errorf("status = %s, want PENDING", promReq.Status)
	}
	if promReq.RequestedBy != "coach-1" { // defaulted from the token subject
		t.Errorf("requested by = %s, want coach-1", promReq.RequestedBy)
	}

	// a duplicate request is rejected while one is pending
	rec = env.request(t, http.MethodPost, "/v1/promotions", coach, reqBody)
	wantCode(t, rec, http.StatusBadRequest)

	// coaches cannot decide
	approvePath := fmt.Sprintf("/v1/promotions/%s/approve", promReq.ID)
	rec = env.request(t, http.MethodPost, approvePath, coach, nil)
	wantCode(t, rec, http.StatusForbidden)

	rec = env.request(t, http.MethodPost, approvePath, admin, nil)
	wantCode(t, rec, http.StatusOK)

	var promRes progression.PromotionResult
	decode(t, rec, &promRes)
	if promRes.Request.Status != progression.StatusApproved {
		t.Errorf("status = %s, want APPROVED", promRes.Request.Status)
	}
	if promRes.NewRecord.RankID != blue.ID {
		t.Error("new record should be at blue")
	}

	// deciding again is rejected
	rec = env.request(t, http.MethodPost, approvePath, admin, nil)
	wantCode(t, rec, http.StatusBadRequest)

	// the student now progresses on blue from scratch
	rec = env.request(t, http.MethodGet, basePath+"/progression", student, nil)
	wantCode(t, rec, http.StatusOK)
	decode(t, rec, &status)
	if status.Rank.ID != blue.ID || status.Degrees != 0 {
		t.Errorf("status = %s/%d degrees, want blue/0", status.Rank.Code, status.Degrees)
	}

	// both transitions are on record
	rec = env.request(t, http.MethodGet, basePath+"/history", student, nil)
	wantCode(t, rec, http.StatusOK)
	var hist []progression.HistoryEntry
	decode(t, rec, &hist)
	if len(hist) != 2 {
		t.Fatalf("got %d history entries, want 2", len(hist))
	}

	// 3 imported + 1 automatic stripe in the ledger
	rec = env.request(t, http.MethodGet, basePath+"/degrees", student, nil)
	wantCode(t, rec, http.StatusOK)
	var grants []progression.DegreeGrant
	decode(t, rec, &grants)
	if len(grants) != 4 {
		t.Fatalf("got %d degree grants, want 4", len(grants))
	}
}

func Test_progressionApi_grantDegree(t *testing.T) {
	env := setup(t)
	admin := env.token(t, "admin-1", echoapi.RoleAdmin)
	coach := env.token(t, "coach-1", echoapi.RoleCoach)

	white, _, _ := testutil.CreateAdultLadder(t, env.rankRepo)
	basePath := "/v1/students/" + studentID

	rec := env.request(t, http.MethodPost, basePath+"/progression", admin, map[string]interface{}{"rank_id": white.ID})
	wantCode(t, rec, http.StatusCreated)

	rec = env.request(t, http.MethodPost, basePath+"/degrees", coach, map[string]interface{}{"note": "seminar"})
	wantCode(t, rec, http.StatusCreated)

	var grant progression.DegreeGrant
	decode(t, rec, &grant)
	if grant.Origin != progression.GrantOriginManual {
		t.Errorf("origin = %s, want MANUAL", grant.Origin)
	}
	if grant.Issuer.String != "coach-1" { // defaulted from the token subject
		t.Errorf("issuer = %s, want coach-1", grant.Issuer.String)
	}
}

func Test_progressionApi_listEligible(t *testing.T) {
	env := setup(t)
	admin := env.token(t, "admin-1", echoapi.RoleAdmin)
	coach := env.token(t, "coach-1", echoapi.RoleCoach)

	white, _, _ := testutil.CreateAdultLadder(t, env.rankRepo)

	ready := "5c9b6a3e-7a68-4f57-9e5a-555555555555"
	fresh := "5c9b6a3e-7a68-4f57-9e5a-666666666666"
	for _, start := range []struct {
		id      string
		degrees int
	}{{ready, 4}, {fresh, 0}} {
		rec := env.request(t, http.MethodPost, "/v1/students/"+start.id+"/progression", admin,
			map[string]interface{}{"rank_id": white.ID, "initial_degrees": start.degrees})
		wantCode(t, rec, http.StatusCreated)
	}

	// conf requires 4 stripes for eligibility
	rec := env.request(t, http.MethodGet, "/v1/graduation/eligible", coach, nil)
	wantCode(t, rec, http.StatusOK)

	var candidates []progression.Candidate
	decode(t, rec, &candidates)
	if len(candidates) != 1 || candidates[0].StudentID != ready {
		t.Fatalf("candidates = %+v, want only the 4-stripe student", candidates)
	}
}
