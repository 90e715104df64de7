package tests

import (
	"net/http"
	"testing"

	echoapi "github.com/dojokit/beltway/apps/api/echo"
	"github.com/dojokit/beltway/core/rank"
	testutil "github.com/dojokit/beltway/tests"
)

func Test_rankApi_create(t *testing.T) {
	env := setup(t)
	admin := env.token(t, "admin-1", echoapi.RoleAdmin)
	coach := env.token(t, "coach-1", echoapi.RoleCoach)

	body := map[string]interface{}{
		"code":               "branca",
		"name":               "Faixa Branca",
		"color_hex":          "#FFFFFF",
		"category":           "ADULT",
		"ordinal":            1,
		"max_degrees":        4,
		"classes_per_degree": 20,
	}

	// auth required
	rec := env.request(t, http.MethodPost, "/v1/ranks", "", body)
	wantCode(t, rec, http.StatusUnauthorized)

	// rank management capability required
	rec = env.request(t, http.MethodPost, "/v1/ranks", coach, body)
	wantCode(t, rec, http.StatusForbidden)

	rec = env.request(t, http.MethodPost, "/v1/ranks", admin, body)
	wantCode(t, rec, http.StatusCreated)

	var created rank.Rank
	decode(t, rec, &created)
	if created.Code != "BRANCA" { // cleaned and upper-cased
		t.Errorf("code = %s, want BRANCA", created.Code)
	}

	// duplicate code is rejected on the code field
	rec = env.request(t, http.MethodPost, "/v1/ranks", admin, body)
	wantCode(t, rec, http.StatusBadRequest)

	var fldErrs map[string]string
	decode(t, rec, &fldErrs)
	if _, ok := fldErrs["code"]; !ok {
		t.Errorf("fields = %v, want an error on 'code'", fldErrs)
	}

	// invalid payload is rejected with translated field errors
	rec = env.request(t, http.MethodPost, "/v1/ranks", admin, map[string]interface{}{
		"code": "AZUL", "name": "Faixa Azul", "color_hex": "not-a-color",
		"category": "GALAXY", "ordinal": 2, "classes_per_degree": 25,
	})
	wantCode(t, rec, http.StatusBadRequest)
	decode(t, rec, &fldErrs)
	if _, ok := fldErrs["category"]; !ok {
		t.Errorf("fields = %v, want an error on 'category'", fldErrs)
	}
	if _, ok := fldErrs["color_hex"]; !ok {
		t.Errorf("fields = %v, want an error on 'color_hex'", fldErrs)
	}
}

func Test_rankApi_query(t *testing.T) {
	env := setup(t)
	coach := env.token(t, "coach-1", echoapi.RoleCoach)

	testutil.CreateAdultLadder(t, env.rankRepo)
	testutil.CreateRank(t, env.rankRepo, "CINZA", "Faixa Cinza", rank.CategoryYouth, 2, 4, 15)

	rec := env.request(t, http.MethodGet, "/v1/ranks", coach, nil)
	wantCode(t, rec, http.StatusOK)

	var ranks []rank.Rank
	decode(t, rec, &ranks)
	if len(ranks) != 4 {
		t.Fatalf("got %d ranks, want 4", len(ranks))
	}

	rec = env.request(t, http.MethodGet, "/v1/ranks?category=ADULT", coach, nil)
	wantCode(t, rec, http.StatusOK)
	decode(t, rec, &ranks)
	if len(ranks) != 3 {
		t.Fatalf("got %d adult ranks, want 3", len(ranks))
	}
	// ascending ladder order
	for i, code := range []string{"BRANCA", "AZUL", "ROXA"} {
		if ranks[i].Code != code {
			t.Errorf("ranks[%d] = %s, want %s", i, ranks[i].Code, code)
		}
	}

	// unknown rank is a 404
	rec = env.request(t, http.MethodGet, "/v1/ranks/5c9b6a3e-7a68-4f57-9e5a-000000000000", coach, nil)
	wantCode(t, rec, http.StatusNotFound)
}
