package tests

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	echoapi "github.com/dojokit/beltway/apps/api/echo"
	"github.com/dojokit/beltway/core"
	"github.com/dojokit/beltway/core/progression"
	"github.com/dojokit/beltway/core/rank"
	"github.com/dojokit/beltway/storage/database/dummy"
	testutil "github.com/dojokit/beltway/tests"
)

type testEnv struct {
	server   *echoapi.Server
	conf     *core.Config
	rankRepo rank.Repository
	progSvc  *progression.Service
}

func setup(t *testing.T) *testEnv {
	t.Helper()

	conf := &core.Config{}
	conf.TestMode = true
	conf.AppName = "Beltway"
	conf.SecretKey = "test-secret-key"
	conf.Server.JWTExpirationDelta = time.Hour
	conf.Graduation.EligibilityMinDegrees = 4

	db, err := dummy.Open()
	if err != nil {
		t.Fatalf("dummy.Open() failed: %v", err)
	}

	clock := core.NewClock()
	rankRepo := dummy.NewRankRepository(db)
	rankSvc := rank.NewService(rankRepo, clock)
	progSvc := progression.NewService(db, dummy.NewProgressionRepository(db), rankSvc, clock)

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	rank.InitValidators(validate, translator)

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:       conf,
			Logger:     testutil.NopLogger{},
			RankSvc:    rankSvc,
			ProgSvc:    progSvc,
			Validate:   validate,
			Translator: translator,
		},
	)
	return &testEnv{server: server, conf: conf, rankRepo: rankRepo, progSvc: progSvc}
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func (env *testEnv) token(t *testing.T, subject string, roles ...string) string {
	t.Helper()
	claims := echoapi.GetClaims(env.conf, subject, subject, roles...)
	token, err := echoapi.GenerateToken(env.conf, claims)
	if err != nil {
		t.Fatalf("GenerateToken() failed: %v", err)
	}
	return token
}

func (env *testEnv) request(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding request body failed: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dest), "decoding response %q", rec.Body.String())
}

func wantCode(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	require.Equal(t, want, rec.Code, "body: %s", rec.Body.String())
}
