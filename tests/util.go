package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/dojokit/beltway/core"
	"github.com/dojokit/beltway/core/rank"
)

// FixedClock returns the same instant on every call.
type FixedClock struct {
	T time.Time
}

var _ core.Clock = (*FixedClock)(nil)

func (c FixedClock) Now() time.Time { return c.T }

// NopLogger discards everything.
type NopLogger struct{}

var _ core.Logger = (*NopLogger)(nil)

func (NopLogger) Enable(bool)                  {}
func (NopLogger) Debug(string, ...interface{}) {}
func (NopLogger) Info(string, ...interface{})  {}
func (NopLogger) Warn(string, ...interface{})  {}
func (NopLogger) Error(string, ...interface{}) {}
func (NopLogger) Fatal(string, ...interface{}) {}

// JSONEqual fails the test with a unified diff when want and got do not
// marshal to the same JSON.
func JSONEqual(t *testing.T, want, got interface{}) {
	t.Helper()
	wantB, err := json.MarshalIndent(want, "", "  ")
	if err != nil {
		t.Fatalf("JSONEqual() failed to marshal want: %v", err)
	}
	gotB, err := json.MarshalIndent(got, "", "  ")
	if err != nil {
		t.Fatalf("JSONEqual() failed to marshal got: %v", err)
	}
	if bytes.Equal(wantB, gotB) {
		return
	}
	diff, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(wantB)),
		B:        difflib.SplitLines(string(gotB)),
		FromFile: "want",
		ToFile:   "got",
		Context:  3,
	})
	t.Errorf("mismatch (-want +got):\n%s", diff)
}

func CreateRank(
	t *testing.T,
	repo rank.Repository,
	code, name string,
	category rank.Category,
	ordinal, maxDegrees, classesPerDegree int,
) rank.Rank {
	t.Helper()
	now := time.Now().UTC()
	rnk := rank.Rank{
		Code:             code,
		Name:             name,
		ColorHex:         "#FFFFFF",
		Category:         category,
		Ordinal:          ordinal,
		MaxDegrees:       maxDegrees,
		ClassesPerDegree: classesPerDegree,
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	rnk, err := repo.CreateRank(context.Background(), rnk)
	if err != nil {
		t.Fatalf("CreateRank() failed: %v", err)
	}
	return rnk
}

// CreateAdultLadder seeds a minimal three-belt adult ladder.
func CreateAdultLadder(t *testing.T, repo rank.Repository) (white, blue, purple rank.Rank) {
	t.Helper()
	white = CreateRank(t, repo, "BRANCA", "Faixa Branca", rank.CategoryAdult, 1, 4, 20)
	blue = CreateRank(t, repo, "AZUL", "Faixa Azul", rank.CategoryAdult, 2, 4, 25)
	purple = CreateRank(t, repo, "ROXA", "Faixa Roxa", rank.CategoryAdult, 3, 4, 30)
	return white, blue, purple
}
