package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strconv"
	"testing"

	"github.com/dojokit/beltway/core"
	"github.com/dojokit/beltway/core/progression"
	"github.com/dojokit/beltway/core/rank"
	"github.com/dojokit/beltway/storage/database/dummy"
)

func setup(t *testing.T) *commandLine {
	t.Helper()
	db, err := dummy.Open()
	if err != nil {
		t.Fatalf("dummy.Open() failed: %v", err)
	}

	clock := core.NewClock()
	rankSvc := rank.NewService(dummy.NewRankRepository(db), clock)
	progSvc := progression.NewService(db, dummy.NewProgressionRepository(db), rankSvc, clock)

	return &commandLine{
		rankSvc: rankSvc,
		progSvc: progSvc,
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	gooseRunFunc = func(command string, db *sql.DB, fsys fs.FS, dir string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "belts", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			if err := cli.run(args); err != nil {
				if tt.wantErr != nil {
					if err != tt.wantErr {
						t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
					}
				} else if tt.wantErrStr != "" {
					if err.Error() != tt.wantErrStr {
						t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
					}
				} else {
					t.Errorf("cli.run() unexpected error = %v", err)
				}
			}
		})
	}
}

func Test_commandLine_seedRanks(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()

	if err := cli.run([]string{"admin", "seedranks"}); err != nil {
		t.Fatalf("seedranks failed: %v", err)
	}

	ranks, err := cli.rankSvc.Query(ctx, nil)
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	if len(ranks) != len(defaultRanks) {
		t.Fatalf("got %d ranks, want %d", len(ranks), len(defaultRanks))
	}

	// a second run is a no-op
	if err := cli.run([]string{"admin", "seedranks"}); err != nil {
		t.Fatalf("second seedranks failed: %v", err)
	}
	if ranks, err = cli.rankSvc.Query(ctx, nil); err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	if len(ranks) != len(defaultRanks) {
		t.Errorf("got %d ranks after re-seeding, want %d", len(ranks), len(defaultRanks))
	}

	black, err := cli.rankSvc.GetByCode(ctx, "PRETA")
	if err != nil {
		t.Fatalf("GetByCode(PRETA) failed: %v", err)
	}
	if black.MaxDegrees != 6 {
		t.Errorf("PRETA max degrees = %d, want 6", black.MaxDegrees)
	}
}

func Test_commandLine_startStudent(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()

	if err := cli.run([]string{"admin", "seedranks"}); err != nil {
		t.Fatalf("seedranks failed: %v", err)
	}

	studentID := "5c9b6a3e-7a68-4f57-9e5a-777777777777"

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"startstudent"}, wantErr: errHelp},
		{name: "student but no rank", args: []string{"startstudent", "-student", studentID}, wantErr: errHelp},
		{name: "unknown rank", args: []string{"startstudent", "-student", studentID, "-rank", "LOL"}, wantErr: rank.ErrNotFound},
		{name: "start", args: []string{"startstudent", "-student", studentID, "-rank", "azul", "-degrees", "2"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			if err := cli.run(args); err != tt.wantErr {
				t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	status, err := cli.progSvc.Status(ctx, studentID)
	if err != nil {
		t.Fatalf("Status() failed: %v", err)
	}
	if status.Rank.Code != "AZUL" || status.Degrees != 2 {
		t.Errorf("status = %s/%d degrees, want AZUL/2", status.Rank.Code, status.Degrees)
	}
}
