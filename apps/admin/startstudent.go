package main

import (
	"context"
	"fmt"

	"github.com/dojokit/beltway/core/progression"
)

// startStudent puts a student on their first (or imported) rank.
func (cli *commandLine) startStudent(studentID, rankCode string, degrees int) error {
	ctx := context.Background()

	rnk, err := cli.rankSvc.GetByCode(ctx, rankCode)
	if err != nil {
		return err
	}

	rec, err := cli.progSvc.Start(ctx, progression.StartProgression{
		StudentID:      studentID,
		RankID:         rnk.ID,
		InitialDegrees: degrees,
	})
	if err != nil {
		return err
	}
	fmt.Printf("student %s started on %s with %d degree(s)\n", studentID, rnk.Code, rec.Degrees)
	return nil
}
