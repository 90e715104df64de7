package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"

	"github.com/dojokit/beltway/core/progression"
	"github.com/dojokit/beltway/core/rank"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	db      *sql.DB // for migrations
	rankSvc *rank.Service
	progSvc *progression.Service
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS] - run a goose migration command (up, down, status, ...)")
	fmt.Println("  seedranks - load the default belt ladders (idempotent)")
	fmt.Println("  startstudent -student UUID -rank CODE [-degrees N] - put a student on their first rank")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	startCmd := flag.NewFlagSet("startstudent", flag.ExitOnError)
	startStudent := startCmd.String("student", "", "The student's ID.")
	startRank := startCmd.String("rank", "", "The rank code to start the student on, e.g. BRANCA.")
	startDegrees := startCmd.Int("degrees", 0, "Stripes already held, when importing a student mid-rank.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "seedranks":
		return cli.seedRanks()
	case "startstudent":
		if err := startCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *startStudent == "" || *startRank == "" {
			startCmd.Usage()
			return errHelp
		}
		return cli.startStudent(*startStudent, *startRank, *startDegrees)
	default:
		cli.printUsage()
		return errHelp
	}
}
