package main

import (
	"log"
	"os"

	"github.com/dojokit/beltway/core"
	"github.com/dojokit/beltway/core/progression"
	"github.com/dojokit/beltway/core/rank"
	"github.com/dojokit/beltway/storage/database"
	sqlxrepos "github.com/dojokit/beltway/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf := core.NewConfig()

	// set up DB
	errAndDie(database.CreateIfNotExist(conf))
	db, err := database.Open(conf)
	errAndDie(err)
	defer func() { _ = db.Close() }()
	errAndDie(db.Ping())

	// set up services
	clock := core.NewClock()
	rankSvc := rank.NewService(sqlxrepos.NewRankRepository(db), clock)
	progSvc := progression.NewService(db, sqlxrepos.NewProgressionRepository(db), rankSvc, clock)

	// start CLI
	cli := commandLine{
		db:      db.DB.DB,
		rankSvc: rankSvc,
		progSvc: progSvc,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
