package main

import (
	"fmt"
	"log"
	"os"

	"github.com/anasaran05/learnsync/core"
	"github.com/anasaran05/learnsync/core/progress"
	logsvc "github.com/anasaran05/learnsync/services/logger"
	"github.com/anasaran05/learnsync/storage"
)

func main() {
	conf, err := core.NewConfig()
	errAndDie(err)

	zl, err := logsvc.NewZap(conf, "admin")
	errAndDie(err)
	logger := logsvc.NewRollbarLogger(zl, conf)
	logger.Enable(false)
	defer logger.Sync()

	// set up store
	store, err := storage.Open(conf, logger)
	errAndDie(err)
	defer func() { _ = store.Close() }()

	// start CLI
	cli := commandLine{
		out:     os.Stdout,
		store:   store,
		storeID: conf.Store.ID,
		sheet:   conf.Store.Sheet,
		repo:    progress.NewRepository(store, conf.Store.ID, conf.Store.Sheet, progress.NewCache(conf.Cache.TTL)),
	}
	if store.Tokens != nil {
		cli.tokens = store.Tokens
	}
	if err = cli.run(os.Args); err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		_ = store.Close()
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
