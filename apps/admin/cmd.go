package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/anasaran05/learnsync/core/progress"
	"github.com/anasaran05/learnsync/services/sheets"
)

var errHelp = errors.New("help provided")

type tokenSource interface {
	Token(ctx context.Context) (string, error)
	Cached() sheets.AccessToken
}

type commandLine struct {
	out     io.Writer
	store   progress.TabularStore
	tokens  tokenSource // nil unless the store authenticates with access tokens
	storeID string
	sheet   string
	repo    *progress.Repository
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  token                       - acquire a store access token and print its expiry")
	fmt.Fprintln(cli.out, "  list --owner ID             - print an owner's progress records as JSON")
	fmt.Fprintln(cli.out, "  export --out FILE.xlsx      - dump the whole progress table to a workbook")
}

func (cli *commandLine) newFlagSet(name string) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flagSet.SetOutput(cli.out)
	flagSet.Usage = func() {
		fmt.Fprintf(cli.out, "Usage of %s:\n", name)
		flagSet.PrintDefaults()
	}
	return flagSet
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}
	ctx := context.Background()

	switch args[1] {
	case "token":
		tokenCmd := cli.newFlagSet("token")
		if err := parse(tokenCmd, args[2:]); err != nil {
			return err
		}
		return cli.token(ctx)

	case "list":
		listCmd := cli.newFlagSet("list")
		owner := listCmd.String("owner", "", "The owner whose records are printed.")
		if err := parse(listCmd, args[2:]); err != nil {
			return err
		}
		if *owner == "" {
			listCmd.Usage()
			return errHelp
		}
		return cli.list(ctx, *owner)

	case "export":
		exportCmd := cli.newFlagSet("export")
		out := exportCmd.StringP("out", "o", "", "The workbook to write. Overwritten if it exists.")
		if err := parse(exportCmd, args[2:]); err != nil {
			return err
		}
		if *out == "" {
			exportCmd.Usage()
			return errHelp
		}
		return cli.export(ctx, *out)

	default:
		cli.printUsage()
		return errHelp
	}
}

func parse(flagSet *pflag.FlagSet, args []string) error {
	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return errHelp
		}
		return err
	}
	return nil
}
