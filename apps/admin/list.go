package main

import (
	"context"
	"encoding/json"
)

func (cli *commandLine) list(ctx context.Context, owner string) error {
	records, err := cli.repo.List(ctx, owner)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cli.out)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}
