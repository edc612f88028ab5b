package main

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var errNoTokens = errors.New("the configured store does not use access tokens")

// token acquires an access token, proving the service identity is accepted by the store.
func (cli *commandLine) token(ctx context.Context) error {
	if cli.tokens == nil {
		return errNoTokens
	}
	if _, err := cli.tokens.Token(ctx); err != nil {
		return err
	}
	expiresAt := cli.tokens.Cached().ExpiresAt
	fmt.Fprintf(cli.out, "access token acquired, valid until %s\n", expiresAt.Format(time.RFC3339))
	return nil
}
