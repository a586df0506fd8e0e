package main

import (
	"context"
)

// resetPassword sets a new password without any code; every session of the account is revoked.
func (cli *commandLine) resetPassword(email, pwd string) error {
	if err := cli.svc.SetPassword(context.Background(), email, pwd); err != nil {
		return err
	}
	cli.printf("Password updated.\n")
	return nil
}
