package main

import (
	"context"

	"github.com/nooracademy/noor/core/account"
)

// inviteAdmin creates a pending administrator registration; the account exists once the emailed code is verified.
func (cli *commandLine) inviteAdmin(email, name, pwd string) error {
	nr := account.NewRegistration{DisplayName: name, Email: email, Password: pwd}
	if err := nr.Validate(cli.validate); err != nil {
		return err
	}
	pr, err := cli.svc.InviteAdministrator(context.Background(), nr)
	if err != nil {
		return err
	}
	cli.printf("A verification code has been sent to %s.\n", pr.Email)
	return nil
}
