package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/nooracademy/noor/core/account"
)

type adminApi struct {
	svc      *account.Service
	validate *validator.Validate
}

// registerAdminAPI expects g to be restricted to administrators.
func registerAdminAPI(g *echo.Group, svc *account.Service, validate *validator.Validate) {
	api := adminApi{svc: svc, validate: validate}

	g.GET("/accounts", api.queryAccounts)
	g.GET("/roles", api.queryRoles)
	g.POST("/administrators", api.inviteAdministrator)
}

func (api *adminApi) queryAccounts(ctx echo.Context) error {
	filter := bindQueryFilter(ctx)
	if err := api.validate.Var(filter.Roles, "omitempty,roles"); err != nil {
		return ctx.JSON(http.StatusOK, []account.Account{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	accounts, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying accounts")
	}
	if accounts == nil {
		accounts = []account.Account{}
	}
	return ctx.JSON(http.StatusOK, accounts)
}

func (api *adminApi) queryRoles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, account.Roles)
}

func (api *adminApi) inviteAdministrator(ctx echo.Context) error {
	var data account.NewRegistration
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewRegistration")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	pr, err := api.svc.InviteAdministrator(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "inviting administrator")
	}
	return ctx.JSON(http.StatusCreated, SignupResponse{
		Message: "A verification code has been sent to the administrator's email.",
		Email:   pr.Email,
	})
}
