package echoapi

import (
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/nooracademy/noor/core"
	"github.com/nooracademy/noor/core/account"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

// Bind reads `?ordering=field,-other`; a leading "-" sorts descending.
func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}
	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// bindQueryFilter reads the account filters from the query string; malformed values are ignored.
func bindQueryFilter(ctx echo.Context) *account.QueryFilter {
	params := ctx.QueryParams()
	filter := &account.QueryFilter{Search: params.Get("search")}

	for _, role := range params["role"] {
		for _, r := range strings.Split(role, ",") {
			if r = core.CleanString(r, true /* lower */); r != "" {
				filter.Roles = append(filter.Roles, account.Role(r))
			}
		}
	}
	if verified, err := strconv.ParseBool(params.Get("verified")); err == nil {
		filter.Verified = &verified
	}
	if from, err := time.Parse(time.RFC3339, params.Get("created_from")); err == nil {
		filter.CreatedFrom = from.UTC()
	}
	if to, err := time.Parse(time.RFC3339, params.Get("created_to")); err == nil {
		filter.CreatedTo = to.UTC()
	}
	filter.Clean()
	return filter
}
