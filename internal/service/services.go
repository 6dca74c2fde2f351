// Package service contains the business logic.
//
// It sits between the commands and the repository layer and is where the
// execution wrappers are composed: scoped connections, transactions,
// retries on transient database errors and the query result cache.
package service

import (
	"github.com/deppfellow/go-dbkit/internal/app"
)

// Services is a container for all service instances.
type Services struct {
	Users *UsersService
}

func NewServices(a *app.App) *Services {
	return &Services{
		Users: NewUsersService(a.DB.Pool, a.Redis, a.Config.Retry),
	}
}
