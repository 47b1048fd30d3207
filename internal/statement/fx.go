package statement

import (
	"github.com/smallbiznis/bursar/internal/statement/repository"
	"github.com/smallbiznis/bursar/internal/statement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("statement.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
