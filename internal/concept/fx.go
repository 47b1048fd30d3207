package concept

import (
	"github.com/smallbiznis/bursar/internal/concept/repository"
	"github.com/smallbiznis/bursar/internal/concept/service"
	"go.uber.org/fx"
)

var Module = fx.Module("concept.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
