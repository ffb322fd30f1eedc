//go:build wireinject

package app

import (
	"github.com/google/wire"
	"github.com/gowvp/scanbox/internal/conf"
	"github.com/gowvp/scanbox/internal/data"
	"github.com/gowvp/scanbox/internal/web/api"
)

func wireApp(bc *conf.Bootstrap) (*api.Usecase, func(), error) {
	panic(wire.Build(data.ProviderSet, api.ProviderSet))
}
