package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

// Module 提供私有 registry 及其 Registerer / Gatherer 视图
func Module() fx.Option {
	return fx.Module("metrics",
		fx.Provide(
			NewRegistry,
			func(reg *prometheus.Registry) prometheus.Registerer { return reg },
			func(reg *prometheus.Registry) prometheus.Gatherer { return reg },
		),
	)
}
