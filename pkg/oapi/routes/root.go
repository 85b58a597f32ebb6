package routes

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/omex-energy/omex/pkg/coordinator"
)

func RegisterAPI(api huma.API, coord *coordinator.Coordinator) {
	RegisterHealth(api)
	RegisterJobs(api, coord)
	RegisterWorkflows(api, coord)
}
