package schemas

import "github.com/omex-energy/omex/pkg/workflow"

// WorkflowsResponse lists the available workflow types with their form
// schemas for the non-ESDL parameters.
type WorkflowsResponse struct {
	Workflows []workflow.FormSchema `json:"workflows" doc:"Available workflow types"`
}
