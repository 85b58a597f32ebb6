package routes

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/omex-energy/omex/pkg/coordinator"
	"github.com/omex-energy/omex/pkg/oapi/schemas"
)

// ListWorkflowsOutput is the response for listing workflows
type ListWorkflowsOutput struct {
	Body schemas.WorkflowsResponse
}

// RegisterWorkflows registers the workflow routes
func RegisterWorkflows(api huma.API, coord *coordinator.Coordinator) {
	huma.Register(api, huma.Operation{
		OperationID: "list-workflows",
		Method:      http.MethodGet,
		Path:        "/workflows",
		Summary:     "List available workflows",
		Description: "Return the available workflow types with a form schema for their non-ESDL parameters",
		Tags:        []string{"Workflows"},
	}, func(ctx context.Context, input *struct{}) (*ListWorkflowsOutput, error) {
		schemasList, err := coord.DescribeWorkflows(ctx)
		if err != nil {
			return nil, translateError(err)
		}

		resp := &ListWorkflowsOutput{}
		resp.Body.Workflows = schemasList
		return resp, nil
	})
}
