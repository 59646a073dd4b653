package agent

import (
	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/coverline/coverline/internal/auth"
)

// RegisterTools registers every catalog tool with Genkit so the model
// sees their names, descriptions and input schemas. Execution still goes
// through the orchestrator's own dispatch: model calls request tools
// with ReturnToolRequests, so these handlers only run if something
// invokes the tools directly, and even then they route through the same
// validated Dispatch path.
func RegisterTools(g *genkit.Genkit, c *Catalog) []ai.ToolRef {
	return []ai.ToolRef{
		defineTool[PurchaseInsuranceInput](g, c, ToolPurchaseInsurance),
		defineTool[RenewInsuranceInput](g, c, ToolRenewInsurance),
		defineTool[CancelInsuranceInput](g, c, ToolCancelInsurance),
		defineTool[GetInsuranceInput](g, c, ToolGetInsurance),
		defineTool[GetInsuranceByNumberInput](g, c, ToolGetInsuranceByNumber),
		defineTool[GetAllPlansInput](g, c, ToolGetAllPlans),
		defineTool[GetPlanByIDInput](g, c, ToolGetPlanByID),
		defineTool[GetPlansByCategoryInput](g, c, ToolGetPlansByCategory),
		defineTool[KnowledgeQueryInput](g, c, ToolKnowledge),
	}
}

func defineTool[T any](g *genkit.Genkit, c *Catalog, name string) ai.Tool {
	t := c.byName[name]
	return genkit.DefineTool(g, t.name, t.description,
		func(toolCtx *ai.ToolContext, in T) (any, error) {
			p, err := auth.PrincipalFrom(toolCtx)
			if err != nil {
				return nil, err
			}
			return c.Dispatch(toolCtx, p, name, in)
		})
}
