package tools

import (
	"errors"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// Register registers all assistant tools with Genkit and returns them in
// ToolNames() order. Tool descriptions are written for the model, in the
// language the users speak.
func Register(g *genkit.Genkit, h *Handler) ([]ai.Tool, error) {
	if g == nil {
		return nil, errors.New("tools: genkit instance is required")
	}
	if h == nil {
		return nil, errors.New("tools: handler is required")
	}

	registered := []ai.Tool{
		genkit.DefineTool(g, MachineStatusName,
			"Use esta ferramenta para obter o status em tempo real de uma máquina ou tear específico. "+
				"Forneça o nome ou identificador da máquina.",
			h.MachineStatus),
		genkit.DefineTool(g, ProductStatusName,
			"Use esta ferramenta para obter o status em tempo real de um PRODUTO específico. "+
				"Forneça o nome ou identificador da máquina.",
			h.ProductStatus),
		genkit.DefineTool(g, GeneralStatusName,
			"Use esta ferramenta para obter o status em tempo real das máquinas e produtos. "+
				"Quando não for informada uma máquina específica, retorna o status geral de todas as máquinas e produtos.",
			h.GeneralStatus),
		genkit.DefineTool(g, ServiceOrdersName,
			"Busca ordens de serviço em uma API externa (Dude). "+
				"Use sempre que o usuário perguntar sobre ordens de serviço, OS, ou chamados no Dude. "+
				"Informe status ('New Request', 'In Progress', 'Completed'), equipamento ou data quando mencionados.",
			h.ServiceOrders),
		genkit.DefineTool(g, SearchDocumentationName,
			"Use esta ferramenta para buscar informações sobre documentos, processos e procedimentos fixos da empresa.",
			h.SearchDocumentation),
	}

	return registered, nil
}

// Refs converts registered tools to references for prompt execution.
func Refs(registered []ai.Tool) []ai.ToolRef {
	refs := make([]ai.ToolRef, len(registered))
	for i, tool := range registered {
		refs[i] = tool
	}
	return refs
}
