// Package tools defines the Genkit tools the assistant can route to:
// live machine/product status, floor-wide status, Dude service-order
// search, and documentation retrieval.
//
// Tool handlers never return Go errors for business failures. An
// unresolved machine, an empty result or an unreachable collaborator all
// come back as Portuguese text, so the model always receives something it
// can relay to the user.
package tools

import (
	"context"
	"errors"

	"github.com/weftworks/loombot/internal/knowledge"
	"github.com/weftworks/loombot/internal/log"
	"github.com/weftworks/loombot/internal/resolver"
	"github.com/weftworks/loombot/internal/ticket"
)

// Genkit tool names.
const (
	MachineStatusName       = "machine_status"
	ProductStatusName       = "product_status"
	GeneralStatusName       = "general_status"
	ServiceOrdersName       = "service_orders"
	SearchDocumentationName = "search_documentation"
)

// toolNames is the single source of truth for registered tool names.
var toolNames = []string{
	MachineStatusName,
	ProductStatusName,
	GeneralStatusName,
	ServiceOrdersName,
	SearchDocumentationName,
}

// ToolNames returns all registered tool names.
func ToolNames() []string {
	return toolNames
}

// StatusReader reads live machine and product state. *livestate.Service
// satisfies it.
type StatusReader interface {
	MachineStatus(ctx context.Context, machineName string) (string, error)
	ProductStatus(ctx context.Context, machineName string) (string, error)
	GeneralStatus(ctx context.Context) (string, error)
}

// OrderSearcher queries the Dude service-order API. *ticket.Client
// satisfies it.
type OrderSearcher interface {
	Search(ctx context.Context, filter ticket.Filter, rawInput string) (string, error)
}

// DocumentSearcher performs semantic retrieval over indexed documentation.
// *knowledge.Store satisfies it.
type DocumentSearcher interface {
	Search(ctx context.Context, query string, opts ...knowledge.SearchOption) ([]knowledge.Result, error)
}

// Entities holds the canonical reference lists the handlers resolve
// free-text mentions against. Loaded once at startup, read-only afterwards.
type Entities struct {
	// Machines as named in the live status tables.
	Machines []string
	// TicketMachines as the Dude API spells the same equipment.
	TicketMachines []string
	// OrderStatuses accepted by the Dude API.
	OrderStatuses []string
}

// Handler holds the dependencies shared by all tool handlers.
type Handler struct {
	resolver *resolver.Resolver
	status   StatusReader
	orders   OrderSearcher
	docs     DocumentSearcher
	entities Entities
	topK     int
	logger   log.Logger
}

// NewHandler creates a Handler with all tool dependencies.
// topK bounds documentation retrieval results.
func NewHandler(
	res *resolver.Resolver,
	status StatusReader,
	orders OrderSearcher,
	docs DocumentSearcher,
	entities Entities,
	topK int,
	logger log.Logger,
) (*Handler, error) {
	if res == nil {
		return nil, errors.New("tools: resolver is required")
	}
	if status == nil {
		return nil, errors.New("tools: status reader is required")
	}
	if orders == nil {
		return nil, errors.New("tools: order searcher is required")
	}
	if docs == nil {
		return nil, errors.New("tools: document searcher is required")
	}
	if len(entities.Machines) == 0 {
		return nil, errors.New("tools: machine list must not be empty")
	}
	if topK <= 0 {
		topK = 3
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Handler{
		resolver: res,
		status:   status,
		orders:   orders,
		docs:     docs,
		entities: entities,
		topK:     topK,
		logger:   logger.With("component", "tools"),
	}, nil
}
