package tools

// orders.go defines the service_orders tool for the Dude ticketing API.
//
// Free-text fields are normalized before the API call: equipment resolves
// against the Dude spelling of the machine list, status against the closed
// status set, and dates are reshaped into the API's timestamp form. An
// unparseable date is passed through unchanged so the API response makes
// the mismatch visible instead of silently dropping the filter.

import (
	"fmt"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"

	"github.com/weftworks/loombot/internal/ticket"
)

// ServiceOrdersInput is the input for the service_orders tool.
type ServiceOrdersInput struct {
	Input     string `json:"input" jsonschema_description:"A pergunta original do usuário, sem alterações"`
	Equipment string `json:"equipment,omitempty" jsonschema_description:"Nome do equipamento ou máquina a consultar"`
	Status    string `json:"status,omitempty" jsonschema_description:"Status da ordem de serviço. Valores permitidos: 'New Request', 'In Progress', 'Completed'"`
	DateISO   string `json:"date_iso,omitempty" jsonschema_description:"Data da consulta no formato 'YYYY-MM-DDThh-mm-ss'. Converta 'hoje' ou 'ontem' para este formato"`
}

// dateLayouts are the accepted input forms for the date filter, tried in order.
var dateLayouts = []string{
	"2006-01-02T15-04-05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// dudeDateLayout is the timestamp form the Dude API expects.
const dudeDateLayout = "2006-01-02T15-04-05"

// ServiceOrders searches the Dude API for service orders matching the
// normalized filter. With every filter field empty it refuses the call and
// asks for a narrower request instead of issuing an unconstrained search.
func (h *Handler) ServiceOrders(ctx *ai.ToolContext, input ServiceOrdersInput) (string, error) {
	var filter ticket.Filter

	if input.Equipment != "" {
		match, ok := h.resolver.Resolve(input.Equipment, h.entities.TicketMachines)
		if !ok {
			return machineNotFound(input.Equipment), nil
		}
		filter.Equipment = match.Value
	}

	if input.Status != "" {
		filter.Status = h.normalizeStatus(input.Status)
	}

	if input.DateISO != "" {
		filter.Date = normalizeDate(input.DateISO)
	}

	if filter.IsEmpty() {
		return "Por favor, especifique pelo menos um filtro (equipamento, status ou data) para buscar ordens de serviço.", nil
	}

	h.logger.Debug("searching service orders",
		"equipment", filter.Equipment,
		"status", filter.Status,
		"date", filter.Date)

	out, err := h.orders.Search(ctx, filter, input.Input)
	if err != nil {
		h.logger.Error("service order search failed", "error", err)
		return fmt.Sprintf("Ocorreu um erro ao consultar as ordens de serviço: %v", err), nil
	}
	return out, nil
}

// normalizeStatus maps a free-text status onto the closed status set.
// Unresolvable values pass through unchanged.
func (h *Handler) normalizeStatus(status string) string {
	if match, ok := h.resolver.Resolve(status, h.entities.OrderStatuses); ok {
		return match.Value
	}
	return strings.TrimSpace(status)
}

// normalizeDate reshapes an ISO-ish date into the Dude timestamp form.
// Unparseable input is returned unchanged.
func normalizeDate(raw string) string {
	trimmed := strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.Format(dudeDateLayout)
		}
	}
	return trimmed
}
