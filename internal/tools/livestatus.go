package tools

// livestatus.go defines the live machine and product status tools.
//
// Free-text machine mentions are resolved against the canonical machine
// list before any query runs. Below-threshold matches produce a not-found
// message instead of a guessed query.

import (
	"errors"
	"fmt"

	"github.com/firebase/genkit/go/ai"

	"github.com/weftworks/loombot/internal/livestate"
)

// MachineStatusInput is the input for the machine_status tool.
type MachineStatusInput struct {
	Machine string `json:"machine" jsonschema_description:"Nome ou identificador da máquina ou tear"`
}

// ProductStatusInput is the input for the product_status tool.
type ProductStatusInput struct {
	Machine string `json:"machine" jsonschema_description:"Nome ou identificador da máquina que produz o produto"`
}

// GeneralStatusInput is the input for the general_status tool. It has no
// fields; the tool always reports the whole floor.
type GeneralStatusInput struct{}

// MachineStatus returns the live status row of one machine as JSON text.
func (h *Handler) MachineStatus(ctx *ai.ToolContext, input MachineStatusInput) (string, error) {
	canonical, ok := h.resolveMachine(input.Machine, h.entities.Machines)
	if !ok {
		return machineNotFound(input.Machine), nil
	}

	out, err := h.status.MachineStatus(ctx, canonical)
	if err != nil {
		if errors.Is(err, livestate.ErrNotFound) {
			return noMachineRows(canonical), nil
		}
		h.logger.Error("machine status query failed", "machine", canonical, "error", err)
		return databaseError(err), nil
	}
	return out, nil
}

// ProductStatus returns the running-product row of one machine as JSON text.
func (h *Handler) ProductStatus(ctx *ai.ToolContext, input ProductStatusInput) (string, error) {
	canonical, ok := h.resolveMachine(input.Machine, h.entities.Machines)
	if !ok {
		return machineNotFound(input.Machine), nil
	}

	out, err := h.status.ProductStatus(ctx, canonical)
	if err != nil {
		if errors.Is(err, livestate.ErrNotFound) {
			return noMachineRows(canonical), nil
		}
		h.logger.Error("product status query failed", "machine", canonical, "error", err)
		return databaseError(err), nil
	}
	return out, nil
}

// GeneralStatus returns the joined machine and product state of the whole
// floor as a JSON array.
func (h *Handler) GeneralStatus(ctx *ai.ToolContext, _ GeneralStatusInput) (string, error) {
	out, err := h.status.GeneralStatus(ctx)
	if err != nil {
		if errors.Is(err, livestate.ErrNotFound) {
			return "Nenhum dado encontrado.", nil
		}
		h.logger.Error("general status query failed", "error", err)
		return databaseError(err), nil
	}
	return out, nil
}

// resolveMachine fuzzy-matches a free-text machine mention against the
// given canonical list.
func (h *Handler) resolveMachine(text string, candidates []string) (string, bool) {
	match, ok := h.resolver.Resolve(text, candidates)
	if !ok {
		h.logger.Debug("machine not resolved", "input", text, "score", match.Score)
		return "", false
	}
	h.logger.Debug("machine resolved", "input", text, "canonical", match.Value, "score", match.Score)
	return match.Value, true
}

func machineNotFound(input string) string {
	return fmt.Sprintf("Equipamento '%s' não encontrado na lista de máquinas válidas.", input)
}

func noMachineRows(canonical string) string {
	return fmt.Sprintf("Nenhuma máquina encontrada com o nome parecido com '%s'.", canonical)
}

func databaseError(err error) string {
	return fmt.Sprintf("Ocorreu um erro ao conectar ao banco de dados: %v", err)
}
