package handlers

import (
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/opsdesk/pricing-engine/internal/engine"
	"github.com/opsdesk/pricing-engine/internal/rules"
)

// ActiveRulesResponse represents the active rule set in evaluation order
type ActiveRulesResponse struct {
	Rules    []RuleView `json:"rules" jsonschema:"required"`
	Warnings []Excluded `json:"warnings,omitempty"`
	Total    int        `json:"total" jsonschema:"required"`
}

// RuleView represents one rule as evaluated by the engine
type RuleView struct {
	ID          string          `json:"id" jsonschema:"required"`
	Name        string          `json:"name" jsonschema:"required"`
	Description string          `json:"description,omitempty"`
	RuleType    rules.RuleType  `json:"ruleType" jsonschema:"required,enum=percentual,enum=fixed,enum=escalated,enum=dynamic"`
	Priority    int             `json:"priority" jsonschema:"required"`
	Conditions  rules.Condition `json:"conditions"`
	Actions     []rules.Action  `json:"actions"`
	Expression  string          `json:"expression,omitempty"`
}

// Excluded represents a rule excluded from the active set
type Excluded struct {
	RuleID   string `json:"ruleId"`
	RuleName string `json:"ruleName,omitempty"`
	Reason   string `json:"reason" jsonschema:"required"`
}

// ListActiveRules returns the rule set in the exact order the engine evaluates it
// @Summary List active rules
// @Description Returns the validated active rules for a price list in evaluation order (priority ascending, rule ID tie-break). Structurally invalid rules are listed as warnings.
// @Tags rules
// @Accept json
// @Produce json
// @Param priceListId path string true "Price list ID"
// @Success 200 {object} ActiveRulesResponse
// @Failure 400 {object} map[string]string "Bad request"
// @Failure 404 {object} map[string]string "Price list not found"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /internal/price-lists/{priceListId}/rules [get]
func ListActiveRules(c *gin.Context) {
	priceListID := c.Param("priceListId")
	if priceListID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "priceListId is required"})
		return
	}

	if ruleEngine == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Engine not initialized"})
		return
	}

	compiled, warnings, err := ruleEngine.ActiveRules(c.Request.Context(), priceListID)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	views := lo.Map(compiled, func(r rules.CompiledRule, _ int) RuleView {
		return RuleView{
			ID:          r.ID,
			Name:        r.Name,
			Description: r.Description,
			RuleType:    r.RuleType,
			Priority:    r.Priority,
			Conditions:  r.Conditions,
			Actions:     r.Actions,
			Expression:  r.Expression,
		}
	})

	excluded := lo.Map(warnings, func(w engine.Warning, _ int) Excluded {
		return Excluded{RuleID: w.RuleID, RuleName: w.RuleName, Reason: w.Reason}
	})

	c.JSON(http.StatusOK, ActiveRulesResponse{
		Rules:    views,
		Warnings: excluded,
		Total:    len(views),
	})
}

// ConditionFieldsResponse represents the condition field catalog
type ConditionFieldsResponse struct {
	Fields []ConditionField `json:"fields" jsonschema:"required"`
}

// ConditionField describes one field rules may condition on
type ConditionField struct {
	Name      string   `json:"name" jsonschema:"required"`
	Type      string   `json:"type" jsonschema:"required,enum=string,enum=number,enum=bool,enum=date"`
	Operators []string `json:"operators" jsonschema:"required"`
}

// ListConditionFields returns the field catalog the rule editor builds conditions from
// @Summary List condition fields
// @Description Returns the catalog of fields rules may condition on, with the operators valid for each field type
// @Tags rules
// @Accept json
// @Produce json
// @Success 200 {object} ConditionFieldsResponse
// @Router /internal/rules/fields [get]
func ListConditionFields(c *gin.Context) {
	fields := make([]ConditionField, 0, len(rules.FieldCatalog))
	for name, ft := range rules.FieldCatalog {
		ops := rules.OperatorsFor(ft)
		opNames := make([]string, len(ops))
		for i, op := range ops {
			opNames[i] = string(op)
		}
		fields = append(fields, ConditionField{
			Name:      name,
			Type:      string(ft),
			Operators: opNames,
		})
	}
	// The catalog is a map; sort so the admin UI sees a stable order.
	sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })

	c.JSON(http.StatusOK, ConditionFieldsResponse{Fields: fields})
}
