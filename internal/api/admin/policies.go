// policies.go implements handlers for policy rule configuration.
package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/leadpilot/governance/internal/db/models"
	"github.com/leadpilot/governance/internal/policy"
)

// PolicyHandlers handles policy rule API endpoints
type PolicyHandlers struct {
	engine *policy.Engine
}

// NewPolicyHandlers creates a new policy handlers instance
func NewPolicyHandlers(engine *policy.Engine) *PolicyHandlers {
	return &PolicyHandlers{engine: engine}
}

// @Summary      List policy rules
// @Description  Returns active policy rules in evaluation order, optionally filtered by policy type. Requires the configure_policies permission.
// @Tags         Policies
// @Security     Bearer
// @Produce      json
// @Param        type  query  string  false  "Policy type filter (data_access, ai_behavior, communication, retention, privacy, security, compliance)"
// @Success      200  {array}   models.PolicyRule
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Router       /api/v1/admin/policies [get]
// ListRules returns active policy rules
// GET /api/v1/admin/policies
func (h *PolicyHandlers) ListRules(c *gin.Context) {
	if t := c.Query("type"); t != "" {
		c.JSON(http.StatusOK, h.engine.Rules(models.PolicyType(t)))
		return
	}

	var rules []models.PolicyRule
	for _, pt := range models.AllPolicyTypes() {
		rules = append(rules, h.engine.Rules(pt)...)
	}
	c.JSON(http.StatusOK, rules)
}

// @Summary      Add policy rule
// @Description  Validates, persists, and activates a policy rule. A rule with an existing rule_id replaces the stored definition. The rule takes effect on the next evaluation without a restart. Requires the configure_policies permission.
// @Tags         Policies
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  models.PolicyRule  true  "Policy rule"
// @Success      201  {object}  models.PolicyRule
// @Failure      400  {object}  map[string]interface{}  "Invalid rule"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/admin/policies [post]
// AddRule validates and activates a policy rule
// POST /api/v1/admin/policies
func (h *PolicyHandlers) AddRule(c *gin.Context) {
	var rule models.PolicyRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.engine.AddRule(c.Request.Context(), rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, rule)
}
