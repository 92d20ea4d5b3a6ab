package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdesk/pricing-engine/internal/rules"
)

func testRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/internal/rules/fields", ListConditionFields)
	router.POST("/internal/price-lists/:priceListId/apply-rules", ApplyRules)
	return router
}

func TestListConditionFields(t *testing.T) {
	router := testRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/internal/rules/fields", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp ConditionFieldsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Fields, len(rules.FieldCatalog))

	names := lo.Map(resp.Fields, func(f ConditionField, _ int) string { return f.Name })
	assert.True(t, sort.StringsAreSorted(names), "catalog order must be stable, got %v", names)

	byName := make(map[string]ConditionField, len(resp.Fields))
	for _, f := range resp.Fields {
		byName[f.Name] = f
	}

	baseCost, ok := byName["baseCost"]
	require.True(t, ok)
	assert.Equal(t, "number", baseCost.Type)
	assert.Contains(t, baseCost.Operators, "between")

	category, ok := byName["category"]
	require.True(t, ok)
	assert.Equal(t, "string", category.Type)
	assert.NotContains(t, category.Operators, "gt")
}

func TestApplyRulesRejectsMalformedBody(t *testing.T) {
	router := testRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost,
		"/internal/price-lists/pl-1/apply-rules",
		strings.NewReader(`{"quantity": "a lot"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestApplyRulesWithoutEngineInitialized(t *testing.T) {
	// Handlers must fail loudly, not panic, when wiring never happened.
	ruleEngine = nil
	router := testRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost,
		"/internal/price-lists/pl-1/apply-rules", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
