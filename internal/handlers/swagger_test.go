package handlers

import (
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// TestSwaggerDependenciesImportable verifies that swaggo packages can be imported
// and that the gin-swagger handler can be created.
func TestSwaggerDependenciesImportable(t *testing.T) {
	handler := ginSwagger.WrapHandler(swaggerFiles.Handler)
	assert.NotNil(t, handler, "ginSwagger.WrapHandler should return a non-nil handler")
}

// TestSwaggerRouteRegistration verifies that swagger routes can be registered on a Gin router.
func TestSwaggerRouteRegistration(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	assert.NotPanics(t, func() {
		router.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}, "Registering swagger handler should not panic")

	routes := router.Routes()
	found := false
	for _, route := range routes {
		if route.Path == "/docs/*any" && route.Method == "GET" {
			found = true
			break
		}
	}
	assert.True(t, found, "Swagger route should be registered")
}
