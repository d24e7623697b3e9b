package router

import (
	"net/http"
	"strings"

	"github.com/aett-transit/ticket-service/api"
	"github.com/aett-transit/ticket-service/internal/handler"
	"github.com/aett-transit/ticket-service/internal/service"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

const pathSwagger = "/swagger"

func New(ticketHandler *handler.TicketHandler, svc *service.TicketService, apiKey string) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/health", handler.Health(svc))
	r.GET("/ready", handler.Ready)
	r.GET(pathSwagger, func(c *gin.Context) { c.Redirect(http.StatusFound, pathSwagger+"/") })
	r.GET(pathSwagger+"/*any", func(c *gin.Context) {
		if strings.TrimPrefix(c.Param("any"), "/") == "openapi.json" {
			c.Data(http.StatusOK, "application/json", api.OpenAPISpec)
			return
		}
		if strings.TrimPrefix(c.Param("any"), "/") == "" {
			c.Request.URL.Path = pathSwagger + "/index.html"
			c.Request.RequestURI = pathSwagger + "/index.html"
		}
		ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/openapi.json"))(c)
	})

	tickets := r.Group("/tickets")
	{
		// Issuance needs the API key; verification is open for checking
		// devices in the field.
		tickets.POST("/buy", apiKeyAuth(apiKey), ticketHandler.Buy)
		tickets.POST("/verify", ticketHandler.Verify)
	}

	return r
}

// apiKeyAuth rejects issuance calls without the configured X-API-Key.
// An empty configured key disables the check (development).
func apiKeyAuth(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key != "" && c.GetHeader("X-API-Key") != key {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
			return
		}
		c.Next()
	}
}
