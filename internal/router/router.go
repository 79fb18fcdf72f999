// Package router wires the HTTP surface: route groups, authentication and
// role enforcement per group.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/insuratrack/insuratrack/internal/handler"
	"github.com/insuratrack/insuratrack/internal/middleware"
	"github.com/insuratrack/insuratrack/internal/model"
)

// Handlers groups every handler the router needs.
type Handlers struct {
	Auth     *handler.AuthHandler
	Agent    *handler.AgentHandler
	Customer *handler.CustomerHandler
	Policy   *handler.PolicyHandler
	Message  *handler.MessageHandler
}

// Register mounts all routes. Public auth endpoints live under /api/auth;
// everything else requires a valid token, with role middleware applied
// per group.
func Register(e *echo.Echo, h Handlers, jwtSecret string) {
	e.GET("/healthz", handler.Health)

	api := e.Group("/api")

	// Unauthenticated.
	auth := api.Group("/auth")
	auth.POST("/register", h.Auth.Register)
	auth.POST("/login", h.Auth.Login)
	auth.POST("/forgot-password", h.Auth.ForgotPassword)
	auth.GET("/check-username/:username", h.Auth.CheckUsername)
	auth.PUT("/reset-password/:token", h.Auth.ResetPassword)

	// Any authenticated user.
	me := api.Group("/auth", middleware.JWTAuth(jwtSecret))
	me.GET("/me", h.Auth.Me)
	me.PUT("/update-password", h.Auth.UpdatePassword)
	me.PUT("/update-profile", h.Auth.UpdateProfile)

	agentOnly := middleware.RequireRole(model.RoleAgent)
	customerOnly := middleware.RequireRole(model.RoleCustomer)
	anyRole := middleware.RequireRole(model.RoleAgent, model.RoleCustomer)

	// Agent endpoints.
	agents := api.Group("/agents", middleware.JWTAuth(jwtSecret), agentOnly)
	agents.GET("/me", h.Agent.Me)
	agents.GET("/me/customers", h.Agent.MyCustomers)
	agents.GET("/me/policies", h.Agent.MyPolicies)
	agents.POST("/me/link-customer/:customerId", h.Agent.LinkCustomer)
	agents.GET("/search-customers", h.Agent.SearchCustomers)
	agents.DELETE("/customers/:id", h.Agent.DeleteCustomer)

	// Customer endpoints; agents manage, customers read themselves.
	customers := api.Group("/customers", middleware.JWTAuth(jwtSecret))
	customers.POST("", h.Customer.Create, agentOnly)
	customers.GET("/me", h.Customer.Me, customerOnly)
	customers.GET("/me/agents", h.Customer.MyAgents, customerOnly)
	customers.GET("/:id", h.Customer.Get, anyRole)
	customers.PUT("/:id", h.Customer.Update, anyRole)
	customers.GET("/:id/policies", h.Customer.CustomerPolicies, anyRole)

	// Policy endpoints. Static paths are registered before parameterized
	// ones for clarity; echo matches them by specificity either way.
	policies := api.Group("/policies", middleware.JWTAuth(jwtSecret))
	policies.POST("", h.Policy.Create, agentOnly)
	policies.GET("/filter", h.Policy.Filter, agentOnly)
	policies.GET("/historical", h.Policy.Historical, agentOnly)
	policies.DELETE("/historical/:id", h.Policy.DeleteHistorical, agentOnly)
	policies.GET("/check-policy-number/:number", h.Policy.CheckNumber, agentOnly)
	policies.GET("/renewal-month/:month", h.Policy.RenewalMonth, agentOnly)
	policies.GET("/:id", h.Policy.Get, anyRole)
	policies.PUT("/:id", h.Policy.Update, agentOnly)
	policies.DELETE("/:id", h.Policy.Delete, agentOnly)
	policies.PUT("/:id/toggle-status", h.Policy.ToggleStatus, agentOnly)
	policies.POST("/:id/renew", h.Policy.Renew, agentOnly)
	policies.GET("/:id/history", h.Policy.History, anyRole)
	policies.POST("/:id/document", h.Policy.UploadDocument, agentOnly)
	policies.GET("/:id/document", h.Policy.DocumentInfo, anyRole)
	policies.GET("/:id/document/download", h.Policy.DownloadDocument, anyRole)

	// Messaging.
	messages := api.Group("/messages", middleware.JWTAuth(jwtSecret))
	messages.POST("", h.Message.Send, customerOnly)
	messages.GET("/agent", h.Message.Inbox, agentOnly)
	messages.PUT("/:id/read", h.Message.MarkRead, anyRole)
	messages.POST("/reply/:id", h.Message.Reply, agentOnly)
	messages.GET("/conversation/:agentId", h.Message.Conversation, customerOnly)
	messages.DELETE("/:id", h.Message.Delete, anyRole)
}
