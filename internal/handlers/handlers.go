package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/immatt-0/lenbrary/internal/auth"
	"github.com/immatt-0/lenbrary/internal/services"
)

// Handler bundles the application services behind the HTTP surface.
type Handler struct {
	accounts  *services.AccountService
	catalog   *services.CatalogService
	borrowing *services.BorrowingService
	messaging *services.MessagingService
}

// RegisterRoutes wires every endpoint under /api. All role and ownership
// checks live in the services; the middleware only establishes identity.
func RegisterRoutes(
	r *gin.Engine,
	tokens *auth.Manager,
	accounts *services.AccountService,
	catalog *services.CatalogService,
	borrowing *services.BorrowingService,
	messaging *services.MessagingService,
) {
	h := &Handler{
		accounts:  accounts,
		catalog:   catalog,
		borrowing: borrowing,
		messaging: messaging,
	}

	api := r.Group("/api")

	// Public endpoints
	api.POST("/register", h.register)
	api.POST("/login", h.login)
	api.GET("/verify-email", h.verifyEmail)

	authed := api.Group("")
	authed.Use(AuthRequired(tokens, accounts))

	// Account
	authed.GET("/user-info", h.userInfo)
	authed.POST("/send-verification-email", h.resendVerification)

	// Catalogue
	authed.GET("/books", h.listBooks)
	authed.GET("/books/:id", h.getBook)
	authed.POST("/books", h.createBook)
	authed.PUT("/books/:id", h.updateBook)
	authed.DELETE("/books/:id", h.deleteBook)
	authed.POST("/update-book-stock/:id", h.updateBookStock)

	// Borrowing lifecycle — borrower side
	authed.POST("/request-book", h.requestBook)
	authed.GET("/my-books", h.myBooks)
	authed.POST("/return-book/:id", h.returnBook)
	authed.POST("/cancel-request/:id", h.cancelRequest)
	authed.POST("/request-extension/:id", h.requestExtension)

	// Borrowing lifecycle — librarian side
	authed.GET("/pending-requests", h.pendingRequests)
	authed.GET("/active-loans", h.activeLoans)
	authed.GET("/loan-history", h.loanHistory)
	authed.GET("/all-book-requests", h.allBookRequests)
	authed.POST("/approve-request/:id", h.approveRequest)
	authed.POST("/reject-request/:id", h.rejectRequest)
	authed.POST("/mark-ready/:id", h.markReady)
	authed.POST("/mark-pickup/:id", h.markPickup)
	authed.POST("/librarian-return/:id", h.returnBook)
	authed.POST("/approve-extension/:id", h.approveExtension)
	authed.POST("/decline-extension/:id", h.declineExtension)

	// Messaging & notifications
	authed.POST("/send-message", h.sendMessage)
	authed.GET("/messages", h.getMessages)
	authed.POST("/mark-message-read/:id", h.markMessageRead)
	authed.GET("/users", h.listUsers)
	authed.GET("/search-users", h.searchUsers)
	authed.GET("/notifications", h.notifications)
	authed.POST("/mark-notification-read/:id", h.markNotificationRead)

	// Invitation codes
	authed.POST("/invitation-codes/create", h.createInvitation)
	authed.GET("/invitation-codes", h.listInvitations)
	authed.DELETE("/invitation-codes/:id", h.deleteInvitation)
	authed.POST("/invitation-codes/cleanup", h.cleanupInvitations)
}

// writeError maps service sentinels onto HTTP status codes.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, services.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrDuplicateRequest),
		errors.Is(err, services.ErrInvalidState),
		errors.Is(err, services.ErrNoStock):
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// idParam parses the :id path segment as a UUID.
func idParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}
