package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type requestBookRequest struct {
	BookID           string `json:"book_id" binding:"required"`
	LoanDurationDays int    `json:"loan_duration_days"`
}

func (h *Handler) requestBook(c *gin.Context) {
	var req requestBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	bookID, err := uuid.Parse(req.BookID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid book id"})
		return
	}

	borrowing, err := h.borrowing.Request(currentUser(c), bookID, req.LoanDurationDays)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, borrowing)
}

func (h *Handler) myBooks(c *gin.Context) {
	borrowings, err := h.borrowing.MyBorrowings(currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, borrowings)
}

type decisionRequest struct {
	LibrarianMessage string `json:"librarian_message"`
}

func (h *Handler) approveRequest(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req decisionRequest
	_ = c.ShouldBindJSON(&req) // body is optional

	borrowing, err := h.borrowing.Approve(currentUser(c), id, req.LibrarianMessage)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, borrowing)
}

func (h *Handler) rejectRequest(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req decisionRequest
	_ = c.ShouldBindJSON(&req)

	borrowing, err := h.borrowing.Reject(currentUser(c), id, req.LibrarianMessage)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, borrowing)
}

func (h *Handler) markReady(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	borrowing, err := h.borrowing.MarkReady(currentUser(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, borrowing)
}

func (h *Handler) markPickup(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	borrowing, err := h.borrowing.MarkPickup(currentUser(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, borrowing)
}

// returnBook serves both self-service and librarian returns; the service
// decides who may return what.
func (h *Handler) returnBook(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	borrowing, err := h.borrowing.Return(currentUser(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, borrowing)
}

func (h *Handler) cancelRequest(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	borrowing, err := h.borrowing.Cancel(currentUser(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, borrowing)
}

type extensionRequest struct {
	RequestedDays int    `json:"requested_days" binding:"required"`
	Message       string `json:"message"`
}

func (h *Handler) requestExtension(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req extensionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	borrowing, err := h.borrowing.RequestExtension(currentUser(c), id, req.RequestedDays, req.Message)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, borrowing)
}

type extensionDecisionRequest struct {
	RequestedDays    int    `json:"requested_days"`
	LibrarianMessage string `json:"librarian_message"`
}

func (h *Handler) approveExtension(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req extensionDecisionRequest
	_ = c.ShouldBindJSON(&req)

	borrowing, err := h.borrowing.ApproveExtension(currentUser(c), id, req.RequestedDays, req.LibrarianMessage)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, borrowing)
}

func (h *Handler) declineExtension(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req extensionDecisionRequest
	_ = c.ShouldBindJSON(&req)

	borrowing, err := h.borrowing.DeclineExtension(currentUser(c), id, req.LibrarianMessage)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, borrowing)
}

func (h *Handler) pendingRequests(c *gin.Context) {
	borrowings, err := h.borrowing.PendingRequests(currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, borrowings)
}

func (h *Handler) activeLoans(c *gin.Context) {
	borrowings, err := h.borrowing.ActiveLoans(currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, borrowings)
}

func (h *Handler) loanHistory(c *gin.Context) {
	borrowings, err := h.borrowing.LoanHistory(currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, borrowings)
}

func (h *Handler) allBookRequests(c *gin.Context) {
	borrowings, err := h.borrowing.AllRequests(currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, borrowings)
}
