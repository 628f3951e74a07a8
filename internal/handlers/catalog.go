package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/immatt-0/lenbrary/internal/services"
)

func (h *Handler) listBooks(c *gin.Context) {
	books, err := h.catalog.ListBooks(c.Query("search"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, books)
}

func (h *Handler) getBook(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	book, err := h.catalog.GetBook(id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

func (h *Handler) createBook(c *gin.Context) {
	var in services.BookInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	book, err := h.catalog.CreateBook(currentUser(c), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, book)
}

func (h *Handler) updateBook(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var in services.BookInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	book, err := h.catalog.UpdateBook(currentUser(c), id, in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

func (h *Handler) deleteBook(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := h.catalog.DeleteBook(currentUser(c), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type updateStockRequest struct {
	Stock     *int `json:"stock"`
	Inventory *int `json:"inventory"`
}

func (h *Handler) updateBookStock(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req updateStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	book, err := h.catalog.UpdateStock(currentUser(c), id, req.Stock, req.Inventory)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}
