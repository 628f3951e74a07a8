package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/immatt-0/lenbrary/internal/services"
)

func (h *Handler) register(c *gin.Context) {
	var in services.RegisterInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := h.accounts.Register(in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "Cont creat. Verifică-ți emailul pentru a activa contul.",
		"user_id": user.ID,
		"email":   user.Email,
	})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	token, user, err := h.accounts.Login(req.Email, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user": gin.H{
			"id":           user.ID,
			"email":        user.Email,
			"username":     user.Username,
			"display_name": user.DisplayName(),
			"role":         user.Role,
			"is_librarian": user.IsLibrarian(),
		},
	})
}

// verifyEmail is the endpoint behind the emailed link, so it answers with a
// small HTML page instead of JSON.
func (h *Handler) verifyEmail(c *gin.Context) {
	err := h.accounts.VerifyEmail(c.Query("token"))
	if err != nil {
		c.Data(http.StatusBadRequest, "text/html; charset=utf-8",
			[]byte("<html><body><h2>Verificarea a eșuat</h2><p>"+err.Error()+"</p></body></html>"))
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8",
		[]byte("<html><body><h2>Email verificat</h2><p>Contul tău este activ. Te poți autentifica.</p></body></html>"))
}

func (h *Handler) userInfo(c *gin.Context) {
	user := currentUser(c)
	profile, err := h.accounts.Profile(user)
	if err != nil {
		writeError(c, err)
		return
	}

	out := gin.H{
		"id":           user.ID,
		"email":        user.Email,
		"username":     user.Username,
		"first_name":   user.FirstName,
		"last_name":    user.LastName,
		"display_name": user.DisplayName(),
		"role":         user.Role,
		"is_librarian": user.IsLibrarian(),
	}
	if profile != nil {
		out["profile"] = gin.H{
			"student_id":    profile.StudentID,
			"school_type":   profile.SchoolType,
			"department":    profile.Department,
			"student_class": profile.StudentClass,
			"phone_number":  profile.PhoneNumber,
		}
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) resendVerification(c *gin.Context) {
	if err := h.accounts.ResendVerification(currentUser(c)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Email de verificare trimis."})
}

func (h *Handler) createInvitation(c *gin.Context) {
	inv, err := h.accounts.CreateInvitation(currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, inv)
}

func (h *Handler) listInvitations(c *gin.Context) {
	invs, err := h.accounts.ListInvitations(currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, invs)
}

func (h *Handler) deleteInvitation(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := h.accounts.DeleteInvitation(currentUser(c), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) cleanupInvitations(c *gin.Context) {
	removed, err := h.accounts.CleanupExpiredInvitations(currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}
