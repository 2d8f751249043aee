package user

import (
	"net/http"
	"time"

	"collaborative-ide/auth"
	"collaborative-ide/internal/errors"

	"github.com/gin-gonic/gin"
)

const refreshCookie = "refresh_token"

// TokenIssuer signs and verifies the access and refresh tokens handed out
// at login.
type TokenIssuer interface {
	SignAccess(userID string, version uint64) (string, error)
	SignRefresh(userID string, version uint64) (string, error)
	Verify(token, kind string) (auth.Claims, error)
	RefreshTTL() time.Duration
}

type Handler struct {
	service       Service
	tokens        TokenIssuer
	secureCookies bool
}

func NewHandler(service Service, tokens TokenIssuer, secureCookies bool) *Handler {
	return &Handler{service: service, tokens: tokens, secureCookies: secureCookies}
}

type FormLogin struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type FormRegister struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

func (h *Handler) Register(c *gin.Context) {
	var form FormRegister
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	user := &User{
		Name:     form.Name,
		Email:    form.Email,
		Password: form.Password,
		IsActive: true,
	}
	if err := h.service.Register(c.Request.Context(), user); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"user": user.ToSafeUser()})
}

func (h *Handler) Login(c *gin.Context) {
	var form FormLogin
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	user, err := h.service.Login(c.Request.Context(), form.Email, form.Password)
	if err != nil {
		c.Error(err)
		return
	}

	accessToken, err := h.tokens.SignAccess(user.ID, user.TokenVersion)
	if err != nil {
		c.Error(errors.Internal(err))
		return
	}
	refreshToken, err := h.tokens.SignRefresh(user.ID, user.TokenVersion)
	if err != nil {
		c.Error(errors.Internal(err))
		return
	}

	// Refresh token lives in an HttpOnly cookie
	c.SetCookie(
		refreshCookie,
		refreshToken,
		int(h.tokens.RefreshTTL().Seconds()),
		"/",
		"",
		h.secureCookies,
		true,
	)

	c.JSON(http.StatusOK, gin.H{
		"access_token": accessToken,
		"user":         user.ToSafeUser(),
	})
}

func (h *Handler) RefreshToken(c *gin.Context) {
	refreshToken, err := c.Cookie(refreshCookie)
	if err != nil {
		c.Error(errors.Unauthorized("Refresh token is not found!", err))
		return
	}

	claims, err := h.tokens.Verify(refreshToken, auth.KindRefresh)
	if err != nil {
		c.Error(errors.Unauthorized("Invalid token or expired!", err))
		return
	}

	if err := h.service.CheckTokenVersion(c.Request.Context(), claims.UserID, claims.Version); err != nil {
		c.Error(err)
		return
	}

	accessToken, err := h.tokens.SignAccess(claims.UserID, claims.Version)
	if err != nil {
		c.Error(errors.Internal(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"access_token": accessToken})
}

// Logout revokes every token issued to the caller so far.
func (h *Handler) Logout(c *gin.Context) {
	if err := h.service.Logout(c.Request.Context(), c.GetString("user_id")); err != nil {
		c.Error(err)
		return
	}

	h.clearRefreshCookie(c)
	c.Status(http.StatusNoContent)
}

func (h *Handler) GetProfile(c *gin.Context) {
	user, err := h.service.GetUserByID(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, user.ToSafeUser())
}

// DeleteProfile deactivates the caller's account. The row stays so project
// ownership and history remain intact.
func (h *Handler) DeleteProfile(c *gin.Context) {
	if err := h.service.DeactivateUser(c.Request.Context(), c.GetString("user_id")); err != nil {
		c.Error(err)
		return
	}

	h.clearRefreshCookie(c)
	c.Status(http.StatusNoContent)
}

func (h *Handler) SearchUsers(c *gin.Context) {
	users, err := h.service.SearchUsers(c.Request.Context(), c.Query("q"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"users": users})
}

func (h *Handler) clearRefreshCookie(c *gin.Context) {
	c.SetCookie(refreshCookie, "", -1, "/", "", h.secureCookies, true)
}
