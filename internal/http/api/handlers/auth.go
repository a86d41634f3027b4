package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/cavelog/cavelog/internal/apperr"
	"github.com/cavelog/cavelog/internal/mailer"
	"github.com/cavelog/cavelog/internal/models"
	"github.com/cavelog/cavelog/internal/store"
	"github.com/cavelog/cavelog/internal/verify"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const verifyPath = "/account/verify/"

// Mailer enqueues transactional email.
type Mailer interface {
	Emit(ctx context.Context, template mailer.Template, recipient string, data map[string]any) error
}

// AuthHandler handles sign-up, sign-in and email verification.
type AuthHandler struct {
	users    *store.UserStore
	signer   *verify.Signer
	mail     Mailer
	siteRoot string
}

// NewAuthHandler constructs an AuthHandler. mail may be nil.
func NewAuthHandler(db *gorm.DB, signer *verify.Signer, mail Mailer, siteRoot string) *AuthHandler {
	return &AuthHandler{
		users:    store.NewUserStore(db),
		signer:   signer,
		mail:     mail,
		siteRoot: strings.TrimRight(siteRoot, "/"),
	}
}

// registerRequest defines the request body for account creation.
type registerRequest struct {
	Username string `json:"username" binding:"required,max=30"`
	Email    string `json:"email" binding:"required,email"`
	Name     string `json:"name" binding:"required,max=35"`
	Password string `json:"password" binding:"required,min=8"`
}

// Register creates an inactive account and emails a verification code.
func (h *AuthHandler) Register(c *gin.Context) {
	var body registerRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	user := &models.User{
		Username: body.Username,
		Email:    body.Email,
		Name:     strings.TrimSpace(body.Name),
	}
	if errCreate := h.users.Create(c.Request.Context(), user, body.Password); errCreate != nil {
		respondError(c, errCreate)
		return
	}
	h.sendVerification(c.Request.Context(), user, user.Email, mailer.VerifyNewAccount)
	log.WithField("user", user.Username).Info("auth: account registered")
	c.JSON(http.StatusCreated, gin.H{"uuid": user.UUID, "username": user.Username})
}

func (h *AuthHandler) sendVerification(ctx context.Context, user *models.User, email string, template mailer.Template) {
	if h.mail == nil {
		return
	}
	code, errToken := h.signer.TokenFor(user.ID, email)
	if errToken != nil {
		log.WithError(errToken).Warn("auth: sign verification code")
		return
	}
	_ = h.mail.Emit(ctx, template, email, map[string]any{
		"name":        user.Name,
		"verify_url":  h.siteRoot + verifyPath + "?code=" + code,
		"verify_code": code,
	})
}

// loginRequest defines the request body for sign-in.
type loginRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
}

// Login exchanges a handle or email and password for a session token.
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	ctx := c.Request.Context()
	user, errUser := h.users.ByIdentifier(ctx, strings.TrimSpace(body.Identifier))
	if errUser != nil || !store.CheckPassword(user, body.Password) {
		if errUser != nil && !apperr.Is(errUser, apperr.KindNotFound) {
			respondError(c, errUser)
			return
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if !user.IsActive {
		c.JSON(http.StatusForbidden, gin.H{"error": "account is not active"})
		return
	}
	token, errToken := h.signer.SessionToken(user)
	if errToken != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	if errTouch := h.users.Touch(ctx, user.ID, time.Now()); errTouch != nil {
		log.WithError(errTouch).Warn("auth: touch last seen")
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user": profileJSON(user, true)})
}

// verifyRequest defines the request body for email verification.
type verifyRequest struct {
	Code string `json:"code" binding:"required"`
}

// Verify activates the account or confirms the email change a code was
// issued for.
func (h *AuthHandler) Verify(c *gin.Context) {
	var body verifyRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	userID, email, errVerify := h.signer.Verify(strings.TrimSpace(body.Code))
	if errVerify != nil {
		respondError(c, errVerify)
		return
	}
	user, errUser := h.users.Verify(c.Request.Context(), userID, email)
	if errUser != nil {
		if apperr.Is(errUser, apperr.KindNotFound) {
			respondError(c, apperr.FieldError("verify_code", "Email verification code is not valid or has expired."))
			return
		}
		respondError(c, errUser)
		return
	}
	log.WithField("user", user.Username).Info("auth: email verified")
	c.JSON(http.StatusOK, gin.H{"user": profileJSON(user, true)})
}

// changeEmailRequest defines the request body for an email change.
type changeEmailRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// ChangeEmail sends a verification code to the new address and tells the
// old address about the change. The stored email changes once verified.
func (h *AuthHandler) ChangeEmail(c *gin.Context) {
	user := CurrentUser(c)
	var body changeEmailRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	ctx := c.Request.Context()
	email := strings.TrimSpace(body.Email)
	if strings.EqualFold(email, user.Email) {
		respondError(c, apperr.FieldError("email", "This is already your email address."))
		return
	}
	if _, errExisting := h.users.ByEmail(ctx, email); errExisting == nil {
		respondError(c, apperr.FieldError("email", "That email address is already in use."))
		return
	} else if !apperr.Is(errExisting, apperr.KindNotFound) {
		respondError(c, errExisting)
		return
	}
	h.sendVerification(ctx, user, email, mailer.VerifyEmailChange)
	if h.mail != nil {
		_ = h.mail.Emit(ctx, mailer.NotifyEmailChange, user.Email, map[string]any{
			"name":      user.Name,
			"old_email": user.Email,
			"new_email": email,
		})
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "Check your new email address for a verification link."})
}
