package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"inventory_service/internal/auth"
	"inventory_service/internal/config"
	"inventory_service/internal/models"
	"inventory_service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
	googleuuid "github.com/google/uuid"
)

const (
	sessionCookieName = "token"

	envProd = "prod"
)

type Handler struct {
	serviceLayer service.Service
	limiter      *RateLimiter
	cfg          *config.Config
	log          *slog.Logger
}

type errorResponse struct {
	Message string `json:"message"`
}

func newErrorResponse(c *gin.Context, statusCode int, errMessage string) {
	c.AbortWithStatusJSON(statusCode, errorResponse{Message: errMessage})
}

func NewHandler(srvc service.Service, limiter *RateLimiter, cfg *config.Config, lgr *slog.Logger) *Handler {
	return &Handler{
		serviceLayer: srvc,
		limiter:      limiter,
		cfg:          cfg,
		log:          lgr,
	}
}

func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(h.log))

	// The frontend calls /api/users/...; the bare paths are kept as
	// aliases for clients that skip the prefix.
	h.registerUserRoutes(router.Group(""))
	h.registerUserRoutes(router.Group("/api/users"))

	return router
}

func (h *Handler) registerUserRoutes(rg *gin.RouterGroup) {
	rg.POST("/register", h.Register)
	rg.POST("/login", h.limiter.Middleware("login"), h.Login)
	rg.GET("/logout", h.Logout)
	rg.POST("/logout", h.Logout)
	rg.GET("/loginstatus", h.LoginStatus)
	rg.POST("/forgotpassword", h.limiter.Middleware("forgotpassword"), h.ForgotPassword)
	rg.PUT("/resetpassword/:resetToken", h.ResetPassword)

	authed := rg.Group("", h.AuthMiddleware())
	authed.GET("/user", h.GetUser)
	authed.PATCH("/user", h.UpdateUser)
	authed.PATCH("/changepassword", h.ChangePassword)
}

// AuthMiddleware verifies the session cookie and stores the user id for
// the handlers behind it. It never touches the database.
func (h *Handler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, err := c.Cookie(sessionCookieName)
		if err != nil || tokenStr == "" {
			newErrorResponse(c, http.StatusUnauthorized, "Not authorized, please login")

			return
		}

		userID, err := auth.VerifyJWT(tokenStr, []byte(h.cfg.Auth.JWTSecret))
		if err != nil {
			newErrorResponse(c, http.StatusUnauthorized, "Not authorized, please login")

			return
		}

		c.Set("UserID", userID)

		c.Next()
	}
}

// RequestLogger tags each request with an id and logs its outcome.
func RequestLogger(lgr *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := googleuuid.NewString()
		c.Set("RequestID", requestID)

		start := time.Now()
		c.Next()

		lgr.Info("request",
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func (h *Handler) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := err.Error()

	var svcErr *service.Error
	if errors.As(err, &svcErr) {
		status = svcErr.Status
		message = svcErr.Message
	} else {
		h.log.Error("request failed", "error", err, "path", c.Request.URL.Path)
	}

	body := gin.H{"message": message}
	if h.cfg.Env != envProd {
		body["stack"] = string(debug.Stack())
	}

	c.AbortWithStatusJSON(status, body)
}

func (h *Handler) setSessionCookie(c *gin.Context, token string) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(h.cfg.Auth.SessionTTL),
		MaxAge:   int(h.cfg.Auth.SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
}

func (h *Handler) clearSessionCookie(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
}

func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	val, ok := c.Get("UserID")
	if !ok {
		return uuid.Nil, false
	}
	userID, ok := val.(uuid.UUID)
	return userID, ok
}

// profileJSON is the public view of a user; the password hash is never
// part of it.
func profileJSON(user models.User) gin.H {
	return gin.H{
		"_id":   user.ID,
		"name":  user.Name,
		"email": user.Email,
		"photo": user.Photo,
		"phone": user.Phone,
		"bio":   user.Bio,
	}
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		newErrorResponse(c, http.StatusBadRequest, "invalid request body")

		return
	}

	user, token, err := h.serviceLayer.Register(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		h.respondError(c, err)

		return
	}

	h.setSessionCookie(c, token)

	body := profileJSON(user)
	body["token"] = token
	c.JSON(http.StatusCreated, body)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		newErrorResponse(c, http.StatusBadRequest, "invalid request body")

		return
	}

	user, token, err := h.serviceLayer.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(c, err)

		return
	}

	h.setSessionCookie(c, token)

	body := profileJSON(user)
	body["token"] = token
	c.JSON(http.StatusOK, body)
}

func (h *Handler) Logout(c *gin.Context) {
	h.clearSessionCookie(c)

	c.JSON(http.StatusOK, gin.H{"message": "Successfully Logged out"})
}

func (h *Handler) GetUser(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		newErrorResponse(c, http.StatusUnauthorized, "Not authorized, please login")

		return
	}

	user, err := h.serviceLayer.GetUser(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)

		return
	}

	c.JSON(http.StatusOK, profileJSON(user))
}

// LoginStatus answers with a bare boolean and never fails.
func (h *Handler) LoginStatus(c *gin.Context) {
	tokenStr, err := c.Cookie(sessionCookieName)
	if err != nil || tokenStr == "" {
		c.JSON(http.StatusOK, false)

		return
	}

	if _, err := auth.VerifyJWT(tokenStr, []byte(h.cfg.Auth.JWTSecret)); err != nil {
		c.JSON(http.StatusOK, false)

		return
	}

	c.JSON(http.StatusOK, true)
}

func (h *Handler) UpdateUser(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		newErrorResponse(c, http.StatusUnauthorized, "Not authorized, please login")

		return
	}

	// Binding into ProfileUpdate drops password and email no matter
	// what the payload carries.
	var upd models.ProfileUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		newErrorResponse(c, http.StatusBadRequest, "invalid request body")

		return
	}

	user, err := h.serviceLayer.UpdateProfile(c.Request.Context(), userID, upd)
	if err != nil {
		h.respondError(c, err)

		return
	}

	c.JSON(http.StatusOK, user)
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	Password    string `json:"password"`
}

func (h *Handler) ChangePassword(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		newErrorResponse(c, http.StatusUnauthorized, "Not authorized, please login")

		return
	}

	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		newErrorResponse(c, http.StatusBadRequest, "invalid request body")

		return
	}

	if err := h.serviceLayer.ChangePassword(c.Request.Context(), userID, req.OldPassword, req.Password); err != nil {
		h.respondError(c, err)

		return
	}

	c.JSON(http.StatusOK, "Password changed successfully")
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

func (h *Handler) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		newErrorResponse(c, http.StatusBadRequest, "invalid request body")

		return
	}

	if err := h.serviceLayer.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		h.respondError(c, err)

		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Reset Email Sent",
	})
}

type resetPasswordRequest struct {
	Password string `json:"password"`
}

func (h *Handler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		newErrorResponse(c, http.StatusBadRequest, "invalid request body")

		return
	}

	resetToken := c.Param("resetToken")

	if err := h.serviceLayer.ResetPassword(c.Request.Context(), resetToken, req.Password); err != nil {
		h.respondError(c, err)

		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Password has been Reseted Successfully, Please Login"})
}
