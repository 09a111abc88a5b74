package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MrEthical07/passgate"
	"github.com/MrEthical07/passgate/credential"
	"github.com/MrEthical07/passgate/middleware"
)

// Engine is the part of *passgate.Engine the HTTP boundary calls.
type Engine interface {
	middleware.TokenValidator
	Login(ctx context.Context, email, password string) (*passgate.LoginResult, error)
	FinalizeLogin(ctx context.Context, email, code, splitToken string, purpose credential.Purpose) (*passgate.AccessResult, error)
	CheckVerifyScope(token, email string) error
	ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string) error
	RequestPasswordReset(ctx context.Context, email string) (*passgate.CodeIssue, error)
	ConfirmPasswordReset(ctx context.Context, email, code, splitToken, newPassword string) error
	IssueCode(ctx context.Context, accountID string, purpose credential.Purpose) (*passgate.CodeIssue, error)
	VerifyCode(ctx context.Context, accountID string, purpose credential.Purpose, code, splitToken string) error
}

// Handler serves the authentication endpoints.
type Handler struct {
	engine Engine
	logger *zap.Logger
	now    func() time.Time
}

func NewHandler(engine Engine, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{engine: engine, logger: logger, now: time.Now}
}

// Register mounts every route under r.
func (h *Handler) Register(r gin.IRouter) {
	auth := r.Group("/auth")
	auth.POST("/login", h.Login)
	auth.POST("/check-code", middleware.RequireVerifyScope(h.engine), h.CheckCode)
	auth.POST("/password/reset", h.RequestReset)
	auth.POST("/password/reset/confirm", h.ConfirmReset)

	protected := auth.Group("", middleware.RequireAccess(h.engine))
	protected.GET("/me", h.Me)
	protected.GET("/validate", h.Validate)
	protected.POST("/password/change", h.ChangePassword)
	protected.POST("/codes", h.IssueCode)
	protected.POST("/codes/verify", h.VerifyCode)
}

// splitTokenField is the body key carrying the split token for purpose.
func splitTokenField(purpose credential.Purpose) string {
	return "twofa_" + string(purpose) + "_token"
}

// bindBody decodes the JSON body into dst and also returns it as a generic
// map, for keys whose name depends on another field.
func bindBody(c *gin.Context, dst any) (map[string]any, bool) {
	raw, err := c.GetRawData()
	if err != nil {
		badRequest(c, "Unreadable request body.")
		return nil, false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		badRequest(c, "Malformed JSON body.")
		return nil, false
	}
	fields := map[string]any{}
	_ = json.Unmarshal(raw, &fields)
	return fields, true
}

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return strings.TrimSpace(s)
}

func purposeOr(raw string, fallback credential.Purpose) credential.Purpose {
	if raw = strings.TrimSpace(raw); raw == "" {
		return fallback
	}
	return credential.Purpose(raw)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Message     string    `json:"message"`
	VerifyToken string    `json:"verify_token"`
	SplitToken  string    `json:"twofa_login_token,omitempty"`
	DebugCode   string    `json:"code,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if _, ok := bindBody(c, &req); !ok {
		return
	}
	res, err := h.engine.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, loginResponse{
		Message:     "Verification code sent.",
		VerifyToken: res.VerifyToken,
		SplitToken:  res.SplitToken,
		DebugCode:   res.DebugCode,
		ExpiresAt:   res.ExpiresAt,
	})
}

type checkCodeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
	Type  string `json:"type"`
}

type accessResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Role        string `json:"role"`
}

// CheckCode finalizes a login. The verify-scope token's email must equal the
// submitted email.
func (h *Handler) CheckCode(c *gin.Context) {
	var req checkCodeRequest
	fields, ok := bindBody(c, &req)
	if !ok {
		return
	}
	if err := h.engine.CheckVerifyScope(middleware.VerifyToken(c), req.Email); err != nil {
		h.fail(c, err)
		return
	}
	purpose := purposeOr(req.Type, credential.PurposeLogin)
	res, err := h.engine.FinalizeLogin(c.Request.Context(), req.Email, req.Code, stringField(fields, splitTokenField(purpose)), purpose)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, accessResponse{
		AccessToken: res.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(res.ExpiresIn / time.Second),
		Role:        res.Role,
	})
}

type identityResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"system_role"`
}

func identityBody(id *passgate.Identity) identityResponse {
	return identityResponse{ID: id.AccountID, Email: id.Email, Name: id.Name, Role: id.Role}
}

func (h *Handler) Me(c *gin.Context) {
	id, _ := middleware.IdentityFrom(c)
	c.JSON(http.StatusOK, identityBody(id))
}

func (h *Handler) Validate(c *gin.Context) {
	id, _ := middleware.IdentityFrom(c)
	c.JSON(http.StatusOK, gin.H{"valid": true, "user": identityBody(id)})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *Handler) ChangePassword(c *gin.Context) {
	id, _ := middleware.IdentityFrom(c)
	var req changePasswordRequest
	if _, ok := bindBody(c, &req); !ok {
		return
	}
	if err := h.engine.ChangePassword(c.Request.Context(), id.AccountID, req.CurrentPassword, req.NewPassword); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type resetRequest struct {
	Email string `json:"email"`
}

type codeResponse struct {
	SplitToken string    `json:"split_token,omitempty"`
	DebugCode  string    `json:"code,omitempty"`
	ExpiresAt  time.Time `json:"expires_at"`
}

func (h *Handler) RequestReset(c *gin.Context) {
	var req resetRequest
	if _, ok := bindBody(c, &req); !ok {
		return
	}
	issued, err := h.engine.RequestPasswordReset(c.Request.Context(), req.Email)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, codeResponse{SplitToken: issued.SplitToken, DebugCode: issued.Code, ExpiresAt: issued.ExpiresAt})
}

type confirmResetRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

func (h *Handler) ConfirmReset(c *gin.Context) {
	var req confirmResetRequest
	fields, ok := bindBody(c, &req)
	if !ok {
		return
	}
	split := stringField(fields, splitTokenField(credential.PurposePasswordReset))
	if err := h.engine.ConfirmPasswordReset(c.Request.Context(), req.Email, req.Code, split, req.NewPassword); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type issueCodeRequest struct {
	Purpose string `json:"purpose"`
}

func (h *Handler) IssueCode(c *gin.Context) {
	id, _ := middleware.IdentityFrom(c)
	var req issueCodeRequest
	if _, ok := bindBody(c, &req); !ok {
		return
	}
	issued, err := h.engine.IssueCode(c.Request.Context(), id.AccountID, purposeOr(req.Purpose, credential.PurposeCriticalAction))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, codeResponse{SplitToken: issued.SplitToken, DebugCode: issued.Code, ExpiresAt: issued.ExpiresAt})
}

type verifyCodeRequest struct {
	Purpose string `json:"purpose"`
	Code    string `json:"code"`
}

func (h *Handler) VerifyCode(c *gin.Context) {
	id, _ := middleware.IdentityFrom(c)
	var req verifyCodeRequest
	fields, ok := bindBody(c, &req)
	if !ok {
		return
	}
	purpose := purposeOr(req.Purpose, credential.PurposeCriticalAction)
	if err := h.engine.VerifyCode(c.Request.Context(), id.AccountID, purpose, req.Code, stringField(fields, splitTokenField(purpose))); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"verified": true})
}
