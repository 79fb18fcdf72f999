package handler

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/insuratrack/insuratrack/internal/config"
	"github.com/insuratrack/insuratrack/internal/model"
	"github.com/insuratrack/insuratrack/internal/repository"
	"github.com/insuratrack/insuratrack/internal/utils"
)

// ResetMailer delivers password-reset links. The concrete implementation
// lives in internal/service; a nil mailer logs the link instead, which
// keeps local development working without SMTP.
type ResetMailer interface {
	SendReset(to, name, resetURL string) error
}

// AuthHandler bundles dependencies for the auth endpoints.
type AuthHandler struct {
	Cfg       config.Config
	DB        *sql.DB
	Users     *repository.UserRepo
	Agents    *repository.AgentRepo
	Customers *repository.CustomerRepo
	Mailer    ResetMailer
	Log       zerolog.Logger
}

func NewAuthHandler(cfg config.Config, db *sql.DB, u *repository.UserRepo,
	a *repository.AgentRepo, cu *repository.CustomerRepo, m ResetMailer, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{Cfg: cfg, DB: db, Users: u, Agents: a, Customers: cu, Mailer: m, Log: log}
}

type registerReq struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Phone    string `json:"phone"`
}

type loginReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResp struct {
	User  userView `json:"user"`
	Token string   `json:"token"`
}

// Register creates a user and its role profile row in one transaction and
// returns a fresh access token.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	req.Username = strings.ToLower(strings.TrimSpace(req.Username))
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	req.Role = strings.ToLower(strings.TrimSpace(req.Role))

	if req.Username == "" || req.Email == "" || req.Password == "" || req.Name == "" {
		return fail(c, http.StatusBadRequest, "username, name, email and password are required")
	}
	if len(req.Password) < 6 {
		return fail(c, http.StatusBadRequest, "password must be at least 6 characters")
	}
	if req.Role != model.RoleAgent && req.Role != model.RoleCustomer {
		return fail(c, http.StatusBadRequest, "role must be agent or customer")
	}

	ctx, cancel := dbCtx(c)
	defer cancel()

	tx, err := h.DB.BeginTx(ctx, nil)
	if err != nil {
		return serverError(c)
	}
	defer tx.Rollback()

	uid, err := h.Users.CreateTx(ctx, tx, req.Username, req.Name, req.Email, req.Password, req.Role, req.Phone, h.Cfg.BcryptCost)
	switch {
	case errors.Is(err, repository.ErrUsernameExists):
		return fail(c, http.StatusConflict, "username already exists")
	case errors.Is(err, repository.ErrEmailExists):
		return fail(c, http.StatusConflict, "email already exists")
	case err != nil:
		return serverError(c)
	}

	if req.Role == model.RoleAgent {
		_, err = h.Agents.CreateTx(ctx, tx, uid)
	} else {
		_, err = h.Customers.CreateTx(ctx, tx, uid)
	}
	if err != nil {
		return serverError(c)
	}
	if err := tx.Commit(); err != nil {
		return serverError(c)
	}

	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, uid, req.Role, h.Cfg.TokenTTLDays)
	if err != nil {
		return serverError(c)
	}

	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return serverError(c)
	}
	return respond(c, http.StatusCreated, "registered", authResp{User: viewUser(u), Token: access.Token})
}

// Login verifies username and password and issues an access token.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	req.Username = strings.ToLower(strings.TrimSpace(req.Username))
	if req.Username == "" || req.Password == "" {
		return fail(c, http.StatusBadRequest, "username and password are required")
	}

	ctx, cancel := dbCtx(c)
	defer cancel()

	u, err := h.Users.GetByUsername(ctx, req.Username)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !utils.VerifyPassword(u.PasswordHash, req.Password)) {
		return fail(c, http.StatusUnauthorized, "invalid credentials")
	}
	if err != nil {
		return serverError(c)
	}

	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Role, h.Cfg.TokenTTLDays)
	if err != nil {
		return serverError(c)
	}
	return respond(c, http.StatusOK, "logged in", authResp{User: viewUser(u), Token: access.Token})
}

// Me returns the authenticated user's account.
func (h *AuthHandler) Me(c echo.Context) error {
	ctx, cancel := dbCtx(c)
	defer cancel()

	u, err := h.Users.GetByID(ctx, authUserID(c))
	if errors.Is(err, sql.ErrNoRows) {
		return fail(c, http.StatusNotFound, "user not found")
	}
	if err != nil {
		return serverError(c)
	}
	return respond(c, http.StatusOK, "", viewUser(u))
}

type updatePasswordReq struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// UpdatePassword changes the caller's password after verifying the
// current one.
func (h *AuthHandler) UpdatePassword(c echo.Context) error {
	var req updatePasswordReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		return fail(c, http.StatusBadRequest, "currentPassword and newPassword are required")
	}
	if len(req.NewPassword) < 6 {
		return fail(c, http.StatusBadRequest, "password must be at least 6 characters")
	}

	ctx, cancel := dbCtx(c)
	defer cancel()

	u, err := h.Users.GetByID(ctx, authUserID(c))
	if err != nil {
		return serverError(c)
	}
	if !utils.VerifyPassword(u.PasswordHash, req.CurrentPassword) {
		return fail(c, http.StatusUnauthorized, "current password is incorrect")
	}
	if err := h.Users.UpdatePassword(ctx, u.ID, req.NewPassword, h.Cfg.BcryptCost); err != nil {
		return serverError(c)
	}
	return respond(c, http.StatusOK, "password updated", nil)
}

type updateProfileReq struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
	Phone *string `json:"phone"`
}

// UpdateProfile merges the provided fields into the caller's account.
// Absent fields are left untouched.
func (h *AuthHandler) UpdateProfile(c echo.Context) error {
	var req updateProfileReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	if req.Name == nil && req.Email == nil && req.Phone == nil {
		return fail(c, http.StatusBadRequest, "nothing to update")
	}
	if req.Email != nil {
		e := strings.ToLower(strings.TrimSpace(*req.Email))
		if e == "" {
			return fail(c, http.StatusBadRequest, "email cannot be empty")
		}
		req.Email = &e
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return fail(c, http.StatusBadRequest, "name cannot be empty")
	}

	ctx, cancel := dbCtx(c)
	defer cancel()

	u, err := h.Users.UpdateProfile(ctx, authUserID(c), req.Name, req.Email, req.Phone)
	switch {
	case errors.Is(err, repository.ErrEmailExists):
		return fail(c, http.StatusConflict, "email already in use")
	case errors.Is(err, sql.ErrNoRows):
		return fail(c, http.StatusNotFound, "user not found")
	case err != nil:
		return serverError(c)
	}
	return respond(c, http.StatusOK, "profile updated", viewUser(u))
}

// CheckUsername reports whether a username is already taken, for live
// signup-form feedback.
func (h *AuthHandler) CheckUsername(c echo.Context) error {
	username := strings.ToLower(strings.TrimSpace(c.Param("username")))
	if username == "" {
		return fail(c, http.StatusBadRequest, "username is required")
	}

	ctx, cancel := dbCtx(c)
	defer cancel()

	exists, err := h.Users.UsernameExists(ctx, username)
	if err != nil {
		return serverError(c)
	}
	return respond(c, http.StatusOK, "", echo.Map{"exists": exists})
}

type forgotPasswordReq struct {
	Email string `json:"email"`
}

// ForgotPassword issues a reset token and mails the reset link. The
// response is the same whether or not the email belongs to an account.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req forgotPasswordReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" {
		return fail(c, http.StatusBadRequest, "email is required")
	}

	ctx, cancel := dbCtx(c)
	defer cancel()

	const sent = "if that email exists, a reset link has been sent"

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return respond(c, http.StatusOK, sent, nil)
	}
	if err != nil {
		return serverError(c)
	}

	tok, err := utils.NewResetToken()
	if err != nil {
		return serverError(c)
	}
	if err := h.Users.SetResetToken(ctx, u.ID, utils.HashResetRaw(tok.Raw), tok.Exp); err != nil {
		return serverError(c)
	}

	resetURL := strings.TrimRight(h.Cfg.ClientURL, "/") + "/reset-password/" + tok.Raw
	if h.Mailer == nil {
		h.Log.Info().Str("email", u.Email).Str("url", resetURL).Msg("mailer disabled, reset link not sent")
	} else if err := h.Mailer.SendReset(u.Email, u.Name, resetURL); err != nil {
		h.Log.Error().Err(err).Str("email", u.Email).Msg("reset mail failed")
		// The link never reached the user, so don't leave a live token
		// behind. Best effort: the token expires on its own anyway.
		if cerr := h.Users.ClearResetToken(ctx, u.ID); cerr != nil {
			h.Log.Error().Err(cerr).Uint64("user_id", u.ID).Msg("reset token cleanup failed")
		}
		return fail(c, http.StatusInternalServerError, "could not send reset email")
	}
	return respond(c, http.StatusOK, sent, nil)
}

type resetPasswordReq struct {
	Password string `json:"password"`
}

// ResetPassword consumes a reset token from the URL and sets the new
// password. Expired or unknown tokens are rejected.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	raw := c.Param("token")
	if raw == "" {
		return fail(c, http.StatusBadRequest, "token is required")
	}
	var req resetPasswordReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	if len(req.Password) < 6 {
		return fail(c, http.StatusBadRequest, "password must be at least 6 characters")
	}

	ctx, cancel := dbCtx(c)
	defer cancel()

	u, err := h.Users.GetByResetToken(ctx, utils.HashResetRaw(raw))
	if errors.Is(err, sql.ErrNoRows) {
		return fail(c, http.StatusBadRequest, "invalid or expired token")
	}
	if err != nil {
		return serverError(c)
	}
	if err := h.Users.ResetPassword(ctx, u.ID, req.Password, h.Cfg.BcryptCost); err != nil {
		return serverError(c)
	}
	return respond(c, http.StatusOK, "password has been reset", nil)
}
