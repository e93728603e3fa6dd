package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"parking-finder-backend/internal/apperr"
	"parking-finder-backend/internal/auth"
	"parking-finder-backend/internal/store"
)

type credentialsRequest struct {
	Phone    string `json:"phone" binding:"required,max=64"`
	Passcode string `json:"passcode" binding:"required,max=128"`
}

type authResponse struct {
	Success bool `json:"success"`
	Credits int  `json:"credits"`
}

// Signup handles POST /signup.
func (h *Handler) Signup(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindErr(c, err)
		return
	}

	hash, err := h.hasher.Hash(req.Passcode)
	if errors.Is(err, auth.ErrInvalidPassword) || errors.Is(err, auth.ErrEmptyPassword) {
		respondErr(c, apperr.BadRequest(err))
		return
	}
	if err != nil {
		respondErr(c, err)
		return
	}

	user, err := h.store.CreateUser(c.Request.Context(), req.Phone, hash)
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusCreated, authResponse{Success: true, Credits: user.Credits})
}

// Login handles POST /login. Unknown users and wrong passcodes are
// indistinguishable to the client.
func (h *Handler) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindErr(c, err)
		return
	}

	user, err := h.store.FindUser(c.Request.Context(), req.Phone)
	if errors.Is(err, store.ErrUserNotFound) {
		respondErr(c, apperr.Unauthorized(auth.ErrPasswordInvalid))
		return
	}
	if err != nil {
		respondErr(c, err)
		return
	}

	if err := h.hasher.Verify(req.Passcode, user.PasswordHash); err != nil {
		if errors.Is(err, auth.ErrMalformedHash) {
			slog.Error("stored password hash is malformed", "user_id", user.ID)
		}
		respondErr(c, apperr.Unauthorized(auth.ErrPasswordInvalid))
		return
	}

	c.JSON(http.StatusOK, authResponse{Success: true, Credits: user.Credits})
}
