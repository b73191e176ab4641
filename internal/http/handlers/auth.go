package handlers

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/teammeng/foscion/internal/domain/user"
)

type UserService interface {
	CreateUser(ctx context.Context, input user.CreateUser) (user.User, error)
	Signin(ctx context.Context, input user.SigninUser) (user.User, error)
}

type AuthHandler struct {
	users        UserService
	hideInternal bool
}

func NewAuthHandler(users UserService, hideInternal bool) *AuthHandler {
	return &AuthHandler{
		users:        users,
		hideInternal: hideInternal,
	}
}

func (h *AuthHandler) SignUp(ctx *gin.Context) {
	var req user.CreateUser

	if !BindJSON(ctx, &req) {
		return
	}

	u, err := h.users.CreateUser(ctx.Request.Context(), req)

	if err != nil {
		RespondAppError(ctx, err, h.hideInternal)
		return
	}

	RespondOK(ctx, fmt.Sprintf("user by %s created", u.Email))
}

func (h *AuthHandler) SignIn(ctx *gin.Context) {
	var req user.SigninUser

	if !BindJSON(ctx, &req) {
		return
	}

	u, err := h.users.Signin(ctx.Request.Context(), req)

	if err != nil {
		RespondAppError(ctx, err, h.hideInternal)
		return
	}

	RespondOK(ctx, fmt.Sprintf("user by %s signed in", u.Email))
}
