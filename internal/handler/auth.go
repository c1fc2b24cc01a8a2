package handler

import (
	"crypto/subtle"
	"net/http"

	"go.uber.org/zap"

	"github.com/smart-daily/dailychat/internal/config"
	"github.com/smart-daily/dailychat/internal/middleware"
	"github.com/smart-daily/dailychat/internal/model"
	"github.com/smart-daily/dailychat/pkg/logger"
)

// AuthHandler handles login.
type AuthHandler struct {
	accounts []config.Account
	tokens   *middleware.Tokens
	logger   *logger.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(accounts []config.Account, tokens *middleware.Tokens, log *logger.Logger) *AuthHandler {
	return &AuthHandler{
		accounts: accounts,
		tokens:   tokens,
		logger:   logger.OrNop(log),
	}
}

// Login handles POST /api/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	acct, ok := h.find(req.Username, req.Password)
	if !ok {
		h.logger.Info("login rejected", zap.String("username", req.Username))
		writeError(w, http.StatusUnauthorized, "用户名或密码错误")
		return
	}

	token, err := h.tokens.Issue(acct.ID, acct.Name)
	if err != nil {
		h.logger.Error("failed to issue token", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "登录失败")
		return
	}

	writeJSON(w, http.StatusOK, model.LoginResponse{
		Token: token,
		User: model.User{
			ID:   acct.ID,
			Name: acct.Name,
			Role: acct.Role,
		},
	})
}

func (h *AuthHandler) find(username, password string) (config.Account, bool) {
	for _, a := range h.accounts {
		if a.Username == username && subtle.ConstantTimeCompare([]byte(a.Password), []byte(password)) == 1 {
			return a, true
		}
	}
	return config.Account{}, false
}
