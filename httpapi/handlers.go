package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/horizonsync/authcore"
)

type loginRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	MFACode   string `json:"mfa_code"`
	MFAMethod string `json:"mfa_method"`
}

// loginResponse doubles as the MFA challenge shape: mfa_required true
// with empty tokens means the client should repeat the call with a
// code attached.
type loginResponse struct {
	MFARequired  bool   `json:"mfa_required"`
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in"`
	SessionID    string `json:"session_id,omitempty"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}

	in := authcore.LoginInput{Email: req.Email, Password: req.Password}
	if req.MFACode != "" {
		factor, err := classifyFactor(req.MFACode, req.MFAMethod)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		in.SecondFactor = &factor
	}

	res, err := a.engine.Login(r.Context(), in)
	if err != nil {
		a.engineError(w, r, err)
		return
	}
	if res.MFARequired {
		writeJSON(w, http.StatusOK, loginResponse{MFARequired: true})
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken:  res.Tokens.AccessToken,
		RefreshToken: res.Tokens.RefreshToken,
		TokenType:    res.Tokens.TokenType,
		ExpiresIn:    res.Tokens.ExpiresIn,
		SessionID:    res.SessionID,
	})
}

// classifyFactor honors an explicit mfa_method and otherwise falls
// back to classification by shape.
func classifyFactor(code, method string) (authcore.SecondFactor, error) {
	switch strings.ToLower(strings.TrimSpace(method)) {
	case "":
		return authcore.ClassifySecondFactor(code), nil
	case "totp":
		return authcore.SecondFactor{Kind: authcore.FactorTOTP, Code: strings.TrimSpace(code)}, nil
	case "backup_code":
		return authcore.SecondFactor{Kind: authcore.FactorBackupCode, Code: code}, nil
	default:
		return authcore.SecondFactor{}, fmt.Errorf("unknown mfa_method %q", method)
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.RefreshToken == "" {
		writeError(w, r, http.StatusBadRequest, "refresh_token is required")
		return
	}

	pair, err := a.engine.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		a.engineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    pair.ExpiresIn,
	})
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
	AllDevices   bool   `json:"all_devices"`
}

// handleLogout ends either the session behind one refresh token or,
// with all_devices, every session except the caller's current one.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return
	}

	var req logoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if req.AllDevices {
		revoked, err := a.engine.LogoutAll(r.Context(), id.AccountID, id.SessionID)
		if err != nil {
			a.engineError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"revoked_sessions": revoked})
		return
	}

	if req.RefreshToken == "" {
		writeError(w, r, http.StatusBadRequest, "refresh_token or all_devices is required")
		return
	}
	if err := a.engine.Logout(r.Context(), id.AccountID, req.RefreshToken); err != nil {
		a.engineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
