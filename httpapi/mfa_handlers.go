package httpapi

import (
	"net/http"
)

type mfaEnableRequest struct {
	Password string `json:"password"`
}

type mfaEnrollmentResponse struct {
	Secret          string   `json:"secret"`
	ProvisioningURI string   `json:"provisioning_uri"`
	QRCode          string   `json:"qr_code"`
	BackupCodes     []string `json:"backup_codes"`
}

// handleMFAEnable starts enrollment. The response is the only place
// the secret and backup codes ever appear in clear.
func (a *API) handleMFAEnable(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return
	}

	var req mfaEnableRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "password is required")
		return
	}

	enrollment, err := a.engine.BeginMFAEnrollment(r.Context(), id.AccountID, req.Password)
	if err != nil {
		a.engineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mfaEnrollmentResponse{
		Secret:          enrollment.Secret,
		ProvisioningURI: enrollment.ProvisioningURI,
		QRCode:          enrollment.QRCode,
		BackupCodes:     enrollment.BackupCodes,
	})
}

type mfaVerifyRequest struct {
	Code string `json:"code"`
}

func (a *API) handleMFAVerify(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return
	}

	var req mfaVerifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Code == "" {
		writeError(w, r, http.StatusBadRequest, "code is required")
		return
	}

	if err := a.engine.ConfirmMFAEnrollment(r.Context(), id.AccountID, req.Code); err != nil {
		a.engineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type mfaDisableRequest struct {
	Password  string `json:"password"`
	Code      string `json:"code"`
	MFAMethod string `json:"mfa_method"`
}

func (a *API) handleMFADisable(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return
	}

	var req mfaDisableRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Password == "" || req.Code == "" {
		writeError(w, r, http.StatusBadRequest, "password and code are required")
		return
	}
	factor, err := classifyFactor(req.Code, req.MFAMethod)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.engine.DisableMFA(r.Context(), id.AccountID, req.Password, factor); err != nil {
		a.engineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type regenerateRequest struct {
	Code string `json:"code"`
}

// handleRegenerateBackupCodes replaces the full backup code set. Only
// an authenticator code is accepted here; a backup code cannot mint
// its own successors.
func (a *API) handleRegenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return
	}

	var req regenerateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Code == "" {
		writeError(w, r, http.StatusBadRequest, "code is required")
		return
	}

	codes, err := a.engine.RegenerateBackupCodes(r.Context(), id.AccountID, req.Code)
	if err != nil {
		a.engineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"backup_codes": codes})
}

func (a *API) handleBackupCodeStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return
	}

	remaining, err := a.engine.BackupCodeStatus(r.Context(), id.AccountID)
	if err != nil {
		a.engineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"remaining": remaining})
}
