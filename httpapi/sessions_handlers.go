package httpapi

import (
	"net/http"
	"time"
)

type sessionJSON struct {
	ID          string    `json:"id"`
	DeviceLabel string    `json:"device_label"`
	DeviceType  string    `json:"device_type"`
	Browser     string    `json:"browser,omitempty"`
	IPAddress   string    `json:"ip_address"`
	LastUsed    time.Time `json:"last_used"`
	Created     time.Time `json:"created"`
	IsCurrent   bool      `json:"is_current"`
}

func (a *API) handleListSessions(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return
	}

	sessions, err := a.engine.ListSessions(r.Context(), id.AccountID, id.SessionID)
	if err != nil {
		a.engineError(w, r, err)
		return
	}

	out := make([]sessionJSON, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionJSON{
			ID:          s.ID,
			DeviceLabel: s.DeviceName,
			DeviceType:  s.DeviceType,
			Browser:     s.Browser,
			IPAddress:   s.IP,
			LastUsed:    s.LastUsedAt,
			Created:     s.CreatedAt,
			IsCurrent:   s.Current,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

func (a *API) handleRevokeSession(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return
	}

	if err := a.engine.RevokeSession(r.Context(), id.AccountID, r.PathValue("id")); err != nil {
		a.engineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
