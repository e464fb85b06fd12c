package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/hiresify/internal/common"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// errInvalidCredentials replaces both the unknown-user and the wrong-password
// outcome of a login so the response does not reveal which usernames exist.
var errInvalidCredentials = &common.AuthError{
	Kind: common.KindUnauthorized,
	Code: "invalid_credentials",
	Msg:  "invalid username or password",
}

func statusFor(kind common.ErrorKind) int {
	switch kind {
	case common.KindValidation:
		return http.StatusBadRequest
	case common.KindNotFound:
		return http.StatusNotFound
	case common.KindConflict:
		return http.StatusConflict
	case common.KindUnauthorized:
		return http.StatusUnauthorized
	case common.KindUpstream:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError reports err to the client. Only the generic message of a flow
// error leaves the process; details of store and internal failures are
// logged instead.
func (s *HTTPServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := common.KindOf(err)
	status := statusFor(kind)

	resp := errorResponse{Error: common.ErrorInternal.Error()}
	var ae *common.AuthError
	if errors.As(err, &ae) {
		resp = errorResponse{Error: ae.Msg, Code: ae.Code}
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		s.logger.Debug(r.Context(), "request rejected", "method", r.Method, "path", r.URL.Path, "kind", kind.String())
	}

	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="hiresify"`)
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
