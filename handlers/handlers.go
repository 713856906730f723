package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/huntersguild/guild-backend/identity"
	"github.com/huntersguild/guild-backend/utils"
)

// decodeJSON decodes a JSON request body into dst
func decodeJSON(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// writeActionError maps a session action error to an HTTP response.
// Validation failures carry field details; backend rejections keep the
// backend's status; anything else is an internal error.
func writeActionError(w http.ResponseWriter, err error) {
	var validationErr *utils.ValidationError
	if errors.As(err, &validationErr) {
		_ = utils.WriteBadRequest(w, validationErr.Message, validationErr.Fields)
		return
	}

	var apiErr *identity.APIError
	if errors.As(err, &apiErr) {
		status := apiErr.Status
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		_ = utils.WriteJSON(w, status, utils.ErrorResponse{
			Error:   "identity_backend",
			Message: apiErr.Message,
		})
		return
	}

	_ = utils.WriteInternalServerError(w, "")
}
