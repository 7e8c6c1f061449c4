package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/qiaofuyo/video-slice/internal/export"
	"github.com/qiaofuyo/video-slice/internal/faults"
)

// exportCommandsHandler renders the ledger as command lines. A validation
// failure still carries the placeholder text shown in the commands pane.
func exportCommandsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req export.CommandRequest
		if !decodeBody(w, r, &req) {
			return
		}

		resp, err := cfg.Workspace.GenerateCommands(r.Context(), req)
		if err != nil {
			if errors.Is(err, faults.ErrValidation) && resp.Commands != "" {
				WriteJSON(w, http.StatusUnprocessableEntity, struct {
					ErrorResponse
					export.CommandsResponse
				}{ErrorResponse{Error: faults.Message(err), Code: "VALIDATION"}, resp})
				return
			}
			WriteFault(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func exportEDLHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			export.EDLRequest
			Format string `json:"format"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Format != "" && strings.ToLower(req.Format) != "edl" {
			WriteError(w, http.StatusBadRequest, "format must be edl", "BAD_REQUEST")
			return
		}

		resp, err := cfg.Workspace.ExportEDL(r.Context(), req.EDLRequest)
		if err != nil {
			WriteFault(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}
