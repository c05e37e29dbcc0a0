package response

import (
	"encoding/json"
	"fmt"
	"net/http"
)

const JSONContentType = "application/json"

type ErrorResponse struct {
	Error string `json:"error"`
}

func RenderFatal(w http.ResponseWriter, err error) {
	RenderError(w, err, http.StatusInternalServerError)
}

func RenderError(w http.ResponseWriter, err error, statusCode int) {
	RenderJSON(w, statusCode, ErrorResponse{Error: err.Error()})
}

func RenderJSONResponse(w http.ResponseWriter, data any) {
	RenderJSON(w, http.StatusOK, data)
}

func RenderJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", JSONContentType)

	jsonData, err := json.Marshal(data)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = fmt.Fprintf(w, `{"error": %q}`, "failed to marshal data")
		return
	}

	w.WriteHeader(statusCode)
	_, _ = w.Write(jsonData)
}
