package response

// ActionResponse reports the outcome of a state-changing request. Errors
// lists the failures of a partially successful batch.
type ActionResponse struct {
	Success bool     `json:"success"`
	Message string   `json:"message,omitempty"`
	Data    any      `json:"data,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

func NewActionResponse(message string, data any) ActionResponse {
	return ActionResponse{Success: true, Message: message, Data: data}
}

// NewPartialResponse reports a batch in which some items failed. It is
// successful only when errs is empty.
func NewPartialResponse(message string, data any, errs ...error) ActionResponse {
	resp := NewActionResponse(message, data)
	for _, err := range errs {
		if err != nil {
			resp.Errors = append(resp.Errors, err.Error())
		}
	}
	resp.Success = len(resp.Errors) == 0
	return resp
}
