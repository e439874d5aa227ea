package http

import "net/http"

// SuccessResponse is the envelope for every successful API call.
type SuccessResponse struct {
	Message  string      `json:"message"`
	Metadata interface{} `json:"metadata,omitempty"`
}

// WriteSuccess writes {message, metadata?} with the given status code.
func WriteSuccess(w http.ResponseWriter, statusCode int, message string, metadata interface{}) {
	WriteJSON(w, statusCode, SuccessResponse{
		Message:  message,
		Metadata: metadata,
	})
}

func WriteOK(w http.ResponseWriter, message string, metadata interface{}) {
	WriteSuccess(w, http.StatusOK, message, metadata)
}

func WriteCreated(w http.ResponseWriter, message string, metadata interface{}) {
	WriteSuccess(w, http.StatusCreated, message, metadata)
}
