package utils

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/raushankrgupta/mystery-message/models"
)

// ApiResponse is the envelope every endpoint answers with. Optional fields are
// populated only by the endpoints that carry them.
type ApiResponse struct {
	Success             bool             `json:"success"`
	Message             string           `json:"message"`
	IsAcceptingMessages *bool            `json:"isAcceptingMessages,omitempty"`
	Messages            []models.Message `json:"messages,omitempty"`
	UpdatedUser         *models.User     `json:"updatedUser,omitempty"`
	Token               string           `json:"token,omitempty"`
	User                *models.User     `json:"user,omitempty"`
}

// RespondJSON sends a JSON response with the given status code and payload.
func RespondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// Fallback error logging if encoding fails, though we can't write to w anymore if headers sent
		fmt.Printf("Error encoding JSON response: %v\n", err)
	}
}

// RespondError sends a failure envelope and logs the message to the provided
// request-log builder. If logger is nil, it prints to stdout.
func RespondError(w http.ResponseWriter, logger *strings.Builder, message string, status int) {
	if logger != nil {
		AddToLogMessage(logger, message)
	} else {
		fmt.Println("[Error]", message)
	}
	RespondJSON(w, status, ApiResponse{Success: false, Message: message})
}
