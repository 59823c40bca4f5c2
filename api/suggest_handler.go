package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/raushankrgupta/mystery-message/utils"
)

// SuggestMessagesHandler asks Gemini for three message starters for the
// public profile page. The upstream call is bounded to 30 seconds.
func SuggestMessagesHandler(w http.ResponseWriter, r *http.Request) {
	var logMessageBuilder strings.Builder
	defer func() {
		fmt.Println(logMessageBuilder.String())
	}()
	utils.AddToLogMessage(&logMessageBuilder, "[Suggest Messages API]")

	if r.Method != http.MethodPost {
		utils.RespondError(w, &logMessageBuilder, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	suggestions, err := utils.SuggestMessages(ctx)
	if err != nil {
		utils.AddToLogMessage(&logMessageBuilder, fmt.Sprintf("Suggestion generation failed: %v", err))
		utils.RespondError(w, &logMessageBuilder, "An unexpected error occurred", http.StatusInternalServerError)
		return
	}

	utils.AddToLogMessage(&logMessageBuilder, "Suggestions generated")
	utils.RespondJSON(w, http.StatusOK, utils.ApiResponse{
		Success: true,
		Message: suggestions,
	})
}
