package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/raushankrgupta/mystery-message/models"
	"github.com/raushankrgupta/mystery-message/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SendMessageRequest represents the payload for the public intake endpoint
type SendMessageRequest struct {
	Username string `json:"username"`
	Content  string `json:"content"`
}

// AcceptMessagesRequest represents the payload for toggling the acceptance flag
type AcceptMessagesRequest struct {
	AcceptMessages bool `json:"acceptMessages"`
}

// SendMessageHandler accepts an anonymous message for the target user.
// Content length is not checked here; the public form enforces its own limits.
func SendMessageHandler(w http.ResponseWriter, r *http.Request) {
	var logMessageBuilder strings.Builder
	defer func() {
		fmt.Println(logMessageBuilder.String())
	}()
	utils.AddToLogMessage(&logMessageBuilder, "[Send Message API]")

	if r.Method != http.MethodPost {
		utils.RespondError(w, &logMessageBuilder, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, &logMessageBuilder, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Username == "" {
		utils.RespondError(w, &logMessageBuilder, "Username is required", http.StatusBadRequest)
		return
	}

	collection := utils.UserCollection()
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	newMessage := models.Message{
		ID:        primitive.NewObjectID(),
		Content:   req.Content,
		CreatedAt: time.Now(),
	}

	// The acceptance check and the append are one conditional update, so a
	// concurrent toggle cannot let a message slip through after the flag
	// was turned off.
	res, err := collection.UpdateOne(ctx,
		bson.M{"username": req.Username, "isAcceptingMessage": true},
		bson.M{"$push": bson.M{"messages": newMessage}},
	)
	if err != nil {
		utils.AddToLogMessage(&logMessageBuilder, fmt.Sprintf("Database error: %v", err))
		utils.RespondError(w, &logMessageBuilder, "Error sending message", http.StatusInternalServerError)
		return
	}

	if res.ModifiedCount == 0 {
		// Nothing matched: either the user does not exist, or they exist
		// but turned acceptance off. Distinguish for the caller.
		count, err := collection.CountDocuments(ctx, bson.M{"username": req.Username})
		if err != nil {
			utils.AddToLogMessage(&logMessageBuilder, fmt.Sprintf("Database error: %v", err))
			utils.RespondError(w, &logMessageBuilder, "Error sending message", http.StatusInternalServerError)
			return
		}
		if count == 0 {
			utils.RespondError(w, &logMessageBuilder, "User not found", http.StatusNotFound)
		} else {
			utils.RespondError(w, &logMessageBuilder, "User is not accepting messages", http.StatusForbidden)
		}
		return
	}

	utils.AddToLogMessage(&logMessageBuilder, fmt.Sprintf("Message delivered to %s", req.Username))
	utils.RespondJSON(w, http.StatusCreated, utils.ApiResponse{
		Success: true,
		Message: "Message sent successfully",
	})
}

// GetMessagesHandler returns the caller's messages, newest first
func GetMessagesHandler(w http.ResponseWriter, r *http.Request) {
	var logMessageBuilder strings.Builder
	defer func() {
		fmt.Println(logMessageBuilder.String())
	}()
	utils.AddToLogMessage(&logMessageBuilder, "[Get Messages API]")

	if r.Method != http.MethodGet {
		utils.RespondError(w, &logMessageBuilder, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	claims, err := SessionFromContext(r.Context())
	if err != nil {
		utils.RespondError(w, &logMessageBuilder, "Not Authenticated. You must be logged in to access this resource.", http.StatusUnauthorized)
		return
	}
	userID, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		utils.RespondError(w, &logMessageBuilder, "Invalid user ID", http.StatusUnauthorized)
		return
	}

	collection := utils.UserCollection()
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"_id": userID}}},
		{{Key: "$unwind", Value: bson.M{"path": "$messages", "preserveNullAndEmptyArrays": true}}},
		{{Key: "$sort", Value: bson.M{"messages.createdAt": -1}}},
		{{Key: "$group", Value: bson.M{"_id": "$_id", "messages": bson.M{"$push": "$messages"}}}},
	}

	cursor, err := collection.Aggregate(ctx, pipeline)
	if err != nil {
		utils.AddToLogMessage(&logMessageBuilder, fmt.Sprintf("Aggregation error: %v", err))
		utils.RespondError(w, &logMessageBuilder, "Unexpected server error", http.StatusInternalServerError)
		return
	}
	defer cursor.Close(ctx)

	var results []struct {
		ID       primitive.ObjectID `bson:"_id"`
		Messages []models.Message   `bson:"messages"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		utils.AddToLogMessage(&logMessageBuilder, fmt.Sprintf("Cursor error: %v", err))
		utils.RespondError(w, &logMessageBuilder, "Unexpected server error", http.StatusInternalServerError)
		return
	}

	// With preserveNullAndEmptyArrays an empty inbox comes back as a single
	// zero-valued entry; strip it before deciding whether anything exists.
	var messages []models.Message
	if len(results) > 0 {
		for _, m := range results[0].Messages {
			if !m.ID.IsZero() {
				messages = append(messages, m)
			}
		}
	}

	// Kept from the original surface: an empty inbox is reported as 404,
	// not as an empty list.
	if len(messages) == 0 {
		utils.RespondError(w, &logMessageBuilder, "No messages found for the user.", http.StatusNotFound)
		return
	}

	utils.AddToLogMessage(&logMessageBuilder, fmt.Sprintf("Returning %d messages", len(messages)))
	utils.RespondJSON(w, http.StatusOK, utils.ApiResponse{
		Success:  true,
		Message:  "Messages retrieved successfully",
		Messages: messages,
	})
}

// DeleteMessageHandler removes one message from the caller's own inbox
func DeleteMessageHandler(w http.ResponseWriter, r *http.Request) {
	var logMessageBuilder strings.Builder
	defer func() {
		fmt.Println(logMessageBuilder.String())
	}()
	utils.AddToLogMessage(&logMessageBuilder, "[Delete Message API]")

	if r.Method != http.MethodDelete {
		utils.RespondError(w, &logMessageBuilder, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	claims, err := SessionFromContext(r.Context())
	if err != nil {
		utils.RespondError(w, &logMessageBuilder, "Not Authenticated. You must be logged in to access this resource.", http.StatusUnauthorized)
		return
	}
	userID, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		utils.RespondError(w, &logMessageBuilder, "Invalid user ID", http.StatusUnauthorized)
		return
	}

	messageID, err := primitive.ObjectIDFromHex(r.PathValue("id"))
	if err != nil {
		utils.RespondError(w, &logMessageBuilder, "Invalid message ID", http.StatusBadRequest)
		return
	}

	collection := utils.UserCollection()
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	// Scoping the pull to the caller's _id means a user can only ever
	// delete their own messages.
	res, err := collection.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$pull": bson.M{"messages": bson.M{"_id": messageID}}},
	)
	if err != nil {
		utils.AddToLogMessage(&logMessageBuilder, fmt.Sprintf("Database error: %v", err))
		utils.RespondError(w, &logMessageBuilder, "Unexpected server error.", http.StatusInternalServerError)
		return
	}

	if res.ModifiedCount == 0 {
		utils.RespondError(w, &logMessageBuilder, "Message not found or already deleted.", http.StatusNotFound)
		return
	}

	utils.AddToLogMessage(&logMessageBuilder, fmt.Sprintf("Deleted message %s", messageID.Hex()))
	utils.RespondJSON(w, http.StatusOK, utils.ApiResponse{
		Success: true,
		Message: "Message deleted successfully.",
	})
}

// AcceptMessagesHandler reads (GET) or overwrites (POST) the acceptance flag
func AcceptMessagesHandler(w http.ResponseWriter, r *http.Request) {
	var logMessageBuilder strings.Builder
	defer func() {
		fmt.Println(logMessageBuilder.String())
	}()
	utils.AddToLogMessage(&logMessageBuilder, "[Accept Messages API]")

	claims, err := SessionFromContext(r.Context())
	if err != nil {
		utils.RespondError(w, &logMessageBuilder, "Not Authenticated. You must be logged in to access this resource.", http.StatusUnauthorized)
		return
	}
	userID, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		utils.RespondError(w, &logMessageBuilder, "Invalid user ID", http.StatusUnauthorized)
		return
	}

	collection := utils.UserCollection()
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	switch r.Method {
	case http.MethodGet:
		var user models.User
		err := collection.FindOne(ctx, bson.M{"_id": userID}).Decode(&user)
		if err != nil {
			if err == mongo.ErrNoDocuments {
				utils.RespondError(w, &logMessageBuilder, "User not found.", http.StatusNotFound)
			} else {
				utils.AddToLogMessage(&logMessageBuilder, fmt.Sprintf("Database error: %v", err))
				utils.RespondError(w, &logMessageBuilder, "Server error: Failed to get user status.", http.StatusInternalServerError)
			}
			return
		}

		utils.RespondJSON(w, http.StatusOK, utils.ApiResponse{
			Success:             true,
			Message:             "User message acceptance status retrieved successfully.",
			IsAcceptingMessages: &user.IsAcceptingMessages,
		})

	case http.MethodPost:
		var req AcceptMessagesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.RespondError(w, &logMessageBuilder, "Invalid request body", http.StatusBadRequest)
			return
		}

		var updatedUser models.User
		err := collection.FindOneAndUpdate(ctx,
			bson.M{"_id": userID},
			bson.M{"$set": bson.M{"isAcceptingMessage": req.AcceptMessages, "updated_at": time.Now()}},
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&updatedUser)
		if err != nil {
			if err == mongo.ErrNoDocuments {
				utils.RespondError(w, &logMessageBuilder, "User not found. Update failed.", http.StatusNotFound)
			} else {
				utils.AddToLogMessage(&logMessageBuilder, fmt.Sprintf("Database error: %v", err))
				utils.RespondError(w, &logMessageBuilder, "Server error: Failed to update user status.", http.StatusInternalServerError)
			}
			return
		}

		utils.AddToLogMessage(&logMessageBuilder, fmt.Sprintf("Acceptance flag set to %v", req.AcceptMessages))
		utils.RespondJSON(w, http.StatusOK, utils.ApiResponse{
			Success:     true,
			Message:     "User message acceptance status updated successfully.",
			UpdatedUser: &updatedUser,
		})

	default:
		utils.RespondError(w, &logMessageBuilder, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
