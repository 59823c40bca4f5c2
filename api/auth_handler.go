package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/raushankrgupta/mystery-message/config"
	"github.com/raushankrgupta/mystery-message/models"
	"github.com/raushankrgupta/mystery-message/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/crypto/bcrypt"
)

// SignUpRequest represents the payload for user registration
type SignUpRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignInRequest represents the payload for user sign-in. Identifier may be
// either a username or an email address.
type SignInRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// VerifyCodeRequest represents the payload for verifying the emailed code
type VerifyCodeRequest struct {
	Username string `json:"username"`
	Code     string `json:"code"`
}

var emailRegexp = regexp.MustCompile(`^.+@.+\..+$`)

// SignUpHandler handles user registration and sends the verification code
func SignUpHandler(w http.ResponseWriter, r *http.Request) {
	var logMessageBuilder strings.Builder
	defer func() {
		fmt.Println(logMessageBuilder.String())
	}()
	utils.AddToLogMessage(&logMessageBuilder, "[Sign Up API]")

	if r.Method != http.MethodPost {
		utils.RespondError(w, &logMessageBuilder, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SignUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, &logMessageBuilder, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Username == "" || req.Email == "" || req.Password == "" {
		utils.RespondError(w, &logMessageBuilder, "Username, Email and Password are required", http.StatusBadRequest)
		return
	}
	if ok, msg := models.ValidateUsername(req.Username); !ok {
		utils.RespondError(w, &logMessageBuilder, msg, http.StatusBadRequest)
		return
	}
	if !emailRegexp.MatchString(req.Email) {
		utils.RespondError(w, &logMessageBuilder, "Please fill a valid email address", http.StatusBadRequest)
		return
	}
	if len(req.Password) < 6 {
		utils.RespondError(w, &logMessageBuilder, "Password must be at least 6 characters", http.StatusBadRequest)
		return
	}

	collection := utils.UserCollection()
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	// A username is only taken once its holder has verified. Unverified
	// claims on the same name may coexist until one of them confirms.
	var verifiedUser models.User
	err := collection.FindOne(ctx, bson.M{"username": req.Username, "isVerified": true}).Decode(&verifiedUser)
	if err == nil {
		utils.AddToLogMessage(&logMessageBuilder, fmt.Sprintf("Username %s already taken by a verified user", req.Username))
		utils.RespondError(w, &logMessageBuilder, "User already exists", http.StatusBadRequest)
		return
	} else if err != mongo.ErrNoDocuments {
		utils.RespondError(w, &logMessageBuilder, "Database error checking username", http.StatusInternalServerError)
		return
	}

	verifyCode, err := utils.GenerateOTP()
	if err != nil {
		utils.RespondError(w, &logMessageBuilder, "Failed to generate verification code", http.StatusInternalServerError)
		return
	}
	expiry := time.Now().Add(1 * time.Hour)

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		utils.RespondError(w, &logMessageBuilder, "Failed to hash password", http.StatusInternalServerError)
		return
	}

	var existingUser models.User
	err = collection.FindOne(ctx, bson.M{"email": req.Email}).Decode(&existingUser)
	switch {
	case err == nil && existingUser.IsVerified:
		utils.AddToLogMessage(&logMessageBuilder, fmt.Sprintf("Email %s already belongs to a verified user", req.Email))
		utils.RespondError(w, &logMessageBuilder, "User already exists", http.StatusBadRequest)
		return

	case err == nil:
		// Unverified record for this email: rotate its credentials and code
		// in place instead of creating a duplicate.
		update := bson.M{"$set": bson.M{
			"password":         string(hashedPassword),
			"verifyCode":       verifyCode,
			"verifyCodeExpiry": expiry,
			"updated_at":       time.Now(),
		}}
		if _, err := collection.UpdateOne(ctx, bson.M{"_id": existingUser.ID}, update); err != nil {
			utils.AddToLogMessage(&logMessageBuilder, fmt.Sprintf("Failed to update unverified user: %v", err))
			utils.RespondError(w, &logMessageBuilder, "Failed to create user", http.StatusInternalServerError)
			return
		}
		utils.AddToLogMessage(&logMessageBuilder, "Rotated credentials for existing unverified user")

	case err == mongo.ErrNoDocuments:
		newUser := models.User{
			Username:            req.Username,
			Email:               req.Email,
			Password:            string(hashedPassword),
			VerifyCode:          verifyCode,
			VerifyCodeExpiry:    expiry,
			IsVerified:          false,
			IsAcceptingMessages: true,
			Messages:            []models.Message{},
			CreatedAt:           time.Now(),
			UpdatedAt:           time.Now(),
		}
		if _, err := collection.InsertOne(ctx, newUser); err != nil {
			utils.AddToLogMessage(&logMessageBuilder, fmt.Sprintf("Failed to create user: %v", err))
			utils.RespondError(w, &logMessageBuilder, "Failed to create user", http.StatusInternalServerError)
			return
		}
		utils.AddToLogMessage(&logMessageBuilder, "New user created")

	default:
		utils.AddToLogMessage(&logMessageBuilder, fmt.Sprintf("Database error checking email: %v", err))
		utils.RespondError(w, &logMessageBuilder, "Database error checking user", http.StatusInternalServerError)
		return
	}

	// Email failure aborts the sign-up and is reported distinctly from a
	// database failure. Nothing is queued or retried.
	if err := utils.SendVerificationEmail(req.Username, req.Email, verifyCode); err != nil {
		utils.AddToLogMessage(&logMessageBuilder, fmt.Sprintf("Failed to send verification email: %v", err))
		utils.RespondError(w, &logMessageBuilder, "Failed to send verification email", http.StatusInternalServerError)
		return
	}

	utils.AddToLogMessage(&logMessageBuilder, "User registered, verification email sent")
	utils.RespondJSON(w, http.StatusCreated, utils.ApiResponse{
		Success: true,
		Message: "User created successfully. Please verify your email",
	})
}

// CheckUsernameHandler reports whether a username is still available
func CheckUsernameHandler(w http.ResponseWriter, r *http.Request) {
	var logMessageBuilder strings.Builder
	defer func() {
		fmt.Println(logMessageBuilder.String())
	}()
	utils.AddToLogMessage(&logMessageBuilder, "[Check Username API]")

	if r.Method != http.MethodGet {
		utils.RespondError(w, &logMessageBuilder, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	username := r.URL.Query().Get("username")
	if ok, msg := models.ValidateUsername(username); !ok {
		utils.RespondError(w, &logMessageBuilder, msg, http.StatusBadRequest)
		return
	}

	collection := utils.UserCollection()
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var existingUser models.User
	err := collection.FindOne(ctx, bson.M{"username": username, "isVerified": true}).Decode(&existingUser)
	if err == nil {
		utils.RespondError(w, &logMessageBuilder, "Username already exists", http.StatusBadRequest)
		return
	} else if err != mongo.ErrNoDocuments {
		utils.AddToLogMessage(&logMessageBuilder, fmt.Sprintf("Database error: %v", err))
		utils.RespondError(w, &logMessageBuilder, "Error checking username uniqueness", http.StatusInternalServerError)
		return
	}

	utils.AddToLogMessage(&logMessageBuilder, fmt.Sprintf("Username %s is available", username))
	utils.RespondJSON(w, http.StatusOK, utils.ApiResponse{
		Success: true,
		Message: "Username is unique",
	})
}

// VerifyCodeHandler checks the emailed code and flips the account to verified
func VerifyCodeHandler(w http.ResponseWriter, r *http.Request) {
	var logMessageBuilder strings.Builder
	defer func() {
		fmt.Println(logMessageBuilder.String())
	}()
	utils.AddToLogMessage(&logMessageBuilder, "[Verify Code API]")

	if r.Method != http.MethodPost {
		utils.RespondError(w, &logMessageBuilder, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req VerifyCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, &logMessageBuilder, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Code == "" {
		utils.RespondError(w, &logMessageBuilder, "Username and Code are required", http.StatusBadRequest)
		return
	}

	collection := utils.UserCollection()
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var user models.User
	err := collection.FindOne(ctx, bson.M{"username": req.Username}).Decode(&user)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			utils.RespondError(w, &logMessageBuilder, "User not found", http.StatusNotFound)
		} else {
			utils.AddToLogMessage(&logMessageBuilder, fmt.Sprintf("Database error: %v", err))
			utils.RespondError(w, &logMessageBuilder, "Error verifying code", http.StatusInternalServerError)
		}
		return
	}

	switch user.CheckVerifyCode(req.Code, time.Now()) {
	case models.VerifyAlreadyVerified:
		utils.AddToLogMessage(&logMessageBuilder, "Account already verified")
		utils.RespondJSON(w, http.StatusOK, utils.ApiResponse{
			Success: true,
			Message: "Account already verified",
		})

	case models.VerifyInvalidCode:
		utils.RespondError(w, &logMessageBuilder, "Invalid code, Please try again", http.StatusBadRequest)

	case models.VerifyCodeExpired:
		utils.RespondError(w, &logMessageBuilder, "Verification code has expired, Please request a new one", http.StatusBadRequest)

	case models.VerifyOK:
		update := bson.M{"$set": bson.M{"isVerified": true, "updated_at": time.Now()}}
		if _, err := collection.UpdateOne(ctx, bson.M{"_id": user.ID}, update); err != nil {
			utils.AddToLogMessage(&logMessageBuilder, fmt.Sprintf("Failed to mark user verified: %v", err))
			utils.RespondError(w, &logMessageBuilder, "Error verifying code", http.StatusInternalServerError)
			return
		}
		utils.AddToLogMessage(&logMessageBuilder, fmt.Sprintf("User %s verified", req.Username))
		utils.RespondJSON(w, http.StatusOK, utils.ApiResponse{
			Success: true,
			Message: "Account verified successfully",
		})
	}
}

// SignInHandler authenticates a user by username or email and issues a session
func SignInHandler(w http.ResponseWriter, r *http.Request) {
	var logMessageBuilder strings.Builder
	defer func() {
		fmt.Println(logMessageBuilder.String())
	}()
	utils.AddToLogMessage(&logMessageBuilder, "[Sign In API]")

	if r.Method != http.MethodPost {
		utils.RespondError(w, &logMessageBuilder, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SignInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, &logMessageBuilder, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Identifier == "" || req.Password == "" {
		utils.RespondError(w, &logMessageBuilder, "Identifier and Password are required", http.StatusBadRequest)
		return
	}

	collection := utils.UserCollection()
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	// Username takes precedence over email when both could match.
	var user models.User
	err := collection.FindOne(ctx, bson.M{"username": req.Identifier}).Decode(&user)
	if err == mongo.ErrNoDocuments {
		err = collection.FindOne(ctx, bson.M{"email": req.Identifier}).Decode(&user)
	}
	if err != nil {
		if err == mongo.ErrNoDocuments {
			utils.AddToLogMessage(&logMessageBuilder, fmt.Sprintf("No user found for identifier %s", req.Identifier))
			utils.RespondError(w, &logMessageBuilder, "Invalid identifier or password", http.StatusUnauthorized)
		} else {
			utils.AddToLogMessage(&logMessageBuilder, fmt.Sprintf("Database error: %v", err))
			utils.RespondError(w, &logMessageBuilder, "Database error", http.StatusInternalServerError)
		}
		return
	}

	// Unverified accounts can never sign in, even with the right password.
	if !user.IsVerified {
		utils.RespondError(w, &logMessageBuilder, "User is not verified. Please verify your account.", http.StatusForbidden)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		utils.RespondError(w, &logMessageBuilder, "Invalid identifier or password", http.StatusUnauthorized)
		return
	}

	token, err := utils.GenerateToken(&user)
	if err != nil {
		utils.AddToLogMessage(&logMessageBuilder, fmt.Sprintf("Failed to generate token: %v", err))
		utils.RespondError(w, &logMessageBuilder, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	isProd := config.Environment == "production"
	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    token,
		Path:     "/",
		MaxAge:   int((24 * time.Hour).Seconds()),
		Secure:   isProd,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	utils.AddToLogMessage(&logMessageBuilder, "Sign in successful")
	utils.RespondJSON(w, http.StatusOK, utils.ApiResponse{
		Success: true,
		Message: "Sign in successful",
		Token:   token,
		User:    &user,
	})
}
