package api

// These tests run the real handlers against a MongoDB instance. They skip
// unless TEST_MONGO_URI is set, e.g.:
//
//	TEST_MONGO_URI=mongodb://localhost:27017/ go test ./api/

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/raushankrgupta/mystery-message/config"
	"github.com/raushankrgupta/mystery-message/models"
	"github.com/raushankrgupta/mystery-message/utils"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

func setupIntegration(t *testing.T) {
	t.Helper()

	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set; skipping MongoDB integration tests")
	}

	config.JWTSecret = "integration-secret"
	config.DBName = fmt.Sprintf("mysterymessage_test_%d", time.Now().UnixNano())
	require.NoError(t, utils.ConnectMongo(uri))

	t.Cleanup(func() {
		_ = utils.Client.Database(config.DBName).Drop(context.Background())
	})
}

// stubEmail replaces SendGrid delivery and captures the last code per address.
func stubEmail(t *testing.T) map[string]string {
	t.Helper()

	codes := make(map[string]string)
	orig := utils.SendVerificationEmail
	utils.SendVerificationEmail = func(username, toEmail, verifyCode string) error {
		codes[toEmail] = verifyCode
		return nil
	}
	t.Cleanup(func() { utils.SendVerificationEmail = orig })
	return codes
}

// newTestMux mirrors the route table in main.go.
func newTestMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/sign-up", SignUpHandler)
	mux.HandleFunc("/api/sign-in", SignInHandler)
	mux.HandleFunc("/api/verify-code", VerifyCodeHandler)
	mux.HandleFunc("/api/check-username-unique", CheckUsernameHandler)
	mux.HandleFunc("/api/send-message", SendMessageHandler)
	mux.HandleFunc("/api/get-messages", AuthMiddleware(GetMessagesHandler))
	mux.HandleFunc("/api/delete-message/{id}", AuthMiddleware(DeleteMessageHandler))
	mux.HandleFunc("/api/accept-messages", AuthMiddleware(AcceptMessagesHandler))
	return mux
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body interface{}, token string) (*httptest.ResponseRecorder, utils.ApiResponse) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: "token", Value: token})
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	var resp utils.ApiResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

// insertVerifiedUser seeds an already-verified account and returns it with a
// fresh session token.
func insertVerifiedUser(t *testing.T, username, email, password string) (models.User, string) {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	require.NoError(t, err)

	user := models.User{
		ID:                  primitive.NewObjectID(),
		Username:            username,
		Email:               email,
		Password:            string(hash),
		VerifyCode:          "000000",
		VerifyCodeExpiry:    time.Now().Add(time.Hour),
		IsVerified:          true,
		IsAcceptingMessages: true,
		Messages:            []models.Message{},
		CreatedAt:           time.Now(),
		UpdatedAt:           time.Now(),
	}
	_, err = utils.UserCollection().InsertOne(context.Background(), user)
	require.NoError(t, err)

	token, err := utils.GenerateToken(&user)
	require.NoError(t, err)
	return user, token
}

func TestSignUpVerifySignInFlow(t *testing.T) {
	setupIntegration(t)
	codes := stubEmail(t)
	mux := newTestMux()

	// Register
	rec, resp := doJSON(t, mux, http.MethodPost, "/api/sign-up", SignUpRequest{
		Username: "alice", Email: "a@x.com", Password: "secret1",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	require.True(t, resp.Success)

	code := codes["a@x.com"]
	require.Len(t, code, 6)

	// Signing in before verification is rejected even with the right password
	rec, resp = doJSON(t, mux, http.MethodPost, "/api/sign-in", SignInRequest{
		Identifier: "alice", Password: "secret1",
	}, "")
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.False(t, resp.Success)

	// Wrong code is invalid, not expired
	rec, resp = doJSON(t, mux, http.MethodPost, "/api/verify-code", VerifyCodeRequest{
		Username: "alice", Code: "000000",
	}, "")
	if code == "000000" {
		t.Skip("verification code collided with the deliberately wrong guess")
	}
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, resp.Message, "Invalid code")

	// Correct code verifies the account
	rec, resp = doJSON(t, mux, http.MethodPost, "/api/verify-code", VerifyCodeRequest{
		Username: "alice", Code: code,
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, resp.Success)

	// Verifying again is an idempotent success
	rec, _ = doJSON(t, mux, http.MethodPost, "/api/verify-code", VerifyCodeRequest{
		Username: "alice", Code: code,
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	// Sign in by username
	rec, resp = doJSON(t, mux, http.MethodPost, "/api/sign-in", SignInRequest{
		Identifier: "alice", Password: "secret1",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, resp.Token)

	claims, err := utils.ValidateToken(resp.Token)
	require.NoError(t, err)
	require.True(t, claims.IsVerified)
	require.Equal(t, "alice", claims.Username)

	// Sign in by email works too
	rec, _ = doJSON(t, mux, http.MethodPost, "/api/sign-in", SignInRequest{
		Identifier: "a@x.com", Password: "secret1",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	// Wrong password
	rec, _ = doJSON(t, mux, http.MethodPost, "/api/sign-in", SignInRequest{
		Identifier: "alice", Password: "nope",
	}, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestVerifyCode_Expired(t *testing.T) {
	setupIntegration(t)
	codes := stubEmail(t)
	mux := newTestMux()

	rec, _ := doJSON(t, mux, http.MethodPost, "/api/sign-up", SignUpRequest{
		Username: "bob", Email: "b@x.com", Password: "secret1",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	// Age the code past its expiry.
	_, err := utils.UserCollection().UpdateOne(context.Background(),
		bson.M{"username": "bob"},
		bson.M{"$set": bson.M{"verifyCodeExpiry": time.Now().Add(-time.Minute)}},
	)
	require.NoError(t, err)

	rec, resp := doJSON(t, mux, http.MethodPost, "/api/verify-code", VerifyCodeRequest{
		Username: "bob", Code: codes["b@x.com"],
	}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, resp.Message, "expired")

	var user models.User
	require.NoError(t, utils.UserCollection().FindOne(context.Background(), bson.M{"username": "bob"}).Decode(&user))
	require.False(t, user.IsVerified)
}

func TestSignUp_RotatesUnverifiedRecord(t *testing.T) {
	setupIntegration(t)
	codes := stubEmail(t)
	mux := newTestMux()

	rec, _ := doJSON(t, mux, http.MethodPost, "/api/sign-up", SignUpRequest{
		Username: "carol", Email: "c@x.com", Password: "first-pass",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	firstCode := codes["c@x.com"]

	// Same email signs up again before verifying: credentials and code are
	// rotated in place, no duplicate record appears.
	rec, _ = doJSON(t, mux, http.MethodPost, "/api/sign-up", SignUpRequest{
		Username: "carol", Email: "c@x.com", Password: "second-pass",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	count, err := utils.UserCollection().CountDocuments(context.Background(), bson.M{"email": "c@x.com"})
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	var user models.User
	require.NoError(t, utils.UserCollection().FindOne(context.Background(), bson.M{"email": "c@x.com"}).Decode(&user))
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.Password), []byte("second-pass")))
	if firstCode != codes["c@x.com"] {
		require.Equal(t, codes["c@x.com"], user.VerifyCode)
	}
}

func TestSignUp_VerifiedUsernameBlocks(t *testing.T) {
	setupIntegration(t)
	stubEmail(t)
	mux := newTestMux()

	insertVerifiedUser(t, "dave", "d@x.com", "secret1")

	rec, resp := doJSON(t, mux, http.MethodPost, "/api/sign-up", SignUpRequest{
		Username: "dave", Email: "other@x.com", Password: "secret1",
	}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "User already exists", resp.Message)
}

func TestCheckUsernameUnique(t *testing.T) {
	setupIntegration(t)
	mux := newTestMux()

	insertVerifiedUser(t, "erin", "e@x.com", "secret1")

	rec, resp := doJSON(t, mux, http.MethodGet, "/api/check-username-unique?username=erin", nil, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Username already exists", resp.Message)

	rec, resp = doJSON(t, mux, http.MethodGet, "/api/check-username-unique?username=fresh_name", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Username is unique", resp.Message)

	rec, _ = doJSON(t, mux, http.MethodGet, "/api/check-username-unique?username=x", nil, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doJSON(t, mux, http.MethodGet, "/api/check-username-unique?username=bad!name", nil, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMessageLifecycle(t *testing.T) {
	setupIntegration(t)
	mux := newTestMux()

	_, token := insertVerifiedUser(t, "alice", "a@x.com", "secret1")

	// Empty inbox reports 404 (original surface kept)
	rec, _ := doJSON(t, mux, http.MethodGet, "/api/get-messages", nil, token)
	require.Equal(t, http.StatusNotFound, rec.Code)

	// Anonymous visitor delivers a message
	rec, _ = doJSON(t, mux, http.MethodPost, "/api/send-message", SendMessageRequest{
		Username: "alice", Content: "hello there",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, resp := doJSON(t, mux, http.MethodGet, "/api/get-messages", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, resp.Messages, 1)
	require.Equal(t, "hello there", resp.Messages[0].Content)

	// Turn acceptance off; further sends are forbidden and nothing lands
	rec, resp = doJSON(t, mux, http.MethodPost, "/api/accept-messages", AcceptMessagesRequest{
		AcceptMessages: false,
	}, token)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, resp.UpdatedUser)
	require.False(t, resp.UpdatedUser.IsAcceptingMessages)

	rec, _ = doJSON(t, mux, http.MethodPost, "/api/send-message", SendMessageRequest{
		Username: "alice", Content: "blocked",
	}, "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec, resp = doJSON(t, mux, http.MethodGet, "/api/get-messages", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, resp.Messages, 1)

	// Flag readable via GET
	rec, resp = doJSON(t, mux, http.MethodGet, "/api/accept-messages", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, resp.IsAcceptingMessages)
	require.False(t, *resp.IsAcceptingMessages)

	// Unknown target is 404, not 403
	rec, _ = doJSON(t, mux, http.MethodPost, "/api/send-message", SendMessageRequest{
		Username: "nobody", Content: "hi",
	}, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetMessages_NewestFirst(t *testing.T) {
	setupIntegration(t)
	mux := newTestMux()

	user, token := insertVerifiedUser(t, "alice", "a@x.com", "secret1")

	old := models.Message{ID: primitive.NewObjectID(), Content: "old", CreatedAt: time.Now().Add(-time.Hour)}
	fresh := models.Message{ID: primitive.NewObjectID(), Content: "fresh", CreatedAt: time.Now()}
	_, err := utils.UserCollection().UpdateOne(context.Background(),
		bson.M{"_id": user.ID},
		bson.M{"$push": bson.M{"messages": bson.M{"$each": []models.Message{old, fresh}}}},
	)
	require.NoError(t, err)

	rec, resp := doJSON(t, mux, http.MethodGet, "/api/get-messages", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, resp.Messages, 2)
	require.Equal(t, "fresh", resp.Messages[0].Content)
	require.Equal(t, "old", resp.Messages[1].Content)
}

func TestDeleteMessage_Twice(t *testing.T) {
	setupIntegration(t)
	mux := newTestMux()

	user, token := insertVerifiedUser(t, "alice", "a@x.com", "secret1")
	msg := models.Message{ID: primitive.NewObjectID(), Content: "bye", CreatedAt: time.Now()}
	_, err := utils.UserCollection().UpdateOne(context.Background(),
		bson.M{"_id": user.ID},
		bson.M{"$push": bson.M{"messages": msg}},
	)
	require.NoError(t, err)

	path := "/api/delete-message/" + msg.ID.Hex()

	rec, _ := doJSON(t, mux, http.MethodDelete, path, nil, token)
	require.Equal(t, http.StatusOK, rec.Code)

	// Idempotent: second delete fails cleanly with 404 and count stays 0
	rec, _ = doJSON(t, mux, http.MethodDelete, path, nil, token)
	require.Equal(t, http.StatusNotFound, rec.Code)

	var fetched models.User
	require.NoError(t, utils.UserCollection().FindOne(context.Background(), bson.M{"_id": user.ID}).Decode(&fetched))
	require.Empty(t, fetched.Messages)
}

func TestDeleteMessage_ScopedToOwner(t *testing.T) {
	setupIntegration(t)
	mux := newTestMux()

	victim, _ := insertVerifiedUser(t, "victim", "v@x.com", "secret1")
	_, attackerToken := insertVerifiedUser(t, "attacker", "atk@x.com", "secret1")

	msg := models.Message{ID: primitive.NewObjectID(), Content: "private", CreatedAt: time.Now()}
	_, err := utils.UserCollection().UpdateOne(context.Background(),
		bson.M{"_id": victim.ID},
		bson.M{"$push": bson.M{"messages": msg}},
	)
	require.NoError(t, err)

	rec, _ := doJSON(t, mux, http.MethodDelete, "/api/delete-message/"+msg.ID.Hex(), nil, attackerToken)
	require.Equal(t, http.StatusNotFound, rec.Code)

	var fetched models.User
	require.NoError(t, utils.UserCollection().FindOne(context.Background(), bson.M{"_id": victim.ID}).Decode(&fetched))
	require.Len(t, fetched.Messages, 1)
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	setupIntegration(t)
	mux := newTestMux()

	for _, tc := range []struct {
		method, path string
	}{
		{http.MethodGet, "/api/get-messages"},
		{http.MethodGet, "/api/accept-messages"},
		{http.MethodPost, "/api/accept-messages"},
		{http.MethodDelete, "/api/delete-message/" + primitive.NewObjectID().Hex()},
	} {
		rec, _ := doJSON(t, mux, tc.method, tc.path, nil, "")
		require.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", tc.method, tc.path)
	}
}

func TestSignUp_EmailFailureAbortsWith500(t *testing.T) {
	setupIntegration(t)
	mux := newTestMux()

	orig := utils.SendVerificationEmail
	utils.SendVerificationEmail = func(username, toEmail, verifyCode string) error {
		return fmt.Errorf("provider down")
	}
	t.Cleanup(func() { utils.SendVerificationEmail = orig })

	rec, resp := doJSON(t, mux, http.MethodPost, "/api/sign-up", SignUpRequest{
		Username: "frank", Email: "f@x.com", Password: "secret1",
	}, "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "Failed to send verification email", resp.Message)
}
