package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"document-portal/portal-backend/internal/access"
	"document-portal/portal-backend/internal/apperr"
	"document-portal/portal-backend/internal/directory"
	"document-portal/portal-backend/internal/testutil"
)

const testSecret = "test-secret-0123456789"

func setup(t *testing.T) (*Service, *directory.User) {
	t.Helper()
	db := testutil.NewDB(t, directory.Models()...)
	repo := directory.NewRepository(db)

	user, err := directory.NewUser(directory.CreateUserRequest{
		Username: "clerk",
		FullName: "Văn thư",
		Password: "correct-horse",
		Roles:    []access.Role{access.RoleClerk},
	})
	require.NoError(t, err)
	require.NoError(t, repo.CreateUser(context.Background(), user))

	tokens, err := NewTokenIssuer(testSecret, "portal", time.Hour)
	require.NoError(t, err)
	return NewService(repo, tokens, zap.NewNop()), user
}

func TestTokenRoundTrip(t *testing.T) {
	issuer, err := NewTokenIssuer(testSecret, "portal", time.Hour)
	require.NoError(t, err)

	raw, expires, err := issuer.Issue(42)
	require.NoError(t, err)
	assert.True(t, expires.After(time.Now()))

	claims, err := issuer.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "42", claims.Subject)
}

func TestTokenRejected(t *testing.T) {
	issuer, err := NewTokenIssuer(testSecret, "portal", time.Hour)
	require.NoError(t, err)
	raw, _, err := issuer.Issue(7)
	require.NoError(t, err)

	t.Run("expired", func(t *testing.T) {
		late := *issuer
		late.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err := late.Parse(raw)
		assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	})
	t.Run("other secret", func(t *testing.T) {
		other, err := NewTokenIssuer("another-secret-abcdef", "portal", time.Hour)
		require.NoError(t, err)
		_, err = other.Parse(raw)
		assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	})
	t.Run("garbage", func(t *testing.T) {
		_, err := issuer.Parse("not-a-token")
		assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	})
}

func TestNewTokenIssuerShortSecret(t *testing.T) {
	_, err := NewTokenIssuer("short", "portal", time.Hour)
	assert.Error(t, err)
}

func TestLogin(t *testing.T) {
	svc, user := setup(t)
	ctx := context.Background()

	resp, err := svc.Login(ctx, LoginRequest{Username: "clerk", Password: "correct-horse"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, user.ID, resp.User.ID)

	resolved, err := svc.Resolve(ctx, resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, resolved.ID)
	assert.NotNil(t, resolved.LastLoginAt)

	_, err = svc.Login(ctx, LoginRequest{Username: "clerk", Password: "wrong"})
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, err = svc.Login(ctx, LoginRequest{Username: "nobody", Password: "correct-horse"})
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestRequireAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, user := setup(t)

	router := gin.New()
	router.GET("/whoami", svc.RequireAuth(), func(c *gin.Context) {
		actor, ok := access.ActorFromContext(c.Request.Context())
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"id": actor.ID, "clerk": actor.Has(access.RoleClerk)})
	})

	resp, err := svc.Login(context.Background(), LoginRequest{Username: "clerk", Password: "correct-horse"})
	require.NoError(t, err)

	t.Run("valid bearer", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("Authorization", "Bearer "+resp.AccessToken)
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var body struct {
			ID    uint `json:"id"`
			Clerk bool `json:"clerk"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, user.ID, body.ID)
		assert.True(t, body.Clerk)
	})

	t.Run("missing header", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.True(t, strings.Contains(w.Body.String(), "unauthorized"))
	})

	t.Run("wrong scheme", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("Authorization", "Basic abc")
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
