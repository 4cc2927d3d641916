package auth

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/arnavshah/slot-assignment-api/pkg/database"
)

func newTestAuth() *Authenticator {
	a := New("jwt-secret", "master-secret")
	a.BcryptCost = bcrypt.MinCost
	return a
}

func TestHMACKeys(t *testing.T) {
	a := newTestAuth()
	key := a.GenerateKey("clinic-42")

	userID, err := a.VerifyKey(key)
	require.NoError(t, err)
	assert.Equal(t, "clinic-42", userID)

	_, err = a.VerifyKey("clinic-42.deadbeef")
	assert.ErrorIs(t, err, ErrBadSignature)

	_, err = a.VerifyKey("no-separator")
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = a.VerifyKey(key + ".extra")
	assert.ErrorIs(t, err, ErrInvalidKey)

	other := New("jwt-secret", "another-secret")
	_, err = other.VerifyKey(key)
	assert.ErrorIs(t, err, ErrBadSignature)

	_, err = New("", "").VerifyKey(key)
	assert.ErrorIs(t, err, ErrMissingSecret)
}

func TestTokens(t *testing.T) {
	a := newTestAuth()
	token, err := a.CreateToken("admin")
	require.NoError(t, err)

	claims, err := a.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)

	_, err = New("other", "").VerifyToken(token)
	assert.Error(t, err)

	a.TokenTTL = -time.Minute
	expired, err := a.CreateToken("admin")
	require.NoError(t, err)
	_, err = a.VerifyToken(expired)
	assert.Error(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{Username: "admin"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = newTestAuth().VerifyToken(unsigned)
	assert.Error(t, err)
}

func TestPasswords(t *testing.T) {
	a := newTestAuth()
	hash, err := a.HashPassword("s3cret")
	require.NoError(t, err)
	assert.True(t, CheckPasswordHash("s3cret", hash))
	assert.False(t, CheckPasswordHash("wrong", hash))
}

func TestEnsureAdminAndLogin(t *testing.T) {
	db, err := database.InitDB(database.Config{DataPath: filepath.Join(t.TempDir(), "auth.db")})
	require.NoError(t, err)
	a := newTestAuth()
	ctx := context.Background()

	require.NoError(t, a.EnsureAdminExists(ctx, db, "root", "hunter2"))
	require.NoError(t, a.EnsureAdminExists(ctx, db, "other", "ignored"))

	var count int64
	db.Model(&database.MasterUser{}).Count(&count)
	assert.Equal(t, int64(1), count)

	token, err := a.Login(ctx, db, "root", "hunter2")
	require.NoError(t, err)
	claims, err := a.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "root", claims.Username)

	_, err = a.Login(ctx, db, "root", "nope")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = a.Login(ctx, db, "ghost", "hunter2")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
