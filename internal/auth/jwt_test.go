package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidate(t *testing.T) {
	m := NewManager("secret", time.Hour)

	token, err := m.GenerateToken(Owner{ID: "owner-1", Name: "Ada"})
	require.NoError(t, err)

	owner, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, Owner{ID: "owner-1", Name: "Ada"}, owner)
}

func TestGenerateToken_RequiresSubject(t *testing.T) {
	m := NewManager("secret", time.Hour)

	_, err := m.GenerateToken(Owner{Name: "nobody"})
	assert.ErrorIs(t, err, ErrMissingSubject)
}

func TestValidateToken_WrongSecret(t *testing.T) {
	token, err := NewManager("secret", time.Hour).GenerateToken(Owner{ID: "owner-1"})
	require.NoError(t, err)

	_, err = NewManager("other", time.Hour).ValidateToken(token)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
}

func TestValidateToken_Expired(t *testing.T) {
	m := NewManager("secret", time.Minute)
	issued := time.Now().Add(-time.Hour)
	m.now = func() time.Time { return issued }

	token, err := m.GenerateToken(Owner{ID: "owner-1"})
	require.NoError(t, err)

	m.now = time.Now
	_, err = m.ValidateToken(token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestValidateToken_RejectsOtherAlgorithms(t *testing.T) {
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "owner-1"}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = NewManager("secret", time.Hour).ValidateToken(token)
	require.Error(t, err)
	assert.True(t, errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrTokenUnverifiable))
}

func TestValidateToken_Garbage(t *testing.T) {
	_, err := NewManager("secret", time.Hour).ValidateToken("not-a-token")
	assert.ErrorIs(t, err, jwt.ErrTokenMalformed)
}
