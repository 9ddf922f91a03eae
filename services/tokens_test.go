package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenIssueParse(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)

	issued, err := issuer.Issue(42)
	require.NoError(t, err)
	assert.NotEmpty(t, issued.ID)

	userID, tokenID, err := issuer.Parse(issued.Token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), userID)
	assert.Equal(t, issued.ID, tokenID)
}

func TestTokenExpired(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Minute)
	issuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	issued, err := issuer.Issue(1)
	require.NoError(t, err)

	_, _, err = issuer.Parse(issued.Token)
	assert.Error(t, err)
}

func TestTokenWrongSecret(t *testing.T) {
	issued, err := NewTokenIssuer("one", time.Hour).Issue(1)
	require.NoError(t, err)

	_, _, err = NewTokenIssuer("two", time.Hour).Parse(issued.Token)
	assert.Error(t, err)
}
