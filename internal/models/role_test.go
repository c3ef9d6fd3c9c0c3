package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRole_Ordering(t *testing.T) {
	assert.True(t, RoleAdmin.AtLeast(RoleOrganizer))
	assert.True(t, RoleAdmin.AtLeast(RoleAdmin))
	assert.True(t, RoleOrganizer.AtLeast(RoleUser))
	assert.False(t, RoleUser.AtLeast(RoleOrganizer))
	assert.False(t, RoleGuest.AtLeast(RoleUser))
}

func TestParseRole(t *testing.T) {
	for v := 0; v <= 4; v++ {
		r, err := ParseRole(v)
		require.NoError(t, err)
		assert.Equal(t, v, int(r))
	}

	_, err := ParseRole(5)
	require.Error(t, err)
	_, err = ParseRole(-1)
	require.Error(t, err)

	assert.Equal(t, "organizer", RoleOrganizer.String())
	assert.Equal(t, "role(9)", Role(9).String())
}

func TestUser_JSON(t *testing.T) {
	b, err := json.Marshal(User{ID: 1, Name: "Ona", Email: "a@x.com", PasswordHash: "h", Role: RoleOrganizer})
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(b, &out))
	assert.EqualValues(t, 2, out["role"])
	assert.NotContains(t, out, "PasswordHash")
	assert.NotContains(t, out, "password_hash")
}

func TestTokenSession_Liveness(t *testing.T) {
	now := time.Now()
	s := TokenSession{ExpiresAt: now.Add(time.Minute), RefreshExpiresAt: now.Add(time.Hour)}
	assert.True(t, s.AccessLive(now))
	assert.True(t, s.RefreshLive(now))

	assert.False(t, s.AccessLive(now.Add(2*time.Minute)))
	assert.True(t, s.RefreshLive(now.Add(2*time.Minute)))

	s.IsRevoked = true
	assert.False(t, s.AccessLive(now))
	assert.False(t, s.RefreshLive(now))
}
