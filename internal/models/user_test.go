package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUserDisplayName(t *testing.T) {
	require.Equal(t, "Olivia Owner", (&User{Name: " Olivia Owner ", Email: "o@example.com"}).DisplayName())
	require.Equal(t, "bob", (&User{Email: "bob@example.com"}).DisplayName())
	require.Empty(t, (&User{}).DisplayName())
	var u *User
	require.Empty(t, u.DisplayName())
}
