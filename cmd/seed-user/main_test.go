package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/bizmatters/mission-dispatch/internal/models"
	"github.com/bizmatters/mission-dispatch/internal/store"
)

func TestValidateInputs(t *testing.T) {
	tests := []struct {
		name     string
		user     string
		email    string
		password string
		role     string
		wantErr  bool
	}{
		{"valid agent", "Jane Doe", "jane@example.com", "secret123", models.RoleAgent, false},
		{"valid company", "Acme", "ops@acme.io", "secret123", models.RoleCompany, false},
		{"blank name", "  ", "jane@example.com", "secret123", models.RoleAgent, true},
		{"bad email", "Jane", "jane@", "secret123", models.RoleAgent, true},
		{"short password", "Jane", "jane@example.com", "s3cret", models.RoleAgent, true},
		{"no digit", "Jane", "jane@example.com", "secretsecret", models.RoleAgent, true},
		{"unknown role", "Jane", "jane@example.com", "secret123", "ADMIN", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateInputs(tt.user, tt.email, tt.password, tt.role)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCreateUser_HashesPassword(t *testing.T) {
	users := store.NewMemoryStore()
	ctx := context.Background()

	id, err := createUser(ctx, users, " Jane Doe ", "Jane@Example.com", "secret123", models.RoleAgent)
	require.NoError(t, err)

	u, err := users.GetUser(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", u.Name)
	assert.Equal(t, "jane@example.com", u.Email)
	assert.Equal(t, models.RoleAgent, u.Role)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.HashedPassword), []byte("secret123")))

	_, err = createUser(ctx, users, "Jane", "jane@example.com", "secret123", models.RoleAgent)
	assert.Error(t, err)
}
