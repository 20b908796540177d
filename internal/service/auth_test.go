package service_test

import (
	"bytes"
	"image"
	"image/png"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rotacerta/ekspedisi/internal/apierr"
	"github.com/rotacerta/ekspedisi/internal/models"
	"github.com/rotacerta/ekspedisi/internal/service"
	"github.com/rotacerta/ekspedisi/internal/testutil"
)

func register(t *testing.T, e *env, username string) (*models.User, string) {
	t.Helper()
	u, token, err := e.auth.Register(ctx, service.RegisterInput{
		Username:        username,
		Email:           username + "@example.com",
		Password:        "rahasia-123",
		PasswordConfirm: "rahasia-123",
	})
	require.NoError(t, err)
	return u, token
}

func TestRegister(t *testing.T) {
	e := newEnv(t)

	u, token, err := e.auth.Register(ctx, service.RegisterInput{
		Username:        "budi",
		Email:           "budi@example.com",
		Password:        "rahasia-123",
		PasswordConfirm: "rahasia-123",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleCustomer, u.Role)
	assert.NotEmpty(t, token)

	got, tokenID, err := e.auth.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.NotEmpty(t, tokenID)
}

func TestRegister_Validation(t *testing.T) {
	e := newEnv(t)

	tests := []struct {
		name  string
		in    service.RegisterInput
		field string
	}{
		{
			name:  "privileged role",
			in:    service.RegisterInput{Username: "x", Password: "rahasia-123", PasswordConfirm: "rahasia-123", Role: models.RoleCourier},
			field: "role",
		},
		{
			name:  "password mismatch",
			in:    service.RegisterInput{Username: "x", Password: "rahasia-123", PasswordConfirm: "rahasia-124"},
			field: "password_confirm",
		},
		{
			name:  "numeric password",
			in:    service.RegisterInput{Username: "x", Password: "12345678", PasswordConfirm: "12345678"},
			field: "password",
		},
		{
			name:  "short password",
			in:    service.RegisterInput{Username: "x", Password: "abc", PasswordConfirm: "abc"},
			field: "password",
		},
		{
			name:  "missing username",
			in:    service.RegisterInput{Password: "rahasia-123", PasswordConfirm: "rahasia-123"},
			field: "username",
		},
		{
			name:  "bad email",
			in:    service.RegisterInput{Username: "x", Email: "nope", Password: "rahasia-123", PasswordConfirm: "rahasia-123"},
			field: "email",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := e.auth.Register(ctx, tt.in)
			assertAPIError(t, err, http.StatusBadRequest, "validation_error")
			apiErr, _ := apierr.As(err)
			assert.Contains(t, apiErr.Fields, tt.field)
		})
	}
}

func TestRegister_DuplicateUsername(t *testing.T) {
	e := newEnv(t)
	register(t, e, "budi")

	_, _, err := e.auth.Register(ctx, service.RegisterInput{
		Username:        "budi",
		Password:        "rahasia-456",
		PasswordConfirm: "rahasia-456",
	})
	assertAPIError(t, err, http.StatusConflict, "conflict")
}

func TestLogin(t *testing.T) {
	e := newEnv(t)
	u, _ := register(t, e, "budi")

	got, token, err := e.auth.Login(ctx, "budi", "rahasia-123")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.NotEmpty(t, token)

	_, _, err = e.auth.Login(ctx, "budi", "wrong-password")
	assertAPIError(t, err, http.StatusUnauthorized, "invalid_credentials")

	_, _, err = e.auth.Login(ctx, "nobody", "rahasia-123")
	assertAPIError(t, err, http.StatusUnauthorized, "invalid_credentials")
}

func TestLogin_InactiveAccount(t *testing.T) {
	e := newEnv(t)
	u, _ := register(t, e, "budi")
	require.NoError(t, e.db.Model(u).Update("is_active", false).Error)

	_, _, err := e.auth.Login(ctx, "budi", "rahasia-123")
	assertAPIError(t, err, http.StatusUnauthorized, "invalid_credentials")
}

func TestLogout(t *testing.T) {
	e := newEnv(t)
	_, token := register(t, e, "budi")

	_, tokenID, err := e.auth.Authenticate(ctx, token)
	require.NoError(t, err)

	require.NoError(t, e.auth.Logout(ctx, tokenID))

	_, _, err = e.auth.Authenticate(ctx, token)
	assertAPIError(t, err, http.StatusUnauthorized, "invalid_credentials")

	err = e.auth.Logout(ctx, tokenID)
	assertAPIError(t, err, http.StatusBadRequest, "logout_failed")
}

func TestAuthenticate_RejectsForeignTokens(t *testing.T) {
	e := newEnv(t)
	_, token := register(t, e, "budi")

	other := service.NewAuthService(e.db, testutil.Logger(t), service.AuthConfig{Secret: "other-secret"}, nil)
	for _, raw := range []string{"not-a-jwt", ""} {
		_, _, err := e.auth.Authenticate(ctx, raw)
		assertAPIError(t, err, http.StatusUnauthorized, "invalid_credentials")
	}
	_, _, err := other.Authenticate(ctx, token)
	assertAPIError(t, err, http.StatusUnauthorized, "invalid_credentials")
}

func TestProfile(t *testing.T) {
	e := newEnv(t)
	u, _ := register(t, e, "budi")

	_, err := e.auth.Profile(ctx, u)
	assertAPIError(t, err, http.StatusNotFound, "not_found")

	p, err := e.auth.UpdateProfile(ctx, u, service.ProfileInput{
		FullName: ptr("Budi Santoso"),
		Phone:    ptr("0812-3456-7890"),
	})
	require.NoError(t, err)
	assert.Equal(t, "081234567890", p.Phone)

	p, err = e.auth.UpdateProfile(ctx, u, service.ProfileInput{Address: ptr("Jl. Asia Afrika 8")})
	require.NoError(t, err)
	assert.Equal(t, "Budi Santoso", p.FullName)
	assert.Equal(t, "Jl. Asia Afrika 8", p.Address)

	_, err = e.auth.UpdateProfile(ctx, u, service.ProfileInput{Phone: ptr("12")})
	assertAPIError(t, err, http.StatusBadRequest, "validation_error")

	var n int64
	require.NoError(t, e.db.Model(&models.Profile{}).Where("user_id = ?", u.ID).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestSetProfilePhoto(t *testing.T) {
	e := newEnv(t)
	u, _ := register(t, e, "budi")

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8))))

	p, err := e.auth.SetProfilePhoto(ctx, u, &buf)
	require.NoError(t, err)
	assert.Regexp(t, `^profiles/.+\.jpg$`, p.Photo)

	_, err = e.auth.SetProfilePhoto(ctx, u, bytes.NewReader([]byte("plain text")))
	assertAPIError(t, err, http.StatusBadRequest, "validation_error")
}
