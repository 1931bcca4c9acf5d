package kbsdk_test

import (
	"bytes"
	"context"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/kombuchalyzer/kbclient/internal/authtest"
	"github.com/kombuchalyzer/kbclient/pkg/kbsdk"
)

type testEnv struct {
	client *kbsdk.Client
	server *authtest.Server
	store  *authtest.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := authtest.NewStore()
	require.NoError(t, err)
	require.NoError(t, store.ApplyMigrations())
	t.Cleanup(func() { _ = store.Close() })

	server := authtest.NewServer(store)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{
		client: kbsdk.New(ts.URL),
		server: server,
		store:  store,
	}
}

func (e *testEnv) loginAdmin(t *testing.T, ctx context.Context) *kbsdk.User {
	t.Helper()

	_, err := e.server.Seed(ctx, "admin@example.com", "correct horse", "admin")
	require.NoError(t, err)

	challenge, err := e.client.Login(ctx, "admin@example.com", "correct horse")
	require.NoError(t, err)
	require.Nil(t, challenge)

	user := e.client.CurrentUser(ctx)
	require.NotNil(t, user)
	return user
}

func totpCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	return code
}

func TestLogin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("success without second factor", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.server.Seed(ctx, "user@example.com", "swordfish1", "user")
		require.NoError(t, err)

		challenge, err := env.client.Login(ctx, "user@example.com", "swordfish1")
		require.NoError(t, err)
		require.Nil(t, challenge)

		user := env.client.CurrentUser(ctx)
		require.NotNil(t, user)
		require.Equal(t, "user@example.com", user.Email)
		require.Equal(t, kbsdk.RoleUser, user.Role)
		require.False(t, user.IsAdmin())
	})

	t.Run("wrong password", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.server.Seed(ctx, "user@example.com", "swordfish1", "user")
		require.NoError(t, err)

		challenge, err := env.client.Login(ctx, "user@example.com", "nope")
		require.Nil(t, challenge)
		require.True(t, kbsdk.IsKind(err, kbsdk.KindInvalidCredentials))

		var apiErr *kbsdk.APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, 401, apiErr.StatusCode)
		require.Equal(t, "Incorrect username or password", apiErr.Detail)
	})

	t.Run("unknown account", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.client.Login(ctx, "ghost@example.com", "whatever")
		require.True(t, kbsdk.IsKind(err, kbsdk.KindInvalidCredentials))
	})

	t.Run("unreachable service", func(t *testing.T) {
		client := kbsdk.New("http://127.0.0.1:1")

		_, err := client.Login(ctx, "user@example.com", "swordfish1")
		require.Error(t, err)
		require.True(t, kbsdk.IsTransportError(err))
	})
}

func TestLoginWithTOTP(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("full flow", func(t *testing.T) {
		env := newTestEnv(t)
		_, secret, err := env.server.SeedWithTOTP(ctx, "mfa@example.com", "swordfish1", "user")
		require.NoError(t, err)

		challenge, err := env.client.Login(ctx, "mfa@example.com", "swordfish1")
		require.NoError(t, err)
		require.NotNil(t, challenge)
		require.NotEmpty(t, challenge.IntermediateToken)

		// The challenge withholds the session until the code is presented.
		require.Nil(t, env.client.CurrentUser(ctx))

		err = env.client.CompleteTOTP(ctx, challenge.IntermediateToken, totpCode(t, secret))
		require.NoError(t, err)

		user := env.client.CurrentUser(ctx)
		require.NotNil(t, user)
		require.True(t, user.TOTPEnabled)
	})

	t.Run("wrong code keeps token valid", func(t *testing.T) {
		env := newTestEnv(t)
		_, secret, err := env.server.SeedWithTOTP(ctx, "mfa@example.com", "swordfish1", "user")
		require.NoError(t, err)

		challenge, err := env.client.Login(ctx, "mfa@example.com", "swordfish1")
		require.NoError(t, err)
		require.NotNil(t, challenge)

		err = env.client.CompleteTOTP(ctx, challenge.IntermediateToken, "000000")
		require.True(t, kbsdk.IsKind(err, kbsdk.KindInvalidTotpCode))

		var apiErr *kbsdk.APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, "Invalid 2FA code", apiErr.Detail)

		// A retry with the same token and a correct code succeeds.
		err = env.client.CompleteTOTP(ctx, challenge.IntermediateToken, totpCode(t, secret))
		require.NoError(t, err)
	})

	t.Run("intermediate token is single use", func(t *testing.T) {
		env := newTestEnv(t)
		_, secret, err := env.server.SeedWithTOTP(ctx, "mfa@example.com", "swordfish1", "user")
		require.NoError(t, err)

		challenge, err := env.client.Login(ctx, "mfa@example.com", "swordfish1")
		require.NoError(t, err)

		require.NoError(t, env.client.CompleteTOTP(ctx, challenge.IntermediateToken, totpCode(t, secret)))

		err = env.client.CompleteTOTP(ctx, challenge.IntermediateToken, totpCode(t, secret))
		require.True(t, kbsdk.IsKind(err, kbsdk.KindInvalidTotpCode))
	})
}

func TestCurrentUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("nil when anonymous", func(t *testing.T) {
		env := newTestEnv(t)
		require.Nil(t, env.client.CurrentUser(ctx))
	})

	t.Run("nil on transport failure", func(t *testing.T) {
		client := kbsdk.New("http://127.0.0.1:1")
		require.Nil(t, client.CurrentUser(ctx))
	})
}

func TestLogout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	env := newTestEnv(t)
	env.loginAdmin(t, ctx)

	env.client.Logout(ctx)
	require.Nil(t, env.client.CurrentUser(ctx))
}

func TestTOTPEnrolment(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("qr code then enable and disable", func(t *testing.T) {
		env := newTestEnv(t)
		env.loginAdmin(t, ctx)

		img, err := env.client.TOTPQRCode(ctx)
		require.NoError(t, err)
		require.True(t, bytes.HasPrefix(img, []byte("\x89PNG")))

		// The QR handler persisted a pending secret for the account.
		account, err := env.store.GetAccountByEmail(ctx, "admin@example.com")
		require.NoError(t, err)
		require.NotEmpty(t, account.TOTPSecret)
		require.False(t, account.TOTPEnabled)

		err = env.client.EnableTOTP(ctx, "000000")
		require.True(t, kbsdk.IsKind(err, kbsdk.KindTotpSetupFailed))

		require.NoError(t, env.client.EnableTOTP(ctx, totpCode(t, account.TOTPSecret)))

		user := env.client.CurrentUser(ctx)
		require.NotNil(t, user)
		require.True(t, user.TOTPEnabled)

		err = env.client.DisableTOTP(ctx, "000000")
		require.True(t, kbsdk.IsKind(err, kbsdk.KindTotpDisableFailed))

		require.NoError(t, env.client.DisableTOTP(ctx, totpCode(t, account.TOTPSecret)))

		user = env.client.CurrentUser(ctx)
		require.NotNil(t, user)
		require.False(t, user.TOTPEnabled)
	})

	t.Run("qr code requires a session", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.client.TOTPQRCode(ctx)
		require.Error(t, err)
	})
}

func TestListUsers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	env := newTestEnv(t)
	env.loginAdmin(t, ctx)

	// 24 extra accounts on top of the admin, 25 in total.
	for i := range 24 {
		_, err := env.server.Seed(ctx, fmt.Sprintf("user%02d@example.com", i), "swordfish1", "user")
		require.NoError(t, err)
	}

	t.Run("full pages", func(t *testing.T) {
		for page := 1; page <= 2; page++ {
			result, err := env.client.ListUsers(ctx, page, 10)
			require.NoError(t, err)
			require.Equal(t, 25, result.Total)
			require.Len(t, result.Users, 10)
			require.Equal(t, page, result.Page)
			require.Equal(t, 10, result.Size)
		}
	})

	t.Run("short last page", func(t *testing.T) {
		result, err := env.client.ListUsers(ctx, 3, 10)
		require.NoError(t, err)
		require.Len(t, result.Users, 5)
	})

	t.Run("pages do not overlap", func(t *testing.T) {
		seen := make(map[string]bool)
		for page := 1; page <= 3; page++ {
			result, err := env.client.ListUsers(ctx, page, 10)
			require.NoError(t, err)
			for _, u := range result.Users {
				require.False(t, seen[u.ID], "user %s appeared twice", u.Email)
				seen[u.ID] = true
			}
		}
		require.Len(t, seen, 25)
	})

	t.Run("page clamp", func(t *testing.T) {
		result, err := env.client.ListUsers(ctx, 0, 10)
		require.NoError(t, err)
		require.Equal(t, 1, result.Page)
		require.Len(t, result.Users, 10)
	})

	t.Run("requires admin", func(t *testing.T) {
		userEnv := newTestEnv(t)
		_, err := userEnv.server.Seed(ctx, "user@example.com", "swordfish1", "user")
		require.NoError(t, err)
		_, err = userEnv.client.Login(ctx, "user@example.com", "swordfish1")
		require.NoError(t, err)

		_, err = userEnv.client.ListUsers(ctx, 1, 10)
		require.Error(t, err)

		var apiErr *kbsdk.APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, 403, apiErr.StatusCode)
	})
}

func TestGetUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	env := newTestEnv(t)
	admin := env.loginAdmin(t, ctx)

	t.Run("by id", func(t *testing.T) {
		user, err := env.client.GetUser(ctx, kbsdk.GetUserQuery{ID: admin.ID})
		require.NoError(t, err)
		require.Equal(t, admin.Email, user.Email)
	})

	t.Run("by email", func(t *testing.T) {
		user, err := env.client.GetUser(ctx, kbsdk.GetUserQuery{Email: admin.Email})
		require.NoError(t, err)
		require.Equal(t, admin.ID, user.ID)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := env.client.GetUser(ctx, kbsdk.GetUserQuery{Email: "ghost@example.com"})
		require.True(t, kbsdk.IsKind(err, kbsdk.KindNotFound))
	})

	t.Run("empty query", func(t *testing.T) {
		_, err := env.client.GetUser(ctx, kbsdk.GetUserQuery{})
		require.Error(t, err)
	})
}

func TestCreateUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		env := newTestEnv(t)
		env.loginAdmin(t, ctx)

		user, err := env.client.CreateUser(ctx, kbsdk.CreateUserRequest{
			Email:    "new@example.com",
			Password: "swordfish1",
			Role:     kbsdk.RoleUser,
		})
		require.NoError(t, err)
		require.NotEmpty(t, user.ID)
		require.Equal(t, "new@example.com", user.Email)
		require.True(t, user.IsActive)
	})

	t.Run("duplicate email", func(t *testing.T) {
		env := newTestEnv(t)
		env.loginAdmin(t, ctx)

		req := kbsdk.CreateUserRequest{Email: "dup@example.com", Password: "swordfish1"}
		_, err := env.client.CreateUser(ctx, req)
		require.NoError(t, err)

		_, err = env.client.CreateUser(ctx, req)
		require.True(t, kbsdk.IsKind(err, kbsdk.KindValidation))

		var apiErr *kbsdk.APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, "User already exists", apiErr.Detail)
	})

	t.Run("invalid payload never reaches the wire", func(t *testing.T) {
		// An unreachable address proves the request was rejected locally.
		client := kbsdk.New("http://127.0.0.1:1")

		_, err := client.CreateUser(ctx, kbsdk.CreateUserRequest{Email: "not an email"})
		require.True(t, kbsdk.IsKind(err, kbsdk.KindValidation))

		var apiErr *kbsdk.APIError
		require.ErrorAs(t, err, &apiErr)
		require.Contains(t, apiErr.Fields, "email")
	})
}

func TestDeleteUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	env := newTestEnv(t)
	admin := env.loginAdmin(t, ctx)

	victim, err := env.client.CreateUser(ctx, kbsdk.CreateUserRequest{
		Email:    "victim@example.com",
		Password: "swordfish1",
	})
	require.NoError(t, err)

	t.Run("success", func(t *testing.T) {
		require.NoError(t, env.client.DeleteUser(ctx, victim.ID))

		_, err := env.client.GetUser(ctx, kbsdk.GetUserQuery{ID: victim.ID})
		require.True(t, kbsdk.IsKind(err, kbsdk.KindNotFound))
	})

	t.Run("not found", func(t *testing.T) {
		err := env.client.DeleteUser(ctx, "no-such-id")
		require.True(t, kbsdk.IsKind(err, kbsdk.KindNotFound))
	})

	t.Run("service refuses self delete", func(t *testing.T) {
		err := env.client.DeleteUser(ctx, admin.ID)
		require.True(t, kbsdk.IsKind(err, kbsdk.KindForbidden))

		var apiErr *kbsdk.APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, "Admin users cannot delete themselves", apiErr.Detail)
	})
}
