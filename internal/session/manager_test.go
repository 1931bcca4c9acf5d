package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kombuchalyzer/kbclient/internal/slogx"
	"github.com/kombuchalyzer/kbclient/pkg/kbsdk"
)

// fakeAPI scripts the service client's answers.
type fakeAPI struct {
	user      *kbsdk.User // answer for CurrentUser probes
	challenge *kbsdk.TotpChallenge
	loginErr  error
	totpErr   error
	otpErr    error

	logoutCalls atomic.Int64
	totpTokens  []string // intermediate tokens seen by CompleteTOTP
}

func (f *fakeAPI) CurrentUser(ctx context.Context) *kbsdk.User { return f.user }

func (f *fakeAPI) Login(ctx context.Context, username, password string) (*kbsdk.TotpChallenge, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return f.challenge, nil
}

func (f *fakeAPI) CompleteTOTP(ctx context.Context, intermediateToken, code string) error {
	f.totpTokens = append(f.totpTokens, intermediateToken)
	return f.totpErr
}

func (f *fakeAPI) Logout(ctx context.Context) { f.logoutCalls.Add(1) }

func (f *fakeAPI) EnableTOTP(ctx context.Context, code string) error  { return f.otpErr }
func (f *fakeAPI) DisableTOTP(ctx context.Context, code string) error { return f.otpErr }

func newTestManager(api AuthAPI) *Manager {
	return NewManager(api, WithLogger(slogx.Discard()))
}

func TestManagerInitialState(t *testing.T) {
	t.Parallel()

	m := newTestManager(&fakeAPI{})
	snap := m.Snapshot()
	require.Equal(t, StateUnknown, snap.State)
	require.True(t, snap.IsLoading())
	require.False(t, snap.IsAuthenticated())
	require.False(t, snap.IsAdmin())
}

func TestManagerRefreshAuth(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("settles to authenticated", func(t *testing.T) {
		api := &fakeAPI{user: &kbsdk.User{ID: "u1", Role: kbsdk.RoleAdmin}}
		m := newTestManager(api)

		snap := m.RefreshAuth(ctx)
		require.Equal(t, StateAuthenticated, snap.State)
		require.True(t, snap.IsAdmin())
	})

	t.Run("degrades to anonymous on failed probe", func(t *testing.T) {
		m := newTestManager(&fakeAPI{user: nil})

		snap := m.RefreshAuth(ctx)
		require.Equal(t, StateAnonymous, snap.State)
		require.Nil(t, snap.User)
	})

	t.Run("idempotent", func(t *testing.T) {
		api := &fakeAPI{user: &kbsdk.User{ID: "u1"}}
		m := newTestManager(api)

		first := m.RefreshAuth(ctx)
		second := m.RefreshAuth(ctx)
		require.Equal(t, first.State, second.State)
	})
}

func TestManagerLogin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("straight to authenticated", func(t *testing.T) {
		api := &fakeAPI{user: &kbsdk.User{ID: "u1"}}
		m := newTestManager(api)

		require.NoError(t, m.Login(ctx, "u1@example.com", "pw"))
		require.Equal(t, StateAuthenticated, m.Snapshot().State)
	})

	t.Run("rejected credentials leave state unchanged", func(t *testing.T) {
		api := &fakeAPI{loginErr: errors.New("nope")}
		m := newTestManager(api)

		require.Error(t, m.Login(ctx, "u1@example.com", "bad"))
		require.Equal(t, StateUnknown, m.Snapshot().State)
	})

	t.Run("challenge moves to totp pending", func(t *testing.T) {
		api := &fakeAPI{challenge: &kbsdk.TotpChallenge{IntermediateToken: "tok-1"}}
		m := newTestManager(api)

		require.NoError(t, m.Login(ctx, "u1@example.com", "pw"))
		require.Equal(t, StateTotpPending, m.Snapshot().State)
	})
}

func TestManagerCompleteTOTP(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("no challenge pending", func(t *testing.T) {
		m := newTestManager(&fakeAPI{})
		require.ErrorIs(t, m.CompleteTOTP(ctx, "123456"), ErrNoChallenge)
	})

	t.Run("success discards the challenge", func(t *testing.T) {
		api := &fakeAPI{challenge: &kbsdk.TotpChallenge{IntermediateToken: "tok-1"}}
		m := newTestManager(api)
		require.NoError(t, m.Login(ctx, "u1@example.com", "pw"))

		api.user = &kbsdk.User{ID: "u1", TOTPEnabled: true}
		require.NoError(t, m.CompleteTOTP(ctx, "123456"))
		require.Equal(t, StateAuthenticated, m.Snapshot().State)
		require.Equal(t, []string{"tok-1"}, api.totpTokens)

		// The spent token must never be presented again.
		require.ErrorIs(t, m.CompleteTOTP(ctx, "654321"), ErrNoChallenge)
	})

	t.Run("rejected code keeps the challenge pending", func(t *testing.T) {
		api := &fakeAPI{
			challenge: &kbsdk.TotpChallenge{IntermediateToken: "tok-1"},
			totpErr:   errors.New("bad code"),
		}
		m := newTestManager(api)
		require.NoError(t, m.Login(ctx, "u1@example.com", "pw"))

		require.Error(t, m.CompleteTOTP(ctx, "000000"))
		require.Equal(t, StateTotpPending, m.Snapshot().State)

		// Retry with the same intermediate token succeeds.
		api.totpErr = nil
		api.user = &kbsdk.User{ID: "u1"}
		require.NoError(t, m.CompleteTOTP(ctx, "123456"))
		require.Equal(t, []string{"tok-1", "tok-1"}, api.totpTokens)
	})
}

func TestManagerCancelTOTP(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	api := &fakeAPI{challenge: &kbsdk.TotpChallenge{IntermediateToken: "tok-1"}}
	m := newTestManager(api)
	require.NoError(t, m.Login(ctx, "u1@example.com", "pw"))

	m.CancelTOTP()
	require.Equal(t, StateAnonymous, m.Snapshot().State)
	require.ErrorIs(t, m.CompleteTOTP(ctx, "123456"), ErrNoChallenge)
}

func TestManagerLogout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	api := &fakeAPI{user: &kbsdk.User{ID: "u1"}}
	m := newTestManager(api)
	require.NoError(t, m.Login(ctx, "u1@example.com", "pw"))
	require.Equal(t, StateAuthenticated, m.Snapshot().State)

	m.Logout(ctx)

	snap := m.Snapshot()
	require.Equal(t, StateAnonymous, snap.State)
	require.Nil(t, snap.User)
	require.Nil(t, m.CurrentUser())
	require.EqualValues(t, 1, api.logoutCalls.Load())
}

func TestManagerOTPToggleRefreshes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	api := &fakeAPI{user: &kbsdk.User{ID: "u1", TOTPEnabled: false}}
	m := newTestManager(api)
	require.NoError(t, m.Login(ctx, "u1@example.com", "pw"))

	api.user = &kbsdk.User{ID: "u1", TOTPEnabled: true}
	require.NoError(t, m.EnableTOTP(ctx, "123456"))
	require.True(t, m.CurrentUser().TOTPEnabled)

	api.user = &kbsdk.User{ID: "u1", TOTPEnabled: false}
	require.NoError(t, m.DisableTOTP(ctx, "654321"))
	require.False(t, m.CurrentUser().TOTPEnabled)

	api.otpErr = errors.New("bad code")
	require.Error(t, m.EnableTOTP(ctx, "000000"))
}
