package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"opsdesk.org/internal/authapi"
	"opsdesk.org/internal/obs"
	"opsdesk.org/internal/rbac"
)

// Tokens are treated as expired slightly before literal expiry so a
// request dispatched at the threshold does not fail mid-flight.
const defaultExpiryLeeway = 30 * time.Second

// AuthClient is the remote credential endpoint the manager depends on.
type AuthClient interface {
	Login(ctx context.Context, email, password string) (authapi.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (authapi.LoginResult, error)
}

// Manager owns the authenticated session: login, transparent refresh,
// active-company tracking, permission checks, and request headers.
// Construct one explicitly and pass it to consumers; there is no package
// singleton, so tests and multiple concurrent sessions stay isolated.
type Manager struct {
	store  Store
	client AuthClient
	now    func() time.Time
	leeway time.Duration

	refreshMu sync.Mutex
	refresh   *refreshFlight
}

type refreshFlight struct {
	done chan struct{}
	ok   bool
}

// Option configures Manager behavior.
type Option func(*Manager) error

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(m *Manager) error {
		if fn != nil {
			m.now = fn
		}
		return nil
	}
}

// WithExpiryLeeway sets how long before literal expiry a token is already
// considered expired. Zero disables the leeway.
func WithExpiryLeeway(d time.Duration) Option {
	return func(m *Manager) error {
		if d >= 0 {
			m.leeway = d
		}
		return nil
	}
}

// NewManager constructs a session manager over the given store and auth
// client.
func NewManager(store Store, client AuthClient, opts ...Option) (*Manager, error) {
	m := &Manager{
		store:  store,
		client: client,
		now:    time.Now,
		leeway: defaultExpiryLeeway,
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Login authenticates against the remote API and persists the resulting
// session. Server rejections surface as *authapi.Error without retry.
func (m *Manager) Login(ctx context.Context, email, password string) (*Record, error) {
	res, err := m.client.Login(ctx, email, password)
	if err != nil {
		obs.ObserveLogin("error")
		return nil, err
	}
	rec, err := m.StoreAuth(res)
	if err != nil {
		obs.ObserveLogin("error")
		return nil, err
	}
	obs.ObserveLogin("ok")
	return rec, nil
}

// StoreAuth writes a session record built from the login result. A prior
// record's company selection survives if it is still among the new
// memberships, so a silent background refresh never switches the active
// tenant under the user.
func (m *Manager) StoreAuth(res authapi.LoginResult) (*Record, error) {
	rec, err := m.recordFromResult(res)
	if err != nil {
		return nil, err
	}
	if prev := m.GetAuth(); prev != nil && rec.HasCompany(prev.CurrentCompanyID) {
		rec.CurrentCompanyID = prev.CurrentCompanyID
	}
	if err := m.store.Save(rec); err != nil {
		return nil, err
	}
	return rec.Clone(), nil
}

// GetAuth returns the stored session, or nil when unauthenticated. A
// record that has expired with no refresh token left is deleted on read;
// a near-expiry record with a refresh token is returned unchanged, and
// triggering the refresh is the caller's concern.
func (m *Manager) GetAuth() *Record {
	rec, err := m.store.Load()
	if err != nil {
		return nil
	}
	if rec.Validate() != nil {
		_ = m.store.Clear()
		return nil
	}
	if m.expired(rec) && rec.RefreshToken == "" {
		_ = m.store.Clear()
		obs.LogEvent(map[string]any{
			"level": "info",
			"msg":   "session_evicted",
			"user":  rec.UserID,
		})
		return nil
	}
	return rec
}

// Token returns the current access token, or "" when unauthenticated.
func (m *Manager) Token() string {
	if rec := m.GetAuth(); rec != nil {
		return rec.AccessToken
	}
	return ""
}

// IsAuthenticated reports whether a live session exists.
func (m *Manager) IsAuthenticated() bool {
	return m.GetAuth() != nil
}

// ClearAuth removes the stored session.
func (m *Manager) ClearAuth() error {
	return m.store.Clear()
}

// NeedsRefresh reports whether the session is at or past its expiry
// threshold but still holds a refresh token.
func (m *Manager) NeedsRefresh() bool {
	rec := m.GetAuth()
	return rec != nil && rec.RefreshToken != "" && m.expired(rec)
}

// RefreshAccessToken redeems the stored refresh token for fresh
// credentials. It returns false without a network call when no refresh
// token exists. On success the token fields are replaced while the
// company selection and scoping context are preserved. Any failure clears
// the session entirely; there is no partial-failure state. Concurrent
// callers are coalesced into a single network round trip whose outcome
// they all share, so a refresh token is never redeemed twice.
func (m *Manager) RefreshAccessToken(ctx context.Context) bool {
	rec, err := m.store.Load()
	if err != nil || rec.RefreshToken == "" {
		obs.ObserveRefresh("skipped")
		return false
	}

	m.refreshMu.Lock()
	if f := m.refresh; f != nil {
		m.refreshMu.Unlock()
		select {
		case <-f.done:
			return f.ok
		case <-ctx.Done():
			return false
		}
	}
	f := &refreshFlight{done: make(chan struct{})}
	m.refresh = f
	m.refreshMu.Unlock()

	f.ok = m.doRefresh(ctx, rec)
	close(f.done)

	m.refreshMu.Lock()
	m.refresh = nil
	m.refreshMu.Unlock()
	return f.ok
}

func (m *Manager) doRefresh(ctx context.Context, prev *Record) bool {
	res, err := m.client.Refresh(ctx, prev.RefreshToken)
	if err != nil {
		// A failed refresh always means the user must re-authenticate.
		_ = m.store.Clear()
		obs.ObserveRefresh("rejected")
		obs.LogEvent(map[string]any{
			"level": "info",
			"msg":   "session_refresh_rejected",
			"user":  prev.UserID,
			"error": err.Error(),
		})
		return false
	}

	rec, err := m.recordFromResult(res)
	if err != nil {
		_ = m.store.Clear()
		obs.ObserveRefresh("rejected")
		return false
	}
	if rec.HasCompany(prev.CurrentCompanyID) {
		rec.CurrentCompanyID = prev.CurrentCompanyID
	}
	rec.DepartmentIDs = append([]string(nil), prev.DepartmentIDs...)
	rec.CurrentProjectID = prev.CurrentProjectID
	if err := m.store.Save(rec); err != nil {
		_ = m.store.Clear()
		obs.ObserveRefresh("rejected")
		return false
	}
	obs.ObserveRefresh("ok")
	return true
}

// CurrentCompanyID returns the active tenant, or "" when unauthenticated.
func (m *Manager) CurrentCompanyID() string {
	if rec := m.GetAuth(); rec != nil {
		return rec.CurrentCompanyID
	}
	return ""
}

// SetCurrentCompanyID switches the active tenant. Ids not among the
// session's memberships are silently ignored; the access token stays
// valid across all memberships, only the governing role and tenant
// header change.
func (m *Manager) SetCurrentCompanyID(id string) {
	rec := m.GetAuth()
	if rec == nil || !rec.HasCompany(id) {
		return
	}
	rec.CurrentCompanyID = id
	_ = m.store.Save(rec)
}

// CurrentRole returns the role held in the active company.
func (m *Manager) CurrentRole() (rbac.Role, bool) {
	rec := m.GetAuth()
	if rec == nil {
		return "", false
	}
	membership, ok := rec.CurrentMembership()
	if !ok {
		return "", false
	}
	return membership.Role, true
}

// HasPermission resolves the active role and consults the permission
// matrix. Unauthenticated callers and unknown combinations are denied.
func (m *Manager) HasPermission(action rbac.Action, resource rbac.Resource) bool {
	role, ok := m.CurrentRole()
	if !ok {
		return false
	}
	return rbac.Allowed(role, resource, action)
}

// IsSuperAdmin reports whether the active role is super_admin.
func (m *Manager) IsSuperAdmin() bool {
	role, ok := m.CurrentRole()
	return ok && rbac.IsSuperAdmin(role)
}

// IsAdmin reports whether the active role is super_admin or admin.
func (m *Manager) IsAdmin() bool {
	role, ok := m.CurrentRole()
	return ok && rbac.IsAdmin(role)
}

// HasManagementRole reports whether the active role carries management
// scope.
func (m *Manager) HasManagementRole() bool {
	role, ok := m.CurrentRole()
	return ok && rbac.HasManagementRole(role)
}

// Convenience predicates for the checks feature code performs most often.

func (m *Manager) CanCreateTasks() bool {
	return m.HasPermission(rbac.ActionCreate, rbac.ResourceTask)
}

func (m *Manager) CanUpdateTasks() bool {
	return m.HasPermission(rbac.ActionUpdate, rbac.ResourceTask)
}

func (m *Manager) CanDeleteTasks() bool {
	return m.HasPermission(rbac.ActionDelete, rbac.ResourceTask)
}

func (m *Manager) CanCreateDocuments() bool {
	return m.HasPermission(rbac.ActionCreate, rbac.ResourceDocument)
}

func (m *Manager) CanDeleteDocuments() bool {
	return m.HasPermission(rbac.ActionDelete, rbac.ResourceDocument)
}

// AuthHeaders derives the headers every outbound API request must carry.
// It never fails: without a session only the base header is returned.
func (m *Manager) AuthHeaders() map[string]string {
	headers := map[string]string{"Content-Type": "application/json"}
	rec := m.GetAuth()
	if rec == nil {
		return headers
	}
	headers["Authorization"] = "Bearer " + rec.AccessToken
	if rec.CurrentCompanyID != "" {
		headers["X-Company-Id"] = rec.CurrentCompanyID
	}
	return headers
}

func (m *Manager) expired(rec *Record) bool {
	return !m.now().Before(rec.ExpiresAt.Add(-m.leeway))
}

// recordFromResult builds a session record from a login/refresh response,
// defaulting the active company to the first membership.
func (m *Manager) recordFromResult(res authapi.LoginResult) (*Record, error) {
	companies := make([]Membership, 0, len(res.Companies))
	for _, c := range res.Companies {
		role := rbac.Role(strings.TrimSpace(strings.ToLower(c.Role)))
		companies = append(companies, Membership{
			CompanyID:   c.CompanyID,
			CompanyName: c.CompanyName,
			Role:        role,
		})
	}
	rec := &Record{
		AccessToken:  res.Token,
		RefreshToken: res.RefreshToken,
		UserID:       res.UserID,
		Email:        res.Email,
		Name:         res.Name,
		Companies:    companies,
		ExpiresAt:    res.ExpiresAt,
	}
	if len(companies) > 0 {
		rec.CurrentCompanyID = companies[0].CompanyID
	}
	if rec.ExpiresAt.IsZero() {
		if exp, ok := expiryFromToken(res.Token); ok {
			rec.ExpiresAt = exp
		}
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

// expiryFromToken reads the exp claim without verifying the signature.
// Used only as a fallback when the server response omits expires_at; the
// token is opaque to the client otherwise.
func expiryFromToken(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
