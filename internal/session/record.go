// Package session owns the authenticated session: the durable record, the
// store port it is persisted through, and the manager that refreshes
// credentials, tracks the active company, and answers permission checks.
package session

import (
	"fmt"
	"strings"
	"time"

	"opsdesk.org/internal/rbac"
)

// Membership pairs one company the user belongs to with the role held
// there. The role is scoped to that company only.
type Membership struct {
	CompanyID   string    `json:"company_id"`
	CompanyName string    `json:"company_name"`
	Role        rbac.Role `json:"role"`
}

// Record is the durable representation of an authenticated session.
// Exactly one record exists per store; it is created by login or refresh,
// mutated by company selection, and destroyed by logout, refresh failure,
// or lazy eviction on read.
type Record struct {
	AccessToken      string       `json:"access_token"`
	RefreshToken     string       `json:"refresh_token,omitempty"`
	UserID           string       `json:"user_id"`
	Email            string       `json:"email"`
	Name             string       `json:"name"`
	Companies        []Membership `json:"companies"`
	CurrentCompanyID string       `json:"current_company_id"`
	ExpiresAt        time.Time    `json:"expires_at"`
	DepartmentIDs    []string     `json:"department_ids,omitempty"`
	CurrentProjectID string       `json:"current_project_id,omitempty"`
}

// HasCompany reports whether id is among the record's memberships.
func (r *Record) HasCompany(id string) bool {
	_, ok := r.MembershipFor(id)
	return ok
}

// MembershipFor returns the membership for the given company id.
func (r *Record) MembershipFor(id string) (Membership, bool) {
	if id == "" {
		return Membership{}, false
	}
	for _, m := range r.Companies {
		if m.CompanyID == id {
			return m, true
		}
	}
	return Membership{}, false
}

// CurrentMembership returns the membership of the active company.
func (r *Record) CurrentMembership() (Membership, bool) {
	return r.MembershipFor(r.CurrentCompanyID)
}

// Validate enforces the record invariants: a token and expiry must be
// present, at least one membership must exist, and the current company
// must be one of the memberships.
func (r *Record) Validate() error {
	if strings.TrimSpace(r.AccessToken) == "" {
		return fmt.Errorf("%w: access token is required", ErrInvalidRecord)
	}
	if r.ExpiresAt.IsZero() {
		return fmt.Errorf("%w: expiry timestamp is required", ErrInvalidRecord)
	}
	if len(r.Companies) == 0 {
		return fmt.Errorf("%w: at least one company membership is required", ErrInvalidRecord)
	}
	if !r.HasCompany(r.CurrentCompanyID) {
		return fmt.Errorf("%w: current company %q is not a membership", ErrInvalidRecord, r.CurrentCompanyID)
	}
	return nil
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.Companies = append([]Membership(nil), r.Companies...)
	out.DepartmentIDs = append([]string(nil), r.DepartmentIDs...)
	return &out
}
