package main

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"opsdesk.org/internal/rbac"
)

var errNotLoggedIn = errors.New("not logged in")

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := newManager()
			if err != nil {
				return err
			}
			rec := mgr.GetAuth()
			if rec == nil {
				return errNotLoggedIn
			}

			fmt.Printf("User:    %s (%s)\n", rec.Name, rec.Email)
			if m, ok := rec.CurrentMembership(); ok {
				fmt.Printf("Company: %s (%s)\n", m.CompanyName, m.Role)
			}
			fmt.Printf("Expires: %s\n", rec.ExpiresAt.Local().Format(time.RFC3339))
			if mgr.NeedsRefresh() {
				fmt.Println("Token is near expiry; run `sessionctl refresh`")
			}
			return nil
		},
	}
}

func companiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "companies",
		Short: "List company memberships",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := newManager()
			if err != nil {
				return err
			}
			rec := mgr.GetAuth()
			if rec == nil {
				return errNotLoggedIn
			}

			current := mgr.CurrentCompanyID()
			for _, m := range rec.Companies {
				marker := " "
				if m.CompanyID == current {
					marker = "*"
				}
				fmt.Printf("%s %s  %s (%s)\n", marker, m.CompanyID, m.CompanyName, m.Role)
			}
			return nil
		},
	}
}

func useCompanyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use-company <company-id>",
		Short: "Switch the active company",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := newManager()
			if err != nil {
				return err
			}
			rec := mgr.GetAuth()
			if rec == nil {
				return errNotLoggedIn
			}
			if !rec.HasCompany(args[0]) {
				return fmt.Errorf("no membership in company %q", args[0])
			}

			mgr.SetCurrentCompanyID(args[0])
			if m, ok := mgr.GetAuth().CurrentMembership(); ok {
				fmt.Printf("Switched to %s (%s)\n", m.CompanyName, m.Role)
			}
			return nil
		},
	}
}

func refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Exchange the refresh token for a new access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := newManager()
			if err != nil {
				return err
			}
			if !mgr.RefreshAccessToken(cmd.Context()) {
				return errors.New("refresh failed; log in again")
			}
			rec := mgr.GetAuth()
			if rec == nil {
				return errNotLoggedIn
			}
			fmt.Printf("Token refreshed, expires %s\n", rec.ExpiresAt.Local().Format(time.RFC3339))
			return nil
		},
	}
}

func canCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "can <action> <resource>",
		Short: "Check a permission in the active company (exit 1 when denied)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			action, ok := rbac.ParseAction(args[0])
			if !ok {
				return fmt.Errorf("unknown action %q", args[0])
			}
			resource, ok := rbac.ParseResource(args[1])
			if !ok {
				return fmt.Errorf("unknown resource %q", args[1])
			}

			mgr, err := newManager()
			if err != nil {
				return err
			}
			if !mgr.IsAuthenticated() {
				return errNotLoggedIn
			}
			if !mgr.HasPermission(action, resource) {
				return fmt.Errorf("denied: %s %s", action, resource)
			}
			fmt.Printf("allowed: %s %s\n", action, resource)
			return nil
		},
	}
}

func headersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "headers",
		Short: "Print the request headers the session would send",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := newManager()
			if err != nil {
				return err
			}
			headers := mgr.AuthHeaders()
			keys := make([]string, 0, len(headers))
			for k := range headers {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("%s: %s\n", k, headers[k])
			}
			return nil
		},
	}
}
