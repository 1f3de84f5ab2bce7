// Command sessionctl is a terminal client for the session core: it logs
// in against the auth API, keeps the session record in a local file, and
// answers permission questions the way the admin front end would.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"opsdesk.org/internal/authapi"
	"opsdesk.org/internal/session"
	"opsdesk.org/internal/store/file"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

var (
	flagAPI         string
	flagSessionFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "sessionctl",
		Short:         "Manage an opsdesk session from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&flagAPI, "api", defaultAPIURL(), "auth API base URL")
	rootCmd.PersistentFlags().StringVar(&flagSessionFile, "session-file", defaultSessionFile(), "path of the session file")

	rootCmd.AddCommand(
		loginCmd(),
		logoutCmd(),
		whoamiCmd(),
		companiesCmd(),
		useCompanyCmd(),
		refreshCmd(),
		canCmd(),
		headersCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func defaultAPIURL() string {
	if v := os.Getenv("OPSDESK_API_URL"); v != "" {
		return v
	}
	return "http://localhost:8081"
}

func defaultSessionFile() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "opsdesk", "session.json")
	}
	return "session.json"
}

func newManager() (*session.Manager, error) {
	store := file.New(flagSessionFile)
	client := authapi.NewClient(flagAPI)
	return session.NewManager(store, client)
}
