package main

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/pysugar/workspace-mirror/internal/auth"
	"github.com/spf13/cobra"
)

var (
	authProvider string
	authFull     bool
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage OAuth credentials",
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Link a provider account through a local browser flow",
	Long: `Start a loopback callback server and print the consent URL. The
credential is stored against the local user whose email matches the account.

The redirect URL http://127.0.0.1:<port>/oauth-callback must be allowed by the
OAuth client.`,
	RunE: runAuthLogin,
}

func init() {
	authLoginCmd.Flags().StringVar(&authProvider, "provider", "google", "Provider id")
	authLoginCmd.Flags().BoolVar(&authFull, "full", true, "Request the full scope set instead of the base scopes")

	authCmd.AddCommand(authLoginCmd)
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	p, ok := a.registry.Get(authProvider)
	if !ok {
		return fmt.Errorf("unknown provider %q", authProvider)
	}

	flow, err := auth.StartCallbackServer(a.db, p, authFull, a.cfg.Sync.RemoteTimeout.Std())
	if err != nil {
		return err
	}
	defer flow.Close()

	fmt.Println("Open this URL in your browser:")
	fmt.Println()
	fmt.Println("  " + flow.AuthURL)
	fmt.Println()
	log.Info("⏳ Waiting for authorization", "timeout", auth.CallbackTimeout)

	select {
	case res := <-flow.Results:
		if res.Err != nil {
			return res.Err
		}
		if res.Discarded {
			return fmt.Errorf("no local user matches %s; run 'mirror user add --email %s' first", res.Email, res.Email)
		}
		return printResult(res.Credential, fmt.Sprintf("Linked %s account %s", res.Provider, res.Email))
	case <-cmd.Context().Done():
		return cmd.Context().Err()
	}
}
