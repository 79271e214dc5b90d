package main

import (
	"fmt"
	"strings"

	"github.com/pysugar/workspace-mirror/internal/db"
	"github.com/spf13/cobra"
)

var (
	userEmail string
	userName  string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage local users",
}

var userAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a local user",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		user, err := db.CreateUser(a.db, userEmail, userName)
		if err != nil {
			return err
		}
		return printResult(user, fmt.Sprintf("Created user %s (%s)", user.Email, user.ID))
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List local users and their linked providers",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		users, err := db.ListUsers(a.db)
		if err != nil {
			return err
		}

		var b strings.Builder
		for _, u := range users {
			linked := make([]string, 0, len(u.Credentials))
			for _, c := range u.Credentials {
				linked = append(linked, c.Provider)
			}
			fmt.Fprintf(&b, "%s  %-30s  %s\n", u.ID, u.Email, strings.Join(linked, ","))
		}
		return printResult(users, strings.TrimRight(b.String(), "\n"))
	},
}

func init() {
	userAddCmd.Flags().StringVar(&userEmail, "email", "", "User email (matches the OAuth account email)")
	userAddCmd.Flags().StringVar(&userName, "name", "", "Display name")
	userAddCmd.MarkFlagRequired("email")

	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userListCmd)
}
