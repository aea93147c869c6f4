package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"uptimeboard/internal/models"
	"uptimeboard/internal/services"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log into the backend and store the credentials",
	RunE:  runLogin,
}

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account and store the credentials",
	RunE:  runSignup,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Log out and forget the stored credentials",
	RunE:  runLogout,
}

var changePasswordCmd = &cobra.Command{
	Use:   "change-password",
	Short: "Change the account password",
	RunE:  runChangePassword,
}

var viewerTokenCmd = &cobra.Command{
	Use:   "viewer-token [name]",
	Short: "Issue a token for a dashboard viewer",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runViewerToken,
}

var stdin = bufio.NewReader(os.Stdin)

var (
	accountEmail    string
	accountPassword string
	accountName     string
)

func init() {
	for _, cmd := range []*cobra.Command{loginCmd, signupCmd} {
		cmd.Flags().StringVar(&accountEmail, "email", "", "Account email")
		cmd.Flags().StringVar(&accountPassword, "password", "", "Account password (will prompt if not provided)")
		cmd.MarkFlagRequired("email")
	}
	signupCmd.Flags().StringVar(&accountName, "name", "", "Display name")
}

func runLogin(cmd *cobra.Command, args []string) error {
	_, store, api, err := openClient()
	if err != nil {
		return err
	}
	defer store.Close()

	password, err := passwordOrPrompt(accountPassword, "Password: ")
	if err != nil {
		return err
	}
	res, err := api.Login(cmd.Context(), accountEmail, password)
	if err != nil {
		return err
	}
	if err := store.SaveAuth(res); err != nil {
		return err
	}
	fmt.Printf("Logged in as %s\n", displayUser(res.User, accountEmail))
	return nil
}

func runSignup(cmd *cobra.Command, args []string) error {
	_, store, api, err := openClient()
	if err != nil {
		return err
	}
	defer store.Close()

	password, err := passwordOrPrompt(accountPassword, "Password: ")
	if err != nil {
		return err
	}
	res, err := api.Signup(cmd.Context(), models.SignupRequest{
		Email:    accountEmail,
		Password: password,
		Name:     accountName,
	})
	if err != nil {
		return err
	}
	if err := store.SaveAuth(res); err != nil {
		return err
	}
	fmt.Printf("Account created for %s\n", displayUser(res.User, accountEmail))
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	_, store, api, err := openClient()
	if err != nil {
		return err
	}
	defer store.Close()

	if !store.IsAuthenticated() {
		fmt.Println("Not logged in")
		return nil
	}
	if err := api.Logout(cmd.Context()); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: backend logout failed: %v\n", err)
	}
	if err := store.Clear(); err != nil {
		return err
	}
	fmt.Println("Logged out")
	return nil
}

func runChangePassword(cmd *cobra.Command, args []string) error {
	_, store, api, err := openClient()
	if err != nil {
		return err
	}
	defer store.Close()

	if !store.IsAuthenticated() {
		return services.ErrNotAuthenticated
	}
	current, err := passwordOrPrompt("", "Current password: ")
	if err != nil {
		return err
	}
	next, err := passwordOrPrompt("", "New password: ")
	if err != nil {
		return err
	}
	confirm, err := passwordOrPrompt("", "Confirm new password: ")
	if err != nil {
		return err
	}
	if next != confirm {
		return fmt.Errorf("passwords do not match")
	}
	if err := api.ChangePassword(cmd.Context(), current, next); err != nil {
		return err
	}
	fmt.Println("Password changed")
	return nil
}

func runViewerToken(cmd *cobra.Command, args []string) error {
	cfg, store, _, err := openClient()
	if err != nil {
		return err
	}
	defer store.Close()

	name := "viewer"
	if len(args) == 1 {
		name = args[0]
	}
	secret, err := store.ViewerSecret()
	if err != nil {
		return err
	}
	auth, err := services.NewViewerAuth(secret, 0)
	if err != nil {
		return err
	}
	token, expiry, err := auth.GenerateToken(name)
	if err != nil {
		return err
	}

	fmt.Printf("Token:   %s\n", token)
	fmt.Printf("Expires: %s\n", expiry.Format("2006-01-02 15:04"))
	fmt.Printf("Stream:  ws://%s/ws?token=%s\n", cfg.ListenAddr(), token)
	return nil
}

func passwordOrPrompt(given, prompt string) (string, error) {
	if given != "" {
		return given, nil
	}
	fmt.Print(prompt)
	if term.IsTerminal(int(syscall.Stdin)) {
		raw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return string(raw), nil
	}
	line, err := stdin.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func displayUser(u *models.User, fallback string) string {
	if u == nil {
		return fallback
	}
	if u.Name != "" {
		return fmt.Sprintf("%s <%s>", u.Name, u.Email)
	}
	return u.Email
}
