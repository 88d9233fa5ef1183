package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"runwayscraper/pkg/auth"
)

// authCmd groups session credential management subcommands.
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage stored session credentials",
	Long: `Store, list, and remove the session cookie used for pages behind a login.

Credentials are kept in the system keychain when one is available, falling
back to an encrypted file in the user config directory. Most of the archive
is reachable anonymously; a session is only needed for gated slideshows.`,
}

var authLoginCmd = &cobra.Command{
	Use:   "login [profile]",
	Short: "Store a session cookie under a profile name",
	Long: `Prompt for a session cookie and store it under the given profile name
(default "default").

To find the cookie, open the publication's site in a browser while logged
in, open the developer tools, and copy the session cookie from the request
headers as a single name=value pair.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAuthLogin,
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout <profile>",
	Short: "Remove a stored profile",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuthLogout,
}

var authListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored profiles with masked credentials",
	Args:  cobra.NoArgs,
	RunE:  runAuthList,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authListCmd)
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	name := "default"
	if len(args) > 0 {
		name = strings.TrimSpace(args[0])
	}
	if name == "" {
		return fmt.Errorf("profile name is required")
	}

	reader := bufio.NewReader(os.Stdin)

	if existing, _ := manager.Retrieve(name); existing != nil {
		fmt.Printf("Profile '%s' already exists. Update it? (y/N): ", name)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return nil
		}
	}

	var cookie string
	for {
		fmt.Print("Session cookie (name=value, hidden as you type): ")
		cookie, err = readSecret()
		if err != nil {
			return fmt.Errorf("failed to read session cookie: %w", err)
		}
		if cookie == "" || !strings.Contains(cookie, "=") {
			fmt.Println("\nThat doesn't look like a cookie. Expected a single name=value pair.")
			fmt.Print("Try again? (Y/n): ")
			retry, _ := reader.ReadString('\n')
			if strings.EqualFold(strings.TrimSpace(retry), "n") {
				return fmt.Errorf("login aborted")
			}
			continue
		}
		break
	}

	fmt.Print("User agent (blank to keep the default): ")
	userAgent, _ := reader.ReadString('\n')

	profile := &auth.Profile{
		Name:          name,
		SessionCookie: cookie,
		UserAgent:     strings.TrimSpace(userAgent),
	}
	if err := manager.Store(profile); err != nil {
		return fmt.Errorf("failed to store profile: %w", err)
	}

	fmt.Printf("\nProfile '%s' stored.\n", name)
	fmt.Println("Use it with: runwayscraper scrape --profile " + name)
	return nil
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	name := strings.TrimSpace(args[0])
	if err := manager.Delete(name); err != nil {
		return fmt.Errorf("failed to remove profile '%s': %w", name, err)
	}

	fmt.Printf("Profile '%s' removed.\n", name)
	return nil
}

func runAuthList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	profiles, err := manager.List()
	if err != nil {
		return fmt.Errorf("failed to list profiles: %w", err)
	}

	if len(profiles) == 0 {
		fmt.Println("No stored profiles.")
		fmt.Println("Store one with 'runwayscraper auth login'.")
		return nil
	}

	fmt.Println("Stored profiles:")
	for _, p := range profiles {
		masked := auth.Sanitize(p)
		fmt.Printf("  %-16s cookie=%s", masked.Name, masked.SessionCookie)
		if !p.LastModified.IsZero() {
			fmt.Printf("  (modified %s)", p.LastModified.Format("2006-01-02 15:04"))
		}
		fmt.Println()
	}
	return nil
}

// readSecret reads a line from stdin without echoing when attached to a
// terminal, falling back to a plain read otherwise.
func readSecret() (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		secret, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(secret)), nil
		}
	}

	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
