package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/opsconsole/internal/auth"
)

const passwordEnv = "OPSCONSOLE_PASSWORD"

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store the session token",
	Long: `Exchange admin credentials for an access token and store it in the
configured token file. Later commands and the dashboard send it as a
bearer token until it expires or the backend rejects it.

The password is taken from --password, then from $OPSCONSOLE_PASSWORD, and
otherwise read from the first line of standard input.

Example:
  opsconsole login --id admin
  echo "$PASSWORD" | opsconsole login --id admin`,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session token",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv(cmd)
		if err != nil {
			return err
		}
		if err := e.tokens.Clear(); err != nil {
			return fmt.Errorf("failed to remove token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
		return nil
	},
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Show the stored session and its remaining lifetime",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv(cmd)
		if err != nil {
			return err
		}
		printSession(cmd.OutOrStdout(), e.tokens)
		return nil
	},
}

func init() {
	loginCmd.Flags().String("id", "", "admin login id (required)")
	loginCmd.Flags().String("password", "", "admin password")
	_ = loginCmd.MarkFlagRequired("id")

	rootCmd.AddCommand(loginCmd, logoutCmd, sessionCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}

	id, _ := cmd.Flags().GetString("id")
	password, _ := cmd.Flags().GetString("password")
	if password == "" {
		password = os.Getenv(passwordEnv)
	}
	if password == "" {
		if password, err = readLine(cmd.InOrStdin()); err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
	}

	res, err := e.api().Login(cmd.Context(), id, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	if err := e.tokens.Save(res.AccessToken); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}

	e.logger.Debug("session token stored", "token_file", e.tokens.Path())
	printSession(cmd.OutOrStdout(), e.tokens)
	return nil
}

func printSession(out io.Writer, tokens *auth.Store) {
	if tokens.Token() == "" {
		fmt.Fprintln(out, "Not logged in.")
		return
	}
	fmt.Fprintf(out, "Logged in, session expires in %s (%s).\n",
		tokens.Remaining(), tokens.Expiry().Local().Format(time.DateTime))
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("empty password")
	}
	return line, nil
}
