package cmd

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nhle/obranotify/internal/credential"
)

func newLoginCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "login [token]",
		Short: "Store a session token in the system keyring",
		Long: `Store the platform session token (a JWT) in the system keyring.
The token is read from the argument, or from stdin when omitted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token := ""
			if len(args) == 1 {
				token = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("reading token: %w", err)
				}
				token = line
			}
			token = strings.TrimSpace(token)

			claims, err := credential.ParseClaims(token)
			if err != nil {
				return err
			}
			if claims.Expired(time.Now()) {
				return fmt.Errorf("%w: token expired", credential.ErrNoSession)
			}

			vault, err := e.vault()
			if err != nil {
				return err
			}
			if err := vault.SaveToken(token); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sesión iniciada como %s (%s)\n", claims.UserID, claims.Role)
			return nil
		},
	}
}

func newLogoutCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored token and clear the local cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			vault, err := e.vault()
			if err != nil {
				return err
			}

			// An expired token still names the user whose cache we drop.
			if token, err := vault.Token(); err == nil {
				if claims, err := credential.ParseClaims(token); err == nil {
					if err := e.clearCache(cmd.Context(), claims.UserID); err != nil {
						e.logger.Warn("clearing cache", zap.Error(err))
					}
				}
			}

			if err := vault.DeleteToken(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Sesión cerrada")
			return nil
		},
	}
}

func (e *env) clearCache(ctx context.Context, userID string) error {
	st, err := e.openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	return st.ClearUserNotifications(ctx, userID)
}
