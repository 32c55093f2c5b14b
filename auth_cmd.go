package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/swiftpost/driveconf/internal/auth"
	"github.com/swiftpost/driveconf/internal/tokenstore"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authenticate with Google Drive through the browser",
		RunE:  runLogin,
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the stored access token and cached state",
		RunE:  runLogout,
	}
}

func runLogin(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()
	ctx := cmd.Context()

	if resolvedCfg.Auth.ClientID == "" {
		return fmt.Errorf("no OAuth2 client id configured: set auth.client_id in the config file, " +
			"the DRIVECONF_CLIENT_ID environment variable, or --client-id")
	}

	broker := auth.NewBroker(
		resolvedCfg.Auth.ClientID,
		auth.BrowserClientFactory(openBrowser, nil, logger),
		logger,
	)

	if err := broker.Init(); err != nil {
		return err
	}

	token, err := broker.Connect(ctx)
	if err != nil {
		return err
	}

	tokens := tokenstore.NewFileStore(resolvedCfg.Storage.TokenPath, logger)
	tokens.Set(token)

	logger.Info("login successful")
	statusf("Login successful.\n")

	return nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()

	coord, _, cleanup := buildSession(logger)
	defer cleanup()

	coord.Logout(cmd.Context())

	statusf("Logged out.\n")

	return nil
}
