// billctl is a terminal client for the Ledgerline billing API. It exists
// mainly to exercise the session subsystem end to end: login, silent
// credential renewal, and authenticated business-data calls.
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/common-nighthawk/go-figure"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ledgerline/ledgerline-go/billing"
	"github.com/ledgerline/ledgerline-go/credentials"
	"github.com/ledgerline/ledgerline-go/federated"
	"github.com/ledgerline/ledgerline-go/internal/config"
	"github.com/ledgerline/ledgerline-go/session"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

type app struct {
	cfg        *config.Config
	controller *session.Controller
	billing    *billing.Service
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "billctl",
		Short:         "Ledgerline billing client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(configPath)
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.AddCommand(
		newLoginCmd(a),
		newCompleteSSOCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newBusinessesCmd(a),
		newInvoicesCmd(a),
	)
	return rootCmd
}

func (a *app) setup(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level)

	store, err := credentials.NewFileStore(cfg.Storage.Dir, cfg.API.BaseURL)
	if err != nil {
		return err
	}

	controller, err := session.NewController(
		cfg.API.BaseURL,
		store,
		session.WithHTTPClient(&http.Client{Timeout: cfg.API.RequestTimeout}),
		session.WithLivenessTimeout(cfg.API.LivenessTimeout),
	)
	if err != nil {
		return err
	}
	a.controller = controller

	a.billing, err = billing.NewService(controller.Client())
	return err
}

func newLoginCmd(a *app) *cobra.Command {
	var email, password string
	var sso bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate with email and password, or start a federated login",
		RunE: func(cmd *cobra.Command, args []string) error {
			figure.NewFigure("Ledgerline", "cybermedium", true).Print()
			fmt.Println()

			if sso {
				return a.printFederatedLoginURL()
			}

			if email == "" || password == "" {
				return errors.New("--email and --password are required unless --sso is set")
			}

			route, err := a.controller.Login(cmd.Context(), session.Credentials{
				Email:    email,
				Password: password,
			})
			if err != nil {
				return err
			}

			fmt.Println("Logged in.")
			if route == session.RouteOnboarding {
				fmt.Println("No business configured yet, finish onboarding in the web app.")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	cmd.Flags().BoolVar(&sso, "sso", false, "print the federated login URL instead")
	return cmd
}

// printFederatedLoginURL builds the provider authorization URL from the
// configured oauth section.
func (a *app) printFederatedLoginURL() error {
	oauthCfg := a.cfg.OAuth
	if oauthCfg == nil {
		return errors.New("no oauth provider configured")
	}

	var provider *federated.Provider
	var err error
	switch oauthCfg.Provider {
	case "google":
		provider, err = federated.Google(oauthCfg.ClientID, oauthCfg.RedirectURL)
	case "github":
		provider, err = federated.GitHub(oauthCfg.ClientID, oauthCfg.RedirectURL)
	default:
		return errors.Errorf("unsupported oauth provider %q", oauthCfg.Provider)
	}
	if err != nil {
		return err
	}

	fmt.Println("Open this URL in a browser to continue:")
	fmt.Println(provider.AuthURL(uuid.New().String()))
	return nil
}

func newCompleteSSOCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sso-complete <payload>",
		Short: "Finish a federated login with the payload handed back by the backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			route, err := a.controller.CompleteFederatedLogin(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Println("Logged in.")
			if route == session.RouteOnboarding {
				fmt.Println("No business configured yet, finish onboarding in the web app.")
			}
			return nil
		},
	}
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.controller.Logout(); err != nil {
				return err
			}
			fmt.Println("Logged out.")
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the authenticated user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.controller.Initialize(cmd.Context()); err != nil {
				return err
			}
			profile, err := a.controller.Profile()
			if err != nil {
				return err
			}

			fmt.Printf("%s <%s>\n", profile.FullName, profile.Email)
			for _, business := range profile.Businesses {
				fmt.Printf("  business: %s (%s)\n", business.Name, business.ID)
			}
			return nil
		},
	}
}

func newBusinessesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "businesses",
		Short: "List your businesses",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.controller.Initialize(cmd.Context()); err != nil {
				return err
			}
			businesses, err := a.billing.Businesses(cmd.Context())
			if err != nil {
				return err
			}
			for _, business := range businesses {
				fmt.Printf("%s\t%s\n", business.ID, business.Name)
			}
			return nil
		},
	}
}

func newInvoicesCmd(a *app) *cobra.Command {
	var businessID string

	cmd := &cobra.Command{
		Use:   "invoices",
		Short: "List invoices for a business",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.controller.Initialize(cmd.Context()); err != nil {
				return err
			}
			invoices, err := a.billing.Invoices(cmd.Context(), businessID)
			if err != nil {
				return err
			}
			for _, invoice := range invoices {
				fmt.Printf("%s\t%s\t%.2f\t%s\n", invoice.Number, invoice.Status, invoice.Total, invoice.ID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&businessID, "business", "", "business ID")
	_ = cmd.MarkFlagRequired("business")
	return cmd
}
