package cli

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/bizledger/internal/client/config"
	"github.com/dmitrijs2005/bizledger/internal/logging"
	"github.com/spf13/cobra"
)

// rootState is filled by the root's PersistentPreRunE and read by the
// subcommands.
type rootState struct {
	configPath string
	serverURL  string
	timeout    time.Duration
	app        *App
}

// NewRootCmd builds the command tree. Without a subcommand it starts the
// interactive shell.
func NewRootCmd(version, buildDate string) *cobra.Command {
	st := &rootState{}
	root := &cobra.Command{
		Use:           "bizledger",
		Short:         "bizledger sales ledger CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return st.init(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return st.app.Run(cmd.Context())
		},
	}
	root.PersistentFlags().StringVarP(&st.configPath, "config", "c", "", "JSON config file")
	root.PersistentFlags().StringVar(&st.serverURL, "server", "", "Server base URL (overrides config)")
	root.PersistentFlags().DurationVar(&st.timeout, "timeout", 0, "Per-call timeout (overrides config)")

	root.AddCommand(newVersionCmd(version, buildDate))
	root.AddCommand(newShellCmd(st))
	root.AddCommand(newSignupCmd(st))
	root.AddCommand(newCheckCmd(st))
	root.AddCommand(newOrderCmd(st))
	return root
}

func (st *rootState) init(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig(st.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("server") {
		cfg.ServerBaseURL = st.serverURL
	}
	if cmd.Flags().Changed("timeout") {
		cfg.CallTimeout = st.timeout
	}
	l := logging.NewJSONLogger(cmd.ErrOrStderr(), "error")
	st.app = NewApp(cfg, cmd.InOrStdin(), cmd.OutOrStdout(), l)
	return nil
}

func newVersionCmd(version, buildDate string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version info",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "bizledger %s (%s)\n", version, buildDate)
		},
	}
}

func newShellCmd(st *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start the interactive shell",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return st.app.Run(cmd.Context())
		},
	}
}

func newSignupCmd(st *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return st.app.Signup(cmd.Context())
		},
	}
}

func newCheckCmd(st *rootState) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Log in and show the authenticated user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := st.login(cmd, email); err != nil {
				return err
			}
			return st.app.Check(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email (prompted when empty)")
	return cmd
}

func newOrderCmd(st *rootState) *cobra.Command {
	var email string
	cmd := &cobra.Command{Use: "order", Short: "Sales order commands"}
	cmd.PersistentFlags().StringVar(&email, "email", "", "Account email (prompted when empty)")

	var file string
	submit := &cobra.Command{
		Use:   "submit",
		Short: "Submit a sales order from a JSON file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := st.login(cmd, email); err != nil {
				return err
			}
			return st.app.SubmitOrder(cmd.Context(), file)
		},
	}
	submit.Flags().StringVarP(&file, "file", "f", "", "Order JSON file")
	_ = submit.MarkFlagRequired("file")

	get := &cobra.Command{
		Use:   "get <buyer_id> <order_date>",
		Short: "Show the order of a buyer on a day",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := st.login(cmd, email); err != nil {
				return err
			}
			return st.app.GetOrder(cmd.Context(), args[0], args[1])
		},
	}

	cmd.AddCommand(submit, get)
	return cmd
}

func (st *rootState) login(cmd *cobra.Command, email string) error {
	if email == "" {
		return st.app.Login(cmd.Context())
	}
	return st.app.LoginAs(cmd.Context(), email)
}
