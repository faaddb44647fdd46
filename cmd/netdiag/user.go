package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/RaufunNazin/bnetdiag/internal/auth"
)

func newUserCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}

	var (
		params auth.NewUserParams
		role   string
		area   int64
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a user; a password is generated when --password is empty",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			db, err := openDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("running migrations: %w", err)
			}

			params.Role = auth.Role(role)
			if cmd.Flags().Changed("area") {
				params.AreaID = auth.Int64Ptr(area)
			}

			user, password, err := auth.Provision(cmd.Context(), auth.NewUserRepository(db.DB), params, cliLogger(cfg).Logger)
			if err != nil {
				return fmt.Errorf("creating user: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "created %s (%s, role %s)\n", user.Username, user.ID, user.Role)
			if params.Password == "" {
				fmt.Fprintf(out, "password: %s\n", password)
			}
			return nil
		},
	}
	create.Flags().StringVar(&params.Username, "username", "", "login name")
	create.Flags().StringVar(&params.DisplayName, "display-name", "", "display name")
	create.Flags().StringVar(&params.Password, "password", "", "password (generated when empty)")
	create.Flags().StringVar(&role, "role", string(auth.RoleReseller), "admin, reseller or support")
	create.Flags().Int64Var(&area, "area", 0, "area the user manages")
	//nolint:errcheck // flag is defined above
	create.MarkFlagRequired("username")

	cmd.AddCommand(create)
	return cmd
}
