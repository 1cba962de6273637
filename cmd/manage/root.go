package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ErlanBelekov/catalog-access/internal/domain"
	"github.com/ErlanBelekov/catalog-access/internal/repository"
	"github.com/ErlanBelekov/catalog-access/internal/usecase"
)

// NewRootCmd creates the root command of the management CLI.
func NewRootCmd(open depsOpener) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "manage",
		Short:         "Administer catalog-access users and schema",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.AddCommand(newCreateUserCmd(open))
	cmd.AddCommand(newGrantCmd(open))
	cmd.AddCommand(newListUsersCmd(open))
	cmd.AddCommand(NewMigrateCmd())

	return cmd
}

func newCreateUserCmd(open depsOpener) *cobra.Command {
	var (
		fullAccess bool
		inactive   bool
		packages   []string
	)
	cmd := &cobra.Command{
		Use:   "create-user EMAIL",
		Short: "Create or update a user",
		Long: `Create a user or update an existing one. --full-access is never revoked
by a later call; --package adds grants and never removes them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			email := domain.NormalizeEmail(args[0])
			if email == "" {
				return errors.New("email is required")
			}

			d, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer d.close()

			ids := domain.NormalizePackageIDs(packages)
			if err := validatePackages(d.catalog, ids); err != nil {
				return err
			}

			user, err := d.users.Upsert(cmd.Context(), repository.UpsertUserInput{
				Email:      email,
				FullAccess: fullAccess,
				IsActive:   !inactive,
				PackageIDs: ids,
			})
			if err != nil {
				return fmt.Errorf("upsert user %s: %w", email, err)
			}
			printUsers(cmd.OutOrStdout(), user)
			return nil
		},
	}
	cmd.Flags().BoolVar(&fullAccess, "full-access", false, "grant access to every package")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "mark the user inactive")
	cmd.Flags().StringArrayVar(&packages, "package", nil, "package id to grant (repeatable)")
	return cmd
}

func newGrantCmd(open depsOpener) *cobra.Command {
	var packages []string
	cmd := &cobra.Command{
		Use:   "grant EMAIL",
		Short: "Grant packages the way a payment webhook would",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer d.close()

			ids := domain.NormalizePackageIDs(packages)
			if err := validatePackages(d.catalog, ids); err != nil {
				return err
			}

			uc := usecase.NewEntitlementUsecase(d.users, d.catalog, d.logger)
			user, err := uc.ApplyGrant(cmd.Context(), args[0], ids)
			if errors.Is(err, domain.ErrNothingToGrant) {
				return errors.New("at least one --package is required")
			}
			if err != nil {
				return err
			}
			printUsers(cmd.OutOrStdout(), user)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&packages, "package", nil, "package id to grant (repeatable)")
	return cmd
}

func newListUsersCmd(open depsOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "list-users",
		Short: "Print existing users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer d.close()

			users, err := d.users.List(cmd.Context())
			if err != nil {
				return err
			}
			printUsers(cmd.OutOrStdout(), users...)
			return nil
		},
	}
}

func validatePackages(cat packageValidator, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if cat == nil {
		return domain.ErrCatalogUnavailable
	}
	unknown, err := cat.ValidateIDs(ids)
	if err != nil {
		return fmt.Errorf("invalid catalog configuration: %w", err)
	}
	if len(unknown) > 0 {
		return fmt.Errorf("unknown package ids: %s", strings.Join(unknown, ", "))
	}
	return nil
}

func printUsers(out io.Writer, users ...*domain.User) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tEMAIL\tFULL_ACCESS\tACTIVE\tPACKAGES")
	for _, u := range users {
		pkgs := strings.Join(u.Packages, ",")
		if pkgs == "" {
			pkgs = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%t\t%s\n", u.ID, u.Email, u.FullAccess, u.IsActive, pkgs)
	}
	_ = tw.Flush()
}
