package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/telecare/telecare/internal/config"
	"github.com/telecare/telecare/internal/domain/identity"
	"github.com/telecare/telecare/internal/platform/auth"
	"github.com/telecare/telecare/internal/platform/db"
)

// demoAccounts returns one account per role. Emails are suffixed so the
// command can be run more than once against the same database.
func demoAccounts(suffix string) []*identity.Account {
	return []*identity.Account{
		{
			Email:   fmt.Sprintf("patient+%s@telecare.local", suffix),
			Name:    "Demo Patient",
			Role:    auth.RolePatient,
			Profile: &identity.PatientProfile{},
		},
		{
			Email:   fmt.Sprintf("doctor+%s@telecare.local", suffix),
			Name:    "Demo Doctor",
			Role:    auth.RoleDoctor,
			Profile: &identity.DoctorProfile{Specialty: "General Practice", Location: "Online"},
		},
		{
			Email:   fmt.Sprintf("pharmacist+%s@telecare.local", suffix),
			Name:    "Demo Pharmacist",
			Role:    auth.RolePharmacist,
			Profile: &identity.PharmacistProfile{Pharmacy: "Demo Pharmacy"},
		},
	}
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create one demo account per role and print how to authenticate as each",
		RunE: func(cmd *cobra.Command, args []string) error {
			ttl, _ := cmd.Flags().GetDuration("token-ttl")

			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.DefaultPoolOptions(cfg.DBMaxConns, cfg.DBMinConns))
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := identity.NewService(identity.NewAccountRepoPG(pool), db.NewTxRunner(pool))
			return seed(ctx, os.Stdout, svc, cfg, ttl)
		},
	}
	cmd.Flags().Duration("token-ttl", 24*time.Hour, "Lifetime of the printed tokens")
	return cmd
}

type accountCreator interface {
	CreateAccount(ctx context.Context, a *identity.Account) error
}

func seed(ctx context.Context, w io.Writer, svc accountCreator, cfg *config.Config, ttl time.Duration) error {
	suffix := time.Now().UTC().Format("20060102150405")
	for _, a := range demoAccounts(suffix) {
		if err := svc.CreateAccount(ctx, a); err != nil {
			return fmt.Errorf("create %s account: %w", a.Role, err)
		}

		caller := auth.Caller{ID: a.ID, Role: a.Role}
		if cfg.JWTSecret == "" {
			fmt.Fprintf(w, "%-10s %s  headers: %s=%s %s=%s\n", a.Role, a.Email,
				auth.DevAccountIDHeader, a.ID, auth.DevAccountRoleHeader, a.Role)
			continue
		}
		token, err := auth.IssueToken(jwtConfig(cfg, nil), caller, ttl)
		if err != nil {
			return fmt.Errorf("issue token for %s: %w", a.Email, err)
		}
		fmt.Fprintf(w, "%-10s %s  token: %s\n", a.Role, a.Email, token)
	}
	return nil
}
