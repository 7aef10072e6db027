package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/and161185/safety-beacon/internal/errs"
	"github.com/and161185/safety-beacon/internal/model"
	"github.com/and161185/safety-beacon/internal/session"
)

func credentialFlags(cmd *cobra.Command, c *model.Credentials) {
	cmd.Flags().StringVarP(&c.Email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&c.Password, "password", "p", "", "password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
}

func newRegisterCmd(st *state) *cobra.Command {
	var c model.Credentials
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := st.ctx(cmd)
			defer cancel()
			if !st.app.manager.Register(ctx, c) {
				return fmt.Errorf("register failed")
			}
			return printSession(cmd.OutOrStdout(), st.app.manager.Current())
		},
	}
	credentialFlags(cmd, &c)
	return cmd
}

func newLoginCmd(st *state) *cobra.Command {
	var c model.Credentials
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and cache the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := st.ctx(cmd)
			defer cancel()
			if !st.app.manager.Login(ctx, c) {
				return fmt.Errorf("login failed")
			}
			return printSession(cmd.OutOrStdout(), st.app.manager.Current())
		},
	}
	credentialFlags(cmd, &c)
	return cmd
}

func newLogoutCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and drop the cached session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := st.ctx(cmd)
			defer cancel()
			if !st.app.manager.Logout(ctx) {
				return fmt.Errorf("logout failed")
			}
			st.app.nav.Clear()
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return err
		},
	}
}

func newWhoamiCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the cached session and its link",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := st.app.manager.Current()
			if s == nil {
				return errs.ErrNoSession
			}
			ctx, cancel := st.ctx(cmd)
			defer cancel()
			select {
			case <-st.app.manager.Prefetched():
			case <-ctx.Done():
			}
			if err := printSession(cmd.OutOrStdout(), s); err != nil {
				return err
			}
			rel, ok := st.app.manager.Relationship()
			if !ok || rel.Ref == nil {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "linked:\tnone (run `beacon link`)")
				return err
			}
			other := rel.Ref.String()
			if rel.State == session.RefResolved {
				other = rel.Account.Email
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "linked:\t%s (%s)\n", other, rel.State)
			return err
		},
	}
}

func newLinkCmd(st *state) *cobra.Command {
	var patientEmail string
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Link the signed-in caretaker to a patient account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := st.ctx(cmd)
			defer cancel()
			if !st.app.manager.Link(ctx, patientEmail) {
				return fmt.Errorf("link failed")
			}
			return printSession(cmd.OutOrStdout(), st.app.manager.Current())
		},
	}
	cmd.Flags().StringVar(&patientEmail, "patient", "", "patient account email")
	_ = cmd.MarkFlagRequired("patient")
	return cmd
}

func printSession(w io.Writer, s *session.Session) error {
	if s == nil {
		return errs.ErrNoSession
	}
	_, err := fmt.Fprintf(w, "account:\t%s\nemail:\t%s\nrole:\t%s\n", s.ID(), s.Email(), s.Role())
	return err
}
