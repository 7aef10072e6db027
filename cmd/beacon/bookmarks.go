package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/gofrs/uuid/v5"
	"github.com/spf13/cobra"

	"github.com/and161185/safety-beacon/internal/api"
	"github.com/and161185/safety-beacon/internal/convert"
	"github.com/and161185/safety-beacon/internal/errs"
	"github.com/and161185/safety-beacon/internal/model"
	"github.com/and161185/safety-beacon/internal/session"
)

func newBookmarksCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "bookmarks",
		Aliases: []string{"bm"},
		Short:   "Manage the patient's saved places",
	}
	cmd.AddCommand(
		newBookmarksListCmd(st),
		newBookmarksAddCmd(st),
		newBookmarksEditCmd(st),
		newBookmarksRmCmd(st),
	)
	return cmd
}

// requireSession returns the cached session or ErrNoSession.
func requireSession(st *state) (*session.Session, error) {
	s := st.app.manager.Current()
	if s == nil {
		return nil, errs.ErrNoSession
	}
	return s, nil
}

func addressFlags(cmd *cobra.Command, pa *model.PostalAddress) {
	cmd.Flags().StringVar(&pa.Street, "street", "", "street line")
	cmd.Flags().StringVar(&pa.City, "city", "", "city")
	cmd.Flags().StringVar(&pa.Region, "region", "", "province or state")
	cmd.Flags().StringVar(&pa.PostalCode, "postal-code", "", "postal code")
}

func newBookmarksListCmd(st *state) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List saved places",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := requireSession(st)
			if err != nil {
				return err
			}
			ctx, cancel := st.ctx(cmd)
			defer cancel()
			list, ok := st.app.nav.Refresh(ctx, s)
			if !ok {
				return fmt.Errorf("refresh failed")
			}
			if asJSON {
				out := make([]api.Bookmark, 0, len(list))
				for _, b := range list {
					out = append(out, convert.ToAPIBookmark(b))
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tADDRESS")
			for _, b := range list {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", b.ID, b.Name, b.Address)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newBookmarksAddCmd(st *state) *cobra.Command {
	var (
		name string
		pa   model.PostalAddress
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Geocode an address and save it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := requireSession(st)
			if err != nil {
				return err
			}
			ctx, cancel := st.ctx(cmd)
			defer cancel()
			b, ok := st.app.nav.AddBookmark(ctx, s, name, pa)
			if !ok {
				return fmt.Errorf("add failed")
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), b.ID)
			return err
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "bookmark name")
	addressFlags(cmd, &pa)
	return cmd
}

func newBookmarksEditCmd(st *state) *cobra.Command {
	var (
		name string
		pa   model.PostalAddress
	)
	cmd := &cobra.Command{
		Use:   "edit ID",
		Short: "Rename a saved place or change its address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.FromString(args[0])
			if err != nil {
				return fmt.Errorf("bad bookmark id %q: %w", args[0], errs.ErrValidation)
			}
			s, err := requireSession(st)
			if err != nil {
				return err
			}
			ctx, cancel := st.ctx(cmd)
			defer cancel()

			var namePtr *string
			if cmd.Flags().Changed("name") {
				namePtr = &name
			}
			var addrPtr *model.PostalAddress
			if addressChanged(cmd) {
				// unchanged address parts keep their stored values
				cur, err := findBookmark(ctx, st, s, id)
				if err != nil {
					return err
				}
				merged := model.ParsePostalAddress(cur.Address)
				overlay(cmd, "street", &merged.Street, pa.Street)
				overlay(cmd, "city", &merged.City, pa.City)
				overlay(cmd, "region", &merged.Region, pa.Region)
				overlay(cmd, "postal-code", &merged.PostalCode, pa.PostalCode)
				addrPtr = &merged
			}
			if namePtr == nil && addrPtr == nil {
				return fmt.Errorf("nothing to change: %w", errs.ErrValidation)
			}
			b, ok := st.app.nav.EditBookmark(ctx, id, namePtr, addrPtr)
			if !ok {
				return fmt.Errorf("edit failed")
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", b.ID, b.Name, b.Address)
			return err
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new name")
	addressFlags(cmd, &pa)
	return cmd
}

func newBookmarksRmCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:     "rm ID",
		Aliases: []string{"delete"},
		Short:   "Delete a saved place",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.FromString(args[0])
			if err != nil {
				return fmt.Errorf("bad bookmark id %q: %w", args[0], errs.ErrValidation)
			}
			if _, err := requireSession(st); err != nil {
				return err
			}
			ctx, cancel := st.ctx(cmd)
			defer cancel()
			if !st.app.nav.DeleteBookmark(ctx, id) {
				return fmt.Errorf("delete failed")
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return err
		},
	}
}

func addressChanged(cmd *cobra.Command) bool {
	for _, f := range []string{"street", "city", "region", "postal-code"} {
		if cmd.Flags().Changed(f) {
			return true
		}
	}
	return false
}

func overlay(cmd *cobra.Command, flag string, dst *string, v string) {
	if cmd.Flags().Changed(flag) {
		*dst = v
	}
}
