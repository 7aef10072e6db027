package main

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"github.com/spf13/cobra"

	"github.com/and161185/safety-beacon/internal/errs"
	"github.com/and161185/safety-beacon/internal/model"
	"github.com/and161185/safety-beacon/internal/session"
)

func newNavigateCmd(st *state) *cobra.Command {
	var lat, lng float64
	cmd := &cobra.Command{
		Use:   "navigate ID",
		Short: "Resolve a saved place and print the destination marker",
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

			b, err := findBookmark(ctx, st, s, id)
			if err != nil {
				return err
			}
			var from *model.Coordinate
			latSet, lngSet := cmd.Flags().Changed("from-lat"), cmd.Flags().Changed("from-lng")
			if latSet != lngSet {
				return fmt.Errorf("--from-lat and --from-lng go together: %w", errs.ErrValidation)
			}
			if latSet {
				from = &model.Coordinate{Latitude: lat, Longitude: lng}
			}
			a, ok := st.app.nav.NavigateTo(ctx, b, from)
			if !ok {
				return fmt.Errorf("navigate failed")
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "title:\t%s\n", a.Title)
			if a.HasDistance {
				fmt.Fprintf(out, "distance:\t%s\n", a.Subtitle)
			}
			_, err = fmt.Fprintf(out, "at:\t%.6f,%.6f\n", a.Coordinate.Latitude, a.Coordinate.Longitude)
			return err
		},
	}
	cmd.Flags().Float64Var(&lat, "from-lat", 0, "current latitude")
	cmd.Flags().Float64Var(&lng, "from-lng", 0, "current longitude")
	return cmd
}

// findBookmark refreshes the owner's bookmarks and picks id out of them.
func findBookmark(ctx context.Context, st *state, s *session.Session, id uuid.UUID) (model.Bookmark, error) {
	list, ok := st.app.nav.Refresh(ctx, s)
	if !ok {
		return model.Bookmark{}, fmt.Errorf("refresh failed")
	}
	for _, b := range list {
		if b.ID == id {
			return b, nil
		}
	}
	return model.Bookmark{}, fmt.Errorf("bookmark %s: %w", id, errs.ErrNotFound)
}
