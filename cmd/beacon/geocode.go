package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/and161185/safety-beacon/internal/errs"
	"github.com/and161185/safety-beacon/internal/model"
)

func newGeocodeCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "geocode",
		Short: "Look up addresses and coordinates",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "forward ADDRESS...",
		Short: "Resolve an address to a coordinate",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := st.ctx(cmd)
			defer cancel()
			c := st.app.nav.ForwardGeocode(ctx, strings.Join(args, " "))
			if c == nil {
				return fmt.Errorf("no match: %w", errs.ErrNotFound)
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%.6f,%.6f\n", c.Latitude, c.Longitude)
			return err
		},
	}, &cobra.Command{
		Use:   "reverse LAT LNG",
		Short: "Resolve a coordinate to a postal address",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lat, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("bad latitude %q: %w", args[0], errs.ErrValidation)
			}
			lng, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("bad longitude %q: %w", args[1], errs.ErrValidation)
			}
			ctx, cancel := st.ctx(cmd)
			defer cancel()
			pa := st.app.nav.ReverseGeocode(ctx, model.Coordinate{Latitude: lat, Longitude: lng})
			if pa == nil {
				return fmt.Errorf("no match: %w", errs.ErrNotFound)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), pa.Concat())
			return err
		},
	})
	return cmd
}
