package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"mintflip/internal/catalog"
	"mintflip/internal/track"
)

func newTracksCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tracks",
		Short: "Browse the track catalog",
	}

	var q catalog.Query
	list := &cobra.Command{
		Use:   "list",
		Short: "List tracks, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tracks, err := a.catalog.List(cmd.Context(), q)
			if err != nil {
				return err
			}
			return printTracks(cmd.OutOrStdout(), tracks)
		},
	}
	list.Flags().IntVar(&q.Limit, "limit", catalog.DefaultLimit, "page size")
	list.Flags().IntVar(&q.Offset, "offset", 0, "rows to skip")
	list.Flags().StringVar(&q.Genre, "genre", "", "only this genre")

	get := &cobra.Command{
		Use:   "get ID",
		Short: "Show one track",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid track id %q", args[0])
			}
			t, err := a.catalog.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s by %s\n", t.Title, t.Artist)
			fmt.Fprintf(w, "  price:   %s\n", t.Price.Display(4))
			fmt.Fprintf(w, "  license: %s\n", t.License)
			fmt.Fprintf(w, "  plays:   %d\n", t.PlayCount)
			if t.AudioURI != "" {
				fmt.Fprintf(w, "  audio:   %s\n", t.AudioURI)
			}
			if t.ImageURI != "" {
				fmt.Fprintf(w, "  cover:   %s\n", t.ImageURI)
			}
			if t.Description != "" {
				fmt.Fprintf(w, "\n%s\n", t.Description)
			}
			return nil
		},
	}

	owned := &cobra.Command{
		Use:   "owned [ADDRESS]",
		Short: "List tracks owned by a wallet (default: the connected wallet)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			address := a.wallet
			if len(args) == 1 {
				address = args[0]
			}
			tracks, err := a.catalog.ByOwner(cmd.Context(), address)
			if err != nil {
				return err
			}
			return printTracks(cmd.OutOrStdout(), tracks)
		},
	}

	cmd.AddCommand(list, get, owned)
	return cmd
}

func printTracks(out io.Writer, tracks []track.Track) error {
	if len(tracks) == 0 {
		fmt.Fprintln(out, "No tracks found.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tARTIST\tGENRE\tPRICE\tLICENSE\tPLAYS")
	for _, t := range tracks {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%d\n", t.ID, t.Title, t.Artist, t.Genre, t.Price.Display(4), t.License, t.PlayCount)
	}
	return w.Flush()
}
