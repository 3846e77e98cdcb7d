package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mintflip/internal/playback"
	"mintflip/internal/track"
)

const listenTick = 250 * time.Millisecond

func newListenCmd(a *app) *cobra.Command {
	var trackLength time.Duration

	cmd := &cobra.Command{
		Use:   "listen ID [ID...]",
		Short: "Play tracks in order, recording each play",
		Long: "Plays the first track and queues the rest. Playback is simulated:\n" +
			"each track runs for --length, then the session advances.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if trackLength <= 0 {
				return fmt.Errorf("--length must be positive, got %s", trackLength)
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			tracks := make([]track.Track, 0, len(args))
			for _, raw := range args {
				id, err := parseID(raw)
				if err != nil {
					return err
				}
				t, err := a.catalog.Get(ctx, id)
				if err != nil {
					return fmt.Errorf("track %d: %w", id, err)
				}
				tracks = append(tracks, t)
			}

			session := playback.NewSession(playback.WithReporter(a.catalog))
			var lastID int64
			session.OnChange(func(st playback.State) {
				if st.Current == nil || st.Current.ID == lastID {
					return
				}
				lastID = st.Current.ID
				fmt.Fprintf(out, "Now playing: %s by %s (%d queued)\n", st.Current.Title, st.Current.Artist, len(st.Queue))
			})

			for _, t := range tracks[1:] {
				session.AddToQueue(t)
			}
			session.PlayTrack(ctx, tracks[0])

			ticker := time.NewTicker(listenTick)
			defer ticker.Stop()
			for session.Snapshot().Status() == playback.Playing {
				select {
				case <-ctx.Done():
					session.PauseTrack()
					return ctx.Err()
				case <-ticker.C:
				}
				st := session.Snapshot()
				if st.Current == nil {
					break
				}
				session.Progress(ctx, st.Position+listenTick, trackLength)
			}

			fmt.Fprintf(out, "Finished playing %d track(s).\n", len(tracks))
			return nil
		},
	}
	cmd.Flags().DurationVar(&trackLength, "length", 3*time.Second, "simulated length of each track")
	return cmd
}
