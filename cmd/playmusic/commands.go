package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"playmusic/internal/core"
	httpserver "playmusic/internal/http"
	"playmusic/internal/playmusic"
	"playmusic/pkg/musiclink"
	"playmusic/pkg/text"
)

// coverFilePermission is the permission for downloaded cover art
const coverFilePermission = 0644

// newService builds the catalog service and restores the saved session, if any.
func newService(ctx context.Context, metrics core.MetricsRecorder) (*playmusic.Service, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	service, err := playmusic.NewService(config, logger.Named("playmusic"), playmusic.Options{Metrics: metrics})
	if err != nil {
		return nil, err
	}

	restored, err := service.Restore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}
	if !restored {
		logger.Warn("No saved session, catalog lookups will fail until you sign in",
			zap.String("tokenPath", config.PlayMusic.TokenPath))
	}

	return service, nil
}

// signedInService is newService for commands that cannot do anything without a session.
func signedInService(ctx context.Context) (*playmusic.Service, error) {
	service, err := newService(ctx, nil)
	if err != nil {
		return nil, err
	}
	if !service.IsAuthenticated() {
		return nil, fmt.Errorf("%w: run `playmusic auth` first", core.ErrNotAuthenticated)
	}
	return service, nil
}

func newResolveCmd() *cobra.Command {
	var fromStdin bool

	cmd := &cobra.Command{
		Use:   "resolve [URL or text...]",
		Short: "Classify Play Music links",
		Long:  "Finds the links in each argument (or standard input with --stdin) and prints their media type and id.",
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs := args
			if fromStdin {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read stdin: %w", err)
				}
				inputs = append(inputs, string(data))
			}
			if len(inputs) == 0 {
				return errors.New("nothing to resolve, pass links or use --stdin")
			}

			extractor := text.NewExtractor()
			var links []string
			for _, input := range inputs {
				links = append(links, extractor.ExtractLinks(input)...)
			}
			if len(links) == 0 {
				return errors.New("no links found")
			}

			manager := musiclink.NewManager()
			out := cmd.OutOrStdout()

			unmatched := 0
			for _, link := range links {
				result := manager.Resolve(link)
				if result == nil {
					unmatched++
					fmt.Fprintf(out, "%s\tno match\n", link)
					continue
				}
				fmt.Fprintf(out, "%s\t%s\t%s\n", link, result.Type, result.ID)
			}

			if unmatched == len(links) {
				return errors.New("no link matched")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "Also read text to scan for links from standard input")

	return cmd
}

func newTrackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "track ID",
		Short: "Show a catalog track",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := signedInService(cmd.Context())
			if err != nil {
				return err
			}

			track, err := service.GetTrack(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printTrack(out, track)
			if track.Album != nil {
				fmt.Fprintf(out, "Album:\t%s (%s)\n", track.Album.Title, track.Album.ID)
			}
			return nil
		},
	}
}

func newAlbumCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "album ID",
		Short: "Show an album and its tracks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := signedInService(cmd.Context())
			if err != nil {
				return err
			}

			album, err := service.GetAlbum(cmd.Context(), args[0], true)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s - %s (%d)\n", album.Artist.Name, album.Title, album.Year)
			fmt.Fprintf(out, "%s tracks, %s\n", humanize.Comma(int64(len(album.Tracks))), formatDuration(totalDuration(album.Tracks)))
			for _, track := range album.Tracks {
				printTrack(out, track)
			}
			return nil
		},
	}
}

func newPlaylistCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "playlist ID",
		Short: "Show one of your playlists by share token or id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := signedInService(cmd.Context())
			if err != nil {
				return err
			}

			playlist, err := service.GetPlaylist(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n", playlist.Title)
			fmt.Fprintf(out, "%s tracks, %s\n", humanize.Comma(int64(len(playlist.Tracks))), formatDuration(totalDuration(playlist.Tracks)))
			for _, track := range playlist.Tracks {
				printTrack(out, track)
			}
			return nil
		},
	}
}

func newStreamCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stream TRACK_ID",
		Short: "Print the download location of a track",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := signedInService(cmd.Context())
			if err != nil {
				return err
			}

			track, err := service.GetTrack(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			file, err := service.GetDownloadableTrack(cmd.Context(), track)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), file.DownloadURL)
			logger.Debug("Resolved stream",
				zap.String("trackID", track.ID),
				zap.String("fileType", file.FileType.String()),
				zap.Int("bitRate", file.BitRate))
			return nil
		},
	}
}

func newCoverCmd() *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "cover ALBUM_ID",
		Short: "Download an album's cover art",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := signedInService(cmd.Context())
			if err != nil {
				return err
			}

			album, err := service.GetAlbum(cmd.Context(), args[0], false)
			if err != nil {
				return err
			}
			if album.Cover == nil {
				return fmt.Errorf("album %s has no cover art", album.ID)
			}

			data, err := album.Cover.Largest(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to download cover art: %w", err)
			}

			if outPath == "" {
				outPath = album.ID + album.Cover.FileType().Extension()
			}
			if err := os.WriteFile(outPath, data, coverFilePermission); err != nil {
				return fmt.Errorf("failed to write cover art: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%s)\n", outPath, humanize.Bytes(uint64(len(data))))
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default is <album id>.jpg)")
	return cmd
}

func newAuthCmd() *cobra.Command {
	var (
		accessToken  string
		refreshToken string
		expiry       string
	)

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Save an OAuth token for later commands",
		Long: `auth stores an already issued OAuth token in the token file. With a refresh
token and PLAYMUSIC_PLAYMUSIC_CLIENT_ID set, the token is refreshed as needed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			token := &oauth2.Token{
				AccessToken:  accessToken,
				RefreshToken: refreshToken,
				TokenType:    "Bearer",
			}
			if expiry != "" {
				parsed, err := time.Parse(time.RFC3339, expiry)
				if err != nil {
					return fmt.Errorf("invalid expiry %q: %w", expiry, err)
				}
				token.Expiry = parsed
			}

			service, err := newService(cmd.Context(), nil)
			if err != nil {
				return err
			}

			err = service.SignIn(cmd.Context(), token, config.PlayMusic.Email, config.PlayMusic.DisplayName, true)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Saved session for %s to %s\n",
				service.Account().DisplayID, config.PlayMusic.TokenPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&accessToken, "access-token", "", "OAuth access token")
	cmd.Flags().StringVar(&refreshToken, "refresh-token", "", "OAuth refresh token")
	cmd.Flags().StringVar(&expiry, "expiry", "", "access token expiry (RFC 3339)")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := os.Remove(config.PlayMusic.TokenPath)
			if err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to remove token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve catalog lookups and metrics over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			metrics := httpserver.NewMetrics()
			service, err := newService(ctx, metrics)
			if err != nil {
				return err
			}

			logger.Info("Starting playmusic",
				zap.String("account", service.Account().DisplayID),
				zap.Bool("signed_in", service.IsAuthenticated()),
				zap.String("stream_quality", string(config.PlayMusic.StreamQuality)))

			server := httpserver.NewServer(&config.Server, service, metrics, logger.Named("http"))

			g, gCtx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return server.Start(gCtx)
			})

			logger.Info("playmusic started successfully",
				zap.String("http_addr", fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)))

			if err := g.Wait(); err != nil {
				logger.Error("playmusic stopped with error", zap.Error(err))
				return err
			}

			logger.Info("playmusic stopped gracefully")
			return nil
		},
	}
}

func printTrack(out io.Writer, track *core.Track) {
	explicit := ""
	if entry, ok := track.Metadata(core.ExplicitMetadataName); ok && entry.Value == "true" {
		explicit = "\t[E]"
	}
	fmt.Fprintf(out, "%d-%02d\t%s\t%s - %s\t%s%s\n",
		track.DiscNumber, track.TrackNumber, track.ID, track.Artist.Name, track.Title,
		formatDuration(track.Duration), explicit)
}

func totalDuration(tracks []*core.Track) time.Duration {
	var total time.Duration
	for _, track := range tracks {
		total += track.Duration
	}
	return total
}

// formatDuration renders a duration as m:ss, or h:mm:ss from an hour up.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	hours := int(d / time.Hour)
	minutes := int(d % time.Hour / time.Minute)
	seconds := int(d % time.Minute / time.Second)
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}
