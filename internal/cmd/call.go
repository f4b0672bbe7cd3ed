package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/techie-mohit/videoCalling/internal/call"
	"github.com/techie-mohit/videoCalling/internal/callerr"
	"github.com/techie-mohit/videoCalling/internal/config"
	"github.com/techie-mohit/videoCalling/internal/media"
	"github.com/techie-mohit/videoCalling/internal/peer"
	"github.com/techie-mohit/videoCalling/internal/protocol"
	"github.com/techie-mohit/videoCalling/internal/ui"
)

var (
	flagAudioOnly bool
	flagAudioFile string
	flagVideoFile string
)

var callCmd = &cobra.Command{
	Use:     "call [room-id|url]",
	Aliases: []string{"c", "join"},
	Short:   "Join a call room",
	Long: `Join a call room and talk to whoever else joins it. Without a room ID the
server suggests a fresh one that you can share.

Local media comes from an Ogg/Opus file and an IVF/VP8 file. Without files,
silence is sent and the camera stays dark.

Examples:
  warpcall call
  warpcall call calm-river-tiny-fox
  warpcall call --audio calm-river-tiny-fox
  warpcall call https://warpcall.example.com/room/calm-river-tiny-fox
  warpcall call --audio-file voice.ogg --video-file camera.ivf`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mod := protocol.Video
		if flagAudioOnly {
			mod = protocol.Audio
		}

		var roomID string
		if len(args) == 1 {
			var err error
			if roomID, mod, err = parseRoomInput(args[0], mod); err != nil {
				return err
			}
		}
		return joinCall(cmd.Context(), roomID, mod)
	},
}

func joinCall(ctx context.Context, roomID string, mod protocol.Modality) error {
	opts := flags
	opts.AudioFile = flagAudioFile
	opts.VideoFile = flagVideoFile
	cfg, err := LoadConfig(opts)
	if err != nil {
		return err
	}

	fmt.Println()
	stopSpinner := ui.RunConnectionSpinner("Connecting to server...")
	defer stopSpinner()
	conn, err := NewConnectionContext(ctx, cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	if roomID == "" {
		if roomID, err = conn.API.SuggestRoom(ctx); err != nil {
			return callerr.Wrap("suggest room", err, "pass a room ID instead")
		}
	}

	iceServers, err := conn.ICEServers(ctx)
	if err != nil {
		return err
	}
	stopSpinner()
	ui.PrintSuccess("Connected to " + cfg.Domain)

	factory := peer.NewFactory(iceServers, cfg.ForceRelay || config.RestrictedNetwork())
	acquirer := media.NewAcquirer(&media.FileOpener{
		AudioFile: cfg.AudioFile,
		VideoFile: cfg.VideoFile,
	}, media.Constraints{Video: mod == protocol.Video})

	controller, err := call.NewController(call.Options{
		RoomID:      roomID,
		Modality:    mod,
		Identity:    cfg.Email,
		Name:        cfg.Name,
		SettleDelay: cfg.SettleDelay,
	}, conn.Client, factory, acquirer)
	if err != nil {
		return callerr.New("create session", err)
	}

	fmt.Println(ui.NewRoomInfo(roomID, cfg.RoomLink(roomID, mod), mod).View())

	go logServerErrors(conn)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	incoming := conn.Handler.Subscribe(mod)
	result := make(chan error, 1)
	go func() {
		result <- controller.Run(runCtx, incoming)
	}()

	summary, uiErr := ui.RunCall(controller)
	cancel()
	runErr := <-result

	if uiErr != nil {
		log.Error().Err(uiErr).Msg("call screen failed")
	}

	switch {
	case errors.Is(runErr, callerr.ErrRoomFull):
		return runErr
	case runErr != nil:
		ui.PrintWarning(runErr.Error())
	}

	fmt.Println()
	ui.RenderCallSummary(summary)
	return nil
}

func logServerErrors(conn *ConnectionContext) {
	for msg := range conn.Handler.Errors {
		log.Warn().Str("error", msg).Msg("server error")
	}
}

// parseRoomInput accepts a bare room ID or a room link copied from the web
// app. An /audio/ link switches to an audio call.
func parseRoomInput(input string, mod protocol.Modality) (string, protocol.Modality, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", mod, fmt.Errorf("room ID cannot be empty")
	}

	if !strings.Contains(input, "://") {
		return input, mod, nil
	}

	u, err := url.Parse(input)
	if err != nil {
		return "", mod, callerr.New("parse URL", err)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, part := range parts {
		if i+1 >= len(parts) || parts[i+1] == "" {
			break
		}
		switch part {
		case "room":
			return parts[i+1], protocol.Video, nil
		case "audio":
			return parts[i+1], protocol.Audio, nil
		}
	}
	return "", mod, fmt.Errorf("could not extract room ID from URL: %s", input)
}

func init() {
	rootCmd.AddCommand(callCmd)

	callCmd.Flags().BoolVarP(&flagAudioOnly, "audio", "a", false, "Join the audio-only room")
	callCmd.Flags().StringVar(&flagAudioFile, "audio-file", "", "Ogg/Opus file to send as microphone")
	callCmd.Flags().StringVar(&flagVideoFile, "video-file", "", "IVF/VP8 file to send as camera")
}
