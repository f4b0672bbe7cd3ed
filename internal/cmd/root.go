package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/techie-mohit/videoCalling/internal/config"
	"github.com/techie-mohit/videoCalling/internal/ui"
	"github.com/techie-mohit/videoCalling/internal/version"
)

var flags config.Options

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "warpcall",
	Short: "Peer-to-peer audio and video calls from the terminal",
	Long: `WarpCall joins a two-person call room on a signaling server and connects to the
other participant directly over WebRTC. Rooms are shared with the web app, so a
terminal user can talk to a browser user in the same room.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintError(err.Error())
		stop()
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.Domain, "domain", "d", "", "Signaling server host[:port]")
	pf.BoolVar(&flags.Insecure, "insecure", false, "Use ws:// and http:// instead of TLS")
	pf.StringVarP(&flags.STUNServer, "stun", "s", "", "Custom STUN servers, comma separated")
	pf.StringVarP(&flags.TURNServer, "turn", "t", "", "Custom TURN server")
	pf.StringVarP(&flags.TURNUser, "turn-user", "u", "", "TURN username")
	pf.StringVarP(&flags.TURNPass, "turn-pass", "p", "", "TURN password")
	pf.BoolVarP(&flags.ForceRelay, "relay", "r", false, "Force relay mode")
	pf.StringVar(&flags.Email, "email", "", "Identity shown to the other participant")
	pf.StringVar(&flags.Name, "name", "", "Display name")
	pf.StringVar(&flags.Token, "token", "", "Bearer token for an authenticated identity")
	pf.StringVar(&flags.Codec, "codec", "", "Signaling wire codec (json or msgpack)")
}
