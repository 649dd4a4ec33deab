package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/huddlekit/huddle/internal/adapters/api"
	"github.com/huddlekit/huddle/internal/adapters/chat"
	"github.com/huddlekit/huddle/internal/adapters/rtc"
	relay "github.com/huddlekit/huddle/internal/adapters/signal"
	"github.com/huddlekit/huddle/internal/app"
	"github.com/huddlekit/huddle/internal/core"
	"github.com/huddlekit/huddle/internal/domain"
	"github.com/huddlekit/huddle/internal/media"
)

var (
	flagDisplayName string
	flagNoAudio     bool
	flagNoVideo     bool
	flagSilentAudio bool
	flagHistory     int
)

// NewJoinCmd returns the command that joins a meeting end to end: voice
// session, media mesh and chat.
func NewJoinCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "join <meeting-id>",
		Short: "Join a meeting with audio, video and chat",
		Args:  cobra.ExactArgs(1),
		RunE:  runJoin,
	}
	cmd.Flags().StringVar(&flagDisplayName, "display-name", "", "name shown to other participants")
	cmd.Flags().BoolVar(&flagNoAudio, "no-audio", false, "do not capture the microphone")
	cmd.Flags().BoolVar(&flagNoVideo, "no-video", false, "do not capture the camera")
	cmd.Flags().BoolVar(&flagSilentAudio, "silent-audio", false, "publish a silent audio track instead of capturing devices")
	cmd.Flags().IntVar(&flagHistory, "history", 25, "chat messages to preload")
	return cmd
}

func runJoin(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	meetingID := domain.MeetingID(args[0])

	client, _, err := newAPIClient()
	if err != nil {
		return err
	}
	creds, err := requireLogin(client)
	if err != nil {
		return err
	}

	meeting, err := client.Meeting(ctx, meetingID)
	if err != nil {
		return err
	}
	displayName := firstNonEmpty(flagDisplayName, cfg.DisplayName, creds.Username)

	prov, err := app.NewProvisioner(app.ProvisionerConfig{
		API:         client,
		Meeting:     meetingID,
		RenewBuffer: cfg.TokenRenewBuffer,
		Defaults: domain.VoiceConfig{
			SignalURL:  cfg.SignalURL,
			ICEServers: cfg.FallbackICE(),
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}
	voice, session, err := prov.Provision(ctx)
	if err != nil {
		return err
	}

	local := openMedia()
	closeMedia := func() {
		if local != nil {
			local.Close()
		}
	}

	factoryCfg := rtc.FactoryConfig{ICEServers: voice.ICEServers, Logger: logger}
	if local != nil {
		factoryCfg.Media = local
	}
	factory, err := rtc.NewFactory(factoryCfg)
	if err != nil {
		closeMedia()
		return err
	}

	channel, err := relay.Dial(ctx, relay.Options{
		SignalURL:          voice.SignalURL,
		Room:               session.RoomID,
		Meeting:            meetingID,
		DisplayName:        displayName,
		Token:              prov,
		ReconnectAttempts:  cfg.ReconnectAttempts,
		ReconnectBaseDelay: cfg.ReconnectBaseDelay,
		Logger:             logger,
	})
	if err != nil {
		closeMedia()
		return err
	}

	var localCloser io.Closer
	if local != nil {
		localCloser = local
	}
	mesh, err := app.NewMesh(app.MeshConfig{
		Channel:       channel,
		Factory:       factory,
		LocalMedia:    localCloser,
		MaxPeers:      cfg.MaxPeers,
		SoftPeerLimit: cfg.SoftPeerLimit,
		Logger:        logger,
	})
	if err != nil {
		channel.Close()
		closeMedia()
		return err
	}
	defer mesh.Close()

	// Keeps the room token fresh for redials until the session ends.
	go prov.Run(ctx)

	chatc := openChat(ctx, client, meetingID, creds, displayName)
	if chatc != nil {
		defer chatc.Close()
		printHistory(ctx, client, meetingID)
	}

	fmt.Printf("Joined %q as %s (peer %s)\n", meeting.Title, displayName, channel.Self())
	fmt.Println("Type a message to chat; m toggles mic, v camera, p peers, q leaves")

	return runSession(ctx, mesh, chatc, local)
}

// openMedia opens the requested local sources. A capture failure is not
// fatal: the meeting continues receive-only.
func openMedia() *media.Local {
	if flagSilentAudio {
		local, err := media.NewSilentAudio(logger)
		if err != nil {
			logger.Warn().Err(err).Msg("silent audio source failed, joining receive-only")
			return nil
		}
		return local
	}

	wantAudio := !cfg.DisableAudio && !flagNoAudio
	wantVideo := !cfg.DisableVideo && !flagNoVideo
	if !wantAudio && !wantVideo {
		return nil
	}

	local, err := media.Capture(media.CaptureOptions{
		Audio:  wantAudio,
		Video:  wantVideo,
		Logger: logger,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("media capture failed, joining receive-only")
		fmt.Println("Could not open microphone/camera; joining receive-only")
		return nil
	}
	return local
}

// openChat dials the text channel. Chat being down never blocks the
// meeting itself.
func openChat(ctx context.Context, client *api.Client, meetingID domain.MeetingID, creds api.Credentials, displayName string) *chat.Client {
	chatURL := cfg.ChatURL
	if chatURL == "" {
		chatURL = strings.TrimRight(cfg.BackendURL, "/") + "/ws/chat"
	}
	token := core.TokenFunc(func(context.Context) (string, error) {
		c := client.Credentials()
		if !c.LoggedIn() {
			return "", fmt.Errorf("%w: no access token", core.ErrAuth)
		}
		return c.AccessToken, nil
	})

	chatc, err := chat.Dial(ctx, chat.Options{
		ChatURL:            chatURL,
		Meeting:            meetingID,
		Author:             domain.User{ID: creds.UserID, Username: creds.Username},
		DisplayName:        displayName,
		Token:              token,
		ReconnectAttempts:  cfg.ReconnectAttempts,
		ReconnectBaseDelay: cfg.ReconnectBaseDelay,
		Logger:             logger,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("chat unavailable for this session")
		fmt.Println("Chat is unavailable; audio/video continues")
		return nil
	}
	return chatc
}

func printHistory(ctx context.Context, client *api.Client, id domain.MeetingID) {
	history, err := client.ChatHistory(ctx, id, flagHistory)
	if err != nil {
		logger.Warn().Err(err).Msg("chat history unavailable")
		return
	}
	for _, m := range history {
		printChatMessage(m)
	}
}

func runSession(ctx context.Context, mesh *app.Mesh, chatc *chat.Client, local *media.Local) error {
	lines := make(chan string)
	go readLines(lines)

	var chatEvents <-chan chat.Event
	if chatc != nil {
		chatEvents = chatc.Events()
	}

	for {
		select {
		case <-ctx.Done():
			fmt.Println("Leaving...")
			return nil
		case <-mesh.Done():
			return mesh.Err()
		case n := <-mesh.Notifications():
			printNote(n)
		case ev, ok := <-chatEvents:
			if !ok {
				chatEvents = nil
				continue
			}
			printChatEvent(ev)
		case line, ok := <-lines:
			if !ok {
				fmt.Println("Leaving...")
				return nil
			}
			if leave := handleLine(line, mesh, chatc, local); leave {
				return nil
			}
		}
	}
}

// readLines feeds stdin to the session loop; closed on EOF. The goroutine
// dies with the process when the session ends first.
func readLines(lines chan<- string) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
	close(lines)
}

func handleLine(line string, mesh *app.Mesh, chatc *chat.Client, local *media.Local) bool {
	switch strings.TrimSpace(line) {
	case "":
		return false
	case "q":
		return true
	case "m":
		if local == nil || !local.HasAudio() {
			fmt.Println("* no microphone in this session")
			return false
		}
		local.SetAudioEnabled(!local.AudioEnabled())
		fmt.Printf("* microphone %s\n", onOff(local.AudioEnabled()))
		return false
	case "v":
		if local == nil || !local.HasVideo() {
			fmt.Println("* no camera in this session")
			return false
		}
		local.SetVideoEnabled(!local.VideoEnabled())
		fmt.Printf("* camera %s\n", onOff(local.VideoEnabled()))
		return false
	case "p":
		printStats(mesh.Stats())
		return false
	default:
		if chatc == nil {
			fmt.Println("* chat unavailable")
			return false
		}
		if _, err := chatc.Send(line); err != nil {
			fmt.Printf("* not sent: %v\n", err)
		}
		return false
	}
}

func printStats(s app.Stats) {
	fmt.Printf("* you are %s; %d connected, %d negotiating\n", s.Self, s.Connected, s.Pending)
	for _, p := range s.Peers {
		fmt.Printf("*   %s  %s  tracks=%d  since=%s\n", p.ID, p.State, p.Tracks, p.Since.Local().Format("15:04:05"))
	}
}

func printNote(n app.Notification) {
	switch n.Kind {
	case app.NotePeerPending:
		fmt.Printf("* %s negotiating\n", n.Peer)
	case app.NotePeerConnected:
		fmt.Printf("* %s connected\n", n.Peer)
	case app.NotePeerTrack:
		fmt.Printf("* %s is sending %s\n", n.Peer, n.Track.Kind)
	case app.NotePeerLeft:
		fmt.Printf("* %s left\n", n.Peer)
	case app.NotePeerFailed:
		fmt.Printf("* %s failed: %v\n", n.Peer, n.Err)
	case app.NoteRoomFull:
		fmt.Printf("* room is full, %s was not admitted\n", n.Peer)
	case app.NoteRoomError:
		fmt.Printf("* room error: %v\n", n.Err)
	case app.NoteReconnected:
		fmt.Println("* reconnected, building the mesh again")
	case app.NoteDisconnected:
		fmt.Printf("* disconnected: %v\n", n.Err)
	}
}

func printChatEvent(ev chat.Event) {
	switch e := ev.(type) {
	case chat.MessageEvent:
		printChatMessage(e.Message)
	case chat.PresenceEvent:
		if e.Joined {
			fmt.Printf("* %s joined the chat\n", e.DisplayName)
		} else {
			fmt.Printf("* %s left the chat\n", e.DisplayName)
		}
	case chat.ErrorEvent:
		fmt.Printf("* chat: %s\n", e.Message)
	case chat.DisconnectedEvent:
		fmt.Printf("* chat lost: %v\n", e.Cause)
	}
}

func printChatMessage(m domain.ChatMessage) {
	fmt.Printf("[%s] %s: %s\n", m.SentAt.Local().Format("15:04"), m.AuthorName, m.Body)
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
