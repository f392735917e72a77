package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/VoiceMux/internal/adapters/rtc"
	"github.com/dkeye/VoiceMux/internal/adapters/ws"
	"github.com/dkeye/VoiceMux/internal/app"
	"github.com/dkeye/VoiceMux/internal/config"
	"github.com/dkeye/VoiceMux/internal/core"
	"github.com/dkeye/VoiceMux/internal/domain"
	"github.com/dkeye/VoiceMux/internal/staging"
	"github.com/dkeye/VoiceMux/internal/voice"
)

const redialDelay = 2 * time.Second

// Opus comfort silence. Capture and encoding live outside this client.
var silence = []byte{0xf8, 0xff, 0xfe}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	if len(os.Args) > 1 {
		cfg.Client.Name = os.Args[1]
	}

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	opts := app.Options{
		Name:           cfg.Client.Name,
		Codec:          cfg.Client.Codec,
		ResendInterval: cfg.Client.ResendInterval,
		BufferSize:     cfg.Voice.BufferSize,
		Timeouts: voice.Timeouts{
			Active:   cfg.Voice.ActiveTimeout,
			Inactive: cfg.Voice.InactiveTimeout,
		},
	}
	if cfg.Client.Direct {
		rtcCfg := rtc.DefaultWebRTCConfig(cfg.Client.STUN...)
		opts.Links = func(peer domain.PeerID, handle core.PacketHandler) (app.DirectLink, error) {
			link, err := rtc.NewLink(nil, rtcCfg, peer, handle)
			if err != nil {
				return nil, err
			}
			return link, nil
		}
	}
	client, err := app.NewClient(opts)
	if err != nil {
		return fmt.Errorf("client: %w", err)
	}
	defer client.Stop()
	client.Subscribe(staging.ObserverFunc(func(ev staging.Event) error {
		printEvent(client, ev)
		return nil
	}))
	for _, room := range cfg.Client.Rooms {
		if err := client.JoinRoom(domain.RoomName(room)); err != nil {
			return fmt.Errorf("join %q: %w", room, err)
		}
	}

	dial := func() (*ws.Link, error) {
		return ws.Dial(ctx, cfg.Client.ServerURL, client.HandlePacket, ws.Options{}, cfg.Client.SendTimeout)
	}
	link, err := dial()
	if err != nil {
		return err
	}
	client.Start(link)
	pterm.Success.Printfln("connected to %s as %s", cfg.Client.ServerURL, cfg.Client.Name)

	lines := make(chan string)
	go readLines(lines)

	sh := &shell{client: client}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ticker := time.NewTicker(cfg.Client.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case now := <-ticker.C:
				sh.tick()
				if err := client.Update(now); err != nil {
					log.Debug().Str("module", "cmd.client").Err(err).Msg("flush")
				}
			}
		}
	})

	g.Go(func() error {
		current := link
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-current.Done():
			}
			pterm.Warning.Println("lost connection, redialing")
			for {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case <-time.After(redialDelay):
				}
				next, err := dial()
				if err != nil {
					log.Warn().Str("module", "cmd.client").Err(err).Msg("redial failed")
					continue
				}
				current = next
				client.Reconnect(next)
				pterm.Success.Println("reconnected")
				break
			}
		}
	})

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case line, ok := <-lines:
				if !ok {
					return context.Canceled
				}
				if quit := sh.run(line); quit {
					return context.Canceled
				}
			}
		}
	})

	return g.Wait()
}

func readLines(out chan<- string) {
	defer close(out)
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		out <- sc.Text()
	}
}

func printEvent(client *app.Client, ev staging.Event) {
	switch e := ev.(type) {
	case staging.PeerJoined:
		pterm.Info.Printfln("%s (%d) joined", e.Name, e.Peer)
	case staging.PeerLeft:
		pterm.Info.Printfln("%s (%d) left", e.Name, e.Peer)
	case staging.EnteredRoom:
		pterm.Info.Printfln("%d entered %s", e.Peer, e.Room)
	case staging.ExitedRoom:
		pterm.Info.Printfln("%d exited %s", e.Peer, e.Room)
	case staging.StartedSpeaking:
		pterm.Success.Printfln("%s started speaking", peerName(client, e.Peer))
	case staging.StoppedSpeaking:
		pterm.Info.Printfln("%s stopped speaking", peerName(client, e.Peer))
	case staging.TextMessage:
		where := "you"
		if e.RecipientType == domain.ChannelRoom {
			where = string(e.Room)
		}
		pterm.Println(pterm.Cyan(fmt.Sprintf("[%s] %s: ", where, peerName(client, e.Sender))) + e.Text)
	case staging.VoiceData:
	}
}

func peerName(client *app.Client, id domain.PeerID) string {
	if p, ok := client.Roster().ByID(id); ok {
		return p.Name
	}
	return id.String()
}

// shell handles the interactive commands.
type shell struct {
	client *app.Client

	mu       sync.Mutex
	speaking map[string]voice.ChannelHandle
}

func (s *shell) tick() {
	s.mu.Lock()
	talking := len(s.speaking) > 0
	s.mu.Unlock()
	if talking {
		s.client.Voice().Send(silence)
	}
}

func (s *shell) run(line string) (quit bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	rest := func(n int) string {
		if len(fields) <= n {
			return ""
		}
		return strings.Join(fields[n:], " ")
	}
	var err error
	switch fields[0] {
	case "/quit":
		return true
	case "/join":
		err = s.client.JoinRoom(domain.RoomName(rest(1)))
	case "/leave":
		s.client.LeaveRoom(domain.RoomName(rest(1)))
	case "/say":
		if len(fields) < 3 {
			err = errors.New("usage: /say <room> <text>")
			break
		}
		err = s.client.Text().SendToRoom(domain.RoomName(fields[1]), rest(2))
	case "/msg":
		if len(fields) < 3 {
			err = errors.New("usage: /msg <peer id> <text>")
			break
		}
		var id uint64
		if id, err = strconv.ParseUint(fields[1], 10, 16); err == nil {
			err = s.client.Text().SendToPlayer(domain.PeerID(id), rest(2))
		}
	case "/talk":
		s.toggle(rest(1))
	case "/peers":
		s.peers()
	default:
		pterm.Warning.Println("commands: /join /leave /say /msg /talk /peers /quit")
	}
	if err != nil {
		pterm.Error.Println(err)
	}
	return false
}

// toggle opens or closes a speaking channel to a room.
func (s *shell) toggle(room string) {
	if room == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.speaking == nil {
		s.speaking = make(map[string]voice.ChannelHandle)
	}
	if h, ok := s.speaking[room]; ok {
		s.client.Voice().CloseChannel(h)
		delete(s.speaking, room)
		pterm.Info.Printfln("stopped talking to %s", room)
		return
	}
	s.speaking[room] = s.client.Voice().OpenRoomChannel(domain.RoomName(room), domain.DefaultProperties())
	pterm.Info.Printfln("talking to %s", room)
}

func (s *shell) peers() {
	data := pterm.TableData{{"ID", "Name", "Rooms", "Direct"}}
	for _, p := range s.client.Roster().Peers() {
		rooms := make([]string, 0, len(p.Rooms))
		for _, r := range p.Rooms {
			rooms = append(rooms, string(r))
		}
		direct := "no"
		if p.Link != nil && p.Link.Open() {
			direct = "yes"
		}
		data = append(data, []string{p.ID.String(), p.Name, strings.Join(rooms, ","), direct})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		pterm.Error.Println(err)
	}
}
