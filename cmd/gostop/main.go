// cmd/gostop/main.go is the terminal client: a local practice round, or a
// networked round through the relay where the host's process runs the engine.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/jason-s-yu/gostop/internal/channel"
	"github.com/jason-s-yu/gostop/internal/config"
	"github.com/jason-s-yu/gostop/internal/game"
	"github.com/jason-s-yu/gostop/internal/lobby"
	"github.com/jason-s-yu/gostop/internal/models"
	"github.com/jason-s-yu/gostop/internal/netplay"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

const usage = `usage: gostop <command> [flags]

commands:
  practice        play against the computer (default)
  rooms           list open rooms
  host            open a room and wait for a guest
  join <room-id>  take the guest seat of a room
  quick           join the oldest open room or open one

flags:
`

type options struct {
	name    string
	relay   string
	httpURL string
	seed    int64
}

func main() {
	cfg, err := config.LoadClient()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}

	cmd, args := "practice", os.Args[1:]
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}
	fs := flag.NewFlagSet("gostop", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	var opts options
	fs.StringVar(&opts.name, "name", cfg.Name, "display name")
	fs.StringVar(&opts.relay, "relay", cfg.RelayURL, "relay websocket url")
	fs.StringVar(&opts.httpURL, "http", cfg.HTTPURL, "server http url")
	fs.Int64Var(&opts.seed, "seed", 0, "practice shuffle seed, 0 for random")
	_ = fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lines := readLines(os.Stdin)
	switch cmd {
	case "practice":
		var engineOpts []game.Option
		if opts.seed != 0 {
			engineOpts = append(engineOpts, game.WithSeed(opts.seed))
		}
		if cfg.AIDelay > 0 {
			engineOpts = append(engineOpts, game.WithAIDelay(cfg.AIDelay))
		}
		err = practice(opts.name, engineOpts, lines, os.Stdout, logger)
	case "rooms":
		err = listRooms(ctx, opts, logger)
	case "host", "join", "quick":
		err = online(ctx, cmd, fs.Arg(0), cfg, opts, lines, logger)
	default:
		fs.Usage()
		os.Exit(2)
	}
	if err != nil && !errors.Is(err, errQuit) && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Error(cmd)
		os.Exit(1)
	}
}

type client struct {
	self  game.SeatInfo
	relay *channel.Relay
	lobby *lobby.Service
}

func dial(ctx context.Context, opts options, logger *logrus.Logger) (*client, error) {
	sess, err := newSession(ctx, opts.httpURL, opts.name)
	if err != nil {
		return nil, err
	}
	relay, err := channel.Dial(ctx, opts.relay, sess.Token, logger)
	if err != nil {
		return nil, err
	}
	return &client{
		self:  game.SeatInfo{ID: sess.ID, Name: sess.Name},
		relay: relay,
		lobby: lobby.NewService(relay, logger),
	}, nil
}

func listRooms(ctx context.Context, opts options, logger *logrus.Logger) error {
	c, err := dial(ctx, opts, logger)
	if err != nil {
		return err
	}
	defer c.relay.Close()
	rooms, err := c.lobby.FindOpenRooms(ctx, 20)
	if err != nil {
		return err
	}
	if len(rooms) == 0 {
		fmt.Println("no open rooms")
	}
	for _, r := range rooms {
		fmt.Printf("%s  hosted by %s since %s\n", r.ID, r.HostName, r.CreatedAt.Format("15:04:05"))
	}
	return nil
}

// online seats the user in a room and plays it out.
func online(ctx context.Context, cmd, arg string, cfg config.Client, opts options, lines <-chan string, logger *logrus.Logger) error {
	c, err := dial(ctx, opts, logger)
	if err != nil {
		return err
	}
	defer c.relay.Close()

	var (
		room models.Room
		role lobby.Role
	)
	switch cmd {
	case "host":
		room, err = c.lobby.CreateRoom(ctx, c.self)
		role = lobby.RoleHost
	case "join":
		id, perr := uuid.Parse(arg)
		if perr != nil {
			return fmt.Errorf("join needs a room id: %w", perr)
		}
		room, err = c.lobby.JoinRoom(ctx, id, c.self)
		role = lobby.RoleGuest
	case "quick":
		room, role, err = c.lobby.QuickMatch(ctx, c.self)
	}
	if err != nil {
		return err
	}

	nc := netplay.Config{
		RoomID:      room.ID,
		Heartbeat:   cfg.Heartbeat,
		TurnTimeout: cfg.TurnTimeout,
		Logger:      logger,
	}
	if role == lobby.RoleGuest {
		host, _ := lobby.Seats(room)
		nc.Self, nc.Opponent = c.self, host
		fmt.Printf("joined %s's room %s\n", room.HostName, room.ID)
		err = playGuest(ctx, c.relay, nc, lines, os.Stdout)
		// the guest reads the final snapshot last, so it tidies up
		if err == nil {
			closeRoom(c, room.ID, logger)
		}
		return err
	}

	roomID := room.ID
	fmt.Printf("room %s open, waiting for a guest...\n", roomID)
	room, err = c.lobby.WaitForGuest(ctx, roomID)
	if err != nil {
		closeRoom(c, roomID, logger)
		return err
	}
	_, guest := lobby.Seats(room)
	nc.Self, nc.Opponent = c.self, guest
	fmt.Printf("%s joined\n", guest.Name)
	err = playHost(ctx, c.relay, nc, lines, os.Stdout)
	if err != nil {
		closeRoom(c, roomID, logger)
	}
	return err
}

func closeRoom(c *client, roomID uuid.UUID, logger logrus.FieldLogger) {
	ctx, cancel := context.WithTimeout(context.Background(), netplay.DefaultHeartbeat)
	defer cancel()
	if err := c.lobby.CloseRoom(ctx, roomID, c.self.ID); err != nil {
		logger.WithError(err).Warn("close room")
	}
}
