// cmd/client/main.go

// Command client is a terminal client for the game server. It can start a new
// game, join or observe an existing one, and then drives the game from stdin.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"github.com/avkotov/railways/internal/client"
	"github.com/avkotov/railways/internal/game"
	"github.com/avkotov/railways/internal/protocol"
)

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	serverFlag := &cli.StringFlag{
		Name:  "server",
		Value: "ws://localhost:8080/ws",
		Usage: "WebSocket URL of the game server",
	}
	nameFlag := &cli.StringFlag{
		Name:     "name",
		Usage:    "player name",
		Required: true,
	}
	colorFlag := &cli.StringFlag{
		Name:  "color",
		Usage: "player color (red, blue, black, orange, magenta)",
	}

	cmd := &cli.Command{
		Name:  "railways-client",
		Usage: "terminal client for the railways game server",
		Commands: []*cli.Command{
			{
				Name:  "start",
				Usage: "start a new game and join it",
				Flags: []cli.Flag{
					serverFlag,
					nameFlag,
					colorFlag,
					&cli.StringFlag{Name: "map", Usage: "built-in map name"},
					&cli.IntFlag{Name: "cars", Usage: "initial cars per player"},
					&cli.BoolFlag{Name: "score-live", Usage: "reveal scores during the game"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					c := client.New(cmd.String("server"), logger)
					err := c.StartGame(ctx, cmd.String("name"),
						game.PlayerColor(cmd.String("color")),
						cmd.String("map"), int(cmd.Int("cars")), cmd.Bool("score-live"))
					if err != nil {
						return err
					}
					fmt.Printf("started game %s\n", c.GameID())
					return runConsole(ctx, c, false)
				},
			},
			{
				Name:      "join",
				Usage:     "join an existing game",
				ArgsUsage: "<game-id>",
				Flags:     []cli.Flag{serverFlag, nameFlag, colorFlag},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					id := game.GameID(cmd.Args().First())
					if id == "" {
						return cli.Exit("missing game id", 1)
					}
					c := client.New(cmd.String("server"), logger)
					err := c.JoinGame(ctx, id, cmd.String("name"),
						game.PlayerColor(cmd.String("color")))
					if err != nil {
						return err
					}
					return runConsole(ctx, c, false)
				},
			},
			{
				Name:      "observe",
				Usage:     "watch an existing game",
				ArgsUsage: "<game-id>",
				Flags:     []cli.Flag{serverFlag},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					id := game.GameID(cmd.Args().First())
					if id == "" {
						return cli.Exit("missing game id", 1)
					}
					c := client.New(cmd.String("server"), logger)
					if err := c.Observe(ctx, id); err != nil {
						return err
					}
					return runConsole(ctx, c, true)
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// console renders server events and turns stdin lines into requests. The last
// seen state view is kept so open-card picks and ticket choices can refer to
// what was printed.
type console struct {
	mu   sync.Mutex
	last *game.PlayerStateView
}

// runConsole prints server events and, for players, reads commands from stdin
// until EOF.
func runConsole(ctx context.Context, c *client.Client, observer bool) error {
	defer c.Close()

	con := &console{}
	go func() {
		for ev := range c.Events {
			con.printEvent(ev)
		}
	}()

	if observer {
		// Observers only watch; block until the connection is gone.
		<-ctx.Done()
		return nil
	}

	fmt.Println(`commands: say <msg> | tickets | keep <n> [n...] | loco <ix> | cards <a> <b> | build <from> <to> [color] <cards> | station <city> <cards> | leave`)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		req, err := con.parseCommand(line)
		if err != nil {
			fmt.Println("!", err)
			continue
		}
		if err := c.Send(req); err != nil {
			fmt.Println("!", err)
		}
		if _, left := req.(game.LeaveRequest); left {
			return nil
		}
	}
	return scanner.Err()
}

// parseCommand turns one console line into a request.
func (con *console) parseCommand(line string) (game.Request, error) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "say":
		return game.ChatRequest{Message: strings.TrimSpace(strings.TrimPrefix(line, "say"))}, nil
	case "tickets":
		return game.PickTicketsRequest{}, nil
	case "keep":
		if len(fields) < 2 {
			return nil, fmt.Errorf("usage: keep <n> [n...] (numbers from the printed offer)")
		}
		return con.parseKeep(fields[1:])
	case "loco":
		if len(fields) != 2 {
			return nil, fmt.Errorf("usage: loco <open-card-index>")
		}
		ix, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, err
		}
		return game.PickLocoRequest{Ix: ix}, nil
	case "cards":
		if len(fields) != 3 {
			return nil, fmt.Errorf("usage: cards <a> <b> (index or 'deck')")
		}
		first, err := con.parsePick(fields[1])
		if err != nil {
			return nil, err
		}
		second, err := con.parsePick(fields[2])
		if err != nil {
			return nil, err
		}
		return game.PickCardsRequest{First: first, Second: second}, nil
	case "build":
		if len(fields) < 4 {
			return nil, fmt.Errorf("usage: build <from> <to> [color] <cards>")
		}
		from, to := game.CityName(fields[1]), game.CityName(fields[2])
		rest := fields[3:]
		var color game.CardColor
		if len(rest) > 1 {
			color = game.CardColor(rest[0])
			rest = rest[1:]
		}
		cards, err := parseCards(rest)
		if err != nil {
			return nil, err
		}
		return game.BuildSegmentRequest{From: from, To: to, Color: color, Cards: cards}, nil
	case "station":
		if len(fields) < 3 {
			return nil, fmt.Errorf("usage: station <city> <cards>")
		}
		cards, err := parseCards(fields[2:])
		if err != nil {
			return nil, err
		}
		return game.BuildStationRequest{Target: game.CityName(fields[1]), Cards: cards}, nil
	case "leave":
		return game.LeaveRequest{}, nil
	default:
		return nil, fmt.Errorf("unknown command %q", fields[0])
	}
}

// parseKeep resolves 1-based offer numbers against the pending ticket choice
// from the last printed state.
func (con *console) parseKeep(args []string) (game.Request, error) {
	con.mu.Lock()
	defer con.mu.Unlock()
	if con.last == nil || con.last.MyPendingChoice == nil {
		return nil, fmt.Errorf("no ticket offer to choose from")
	}
	offer := con.last.MyPendingChoice.Tickets
	keep := make([]game.Ticket, 0, len(args))
	for _, arg := range args {
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 || n > len(offer) {
			return nil, fmt.Errorf("keep %q: want a number between 1 and %d", arg, len(offer))
		}
		keep = append(keep, offer[n-1])
	}
	return game.ConfirmTicketsRequest{TicketsToKeep: keep}, nil
}

// parsePick reads a card pick: "deck" for face-down, or an open row index.
// Open picks carry the card seen in the last printed state; the server rejects
// the pick if the row has changed since.
func (con *console) parsePick(arg string) (game.PickedCard, error) {
	if arg == "deck" {
		return game.PickedCard{Closed: true}, nil
	}
	ix, err := strconv.Atoi(arg)
	if err != nil {
		return game.PickedCard{}, fmt.Errorf("pick %q: want 'deck' or an index", arg)
	}
	con.mu.Lock()
	defer con.mu.Unlock()
	if con.last == nil || ix < 0 || ix >= len(con.last.OpenCards) {
		return game.PickedCard{}, fmt.Errorf("no open card at index %d", ix)
	}
	return game.PickedCard{Ix: ix, Card: con.last.OpenCards[ix]}, nil
}

// parseCards reads payment cards: color names, with "loco" for wildcards.
// "3xred" shorthand expands to three red cards.
func parseCards(args []string) ([]game.Card, error) {
	var cards []game.Card
	for _, arg := range args {
		count := 1
		name := arg
		if n, rest, ok := strings.Cut(arg, "x"); ok {
			if parsed, err := strconv.Atoi(n); err == nil {
				count = parsed
				name = rest
			}
		}
		for i := 0; i < count; i++ {
			if name == "loco" {
				cards = append(cards, game.Loco)
				continue
			}
			cards = append(cards, game.Car(game.CardColor(name)))
		}
	}
	if len(cards) == 0 {
		return nil, fmt.Errorf("no cards given")
	}
	return cards, nil
}

func (con *console) printEvent(ev client.Event) {
	if ev.Response == nil {
		fmt.Printf("-- connection: %s\n", ev.State)
		return
	}
	resp := ev.Response
	switch resp.Type {
	case protocol.RespState:
		con.mu.Lock()
		con.last = resp.State
		con.mu.Unlock()
		printState(resp.State, resp.Action)
	case protocol.RespObserverState:
		fmt.Printf("-- turn of %s\n", turnName(resp.ObserverView.Players, resp.ObserverView.Turn))
	case protocol.RespEnd:
		fmt.Println("== game over ==")
		for _, r := range resp.Results {
			fmt.Printf("  %-12s %4d points (segments %d, longest %d", r.View.Name,
				r.TotalPoints, r.SegmentsPoints, r.LongestRoute)
			if r.LongestRouteBonus {
				fmt.Print(", longest route bonus")
			}
			fmt.Println(")")
		}
	case protocol.RespMessage:
		fmt.Printf("<%s> %s\n", resp.From, resp.Message)
	case protocol.RespError:
		fmt.Println("!", resp.Error)
	}
}

func printState(view *game.PlayerStateView, action *game.Action) {
	if action != nil {
		fmt.Printf("-- %s: %s\n", action.Player, action.Kind)
	}
	fmt.Printf("open cards: %s\n", cardsString(view.OpenCards))
	fmt.Printf("your hand:  %s\n", cardsString(view.MyCards))
	if view.MyPendingChoice != nil {
		fmt.Printf("ticket offer (keep at least %d):\n", view.MyPendingChoice.MinCountToKeep)
		for i, t := range view.MyPendingChoice.Tickets {
			fmt.Printf("  %d. %s - %s (%d)\n", i+1, t.From, t.To, t.Points)
		}
	}
	fmt.Printf("turn: %s%s\n", turnName(view.Players, view.Turn), lastRoundMark(view.LastRound))
}

func turnName(players []game.PlayerView, turn int) string {
	if turn < 0 || turn >= len(players) {
		return "?"
	}
	return players[turn].Name
}

func lastRoundMark(lastRound bool) string {
	if lastRound {
		return " (last round)"
	}
	return ""
}

func cardsString(cards []game.Card) string {
	if len(cards) == 0 {
		return "(none)"
	}
	parts := make([]string, len(cards))
	for i, card := range cards {
		if card.Loco {
			parts[i] = "loco"
		} else {
			parts[i] = string(card.Color)
		}
	}
	return strings.Join(parts, " ")
}
