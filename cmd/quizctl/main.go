package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/victornm/squadquiz/internal/api"
)

func main() {
	var conn *grpc.ClientConn

	app := &cli.App{
		Name:  "quizctl",
		Usage: "operator console for squadquiz sessions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Value:   "localhost:9090",
				Usage:   "gRPC address of the server",
				EnvVars: []string{"QUIZCTL_ADDR"},
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: 5 * time.Second,
				Usage: "timeout of each call",
			},
		},
		Before: func(c *cli.Context) error {
			cc, err := grpc.NewClient(c.String("addr"), grpc.WithTransportCredentials(insecure.NewCredentials()))
			if err != nil {
				return fmt.Errorf("dial %s: %w", c.String("addr"), err)
			}
			conn = cc
			return nil
		},
		After: func(*cli.Context) error {
			if conn != nil {
				return conn.Close()
			}
			return nil
		},
	}

	client := func() *api.OperatorClient { return api.NewOperatorClient(conn) }

	app.Commands = []*cli.Command{
		{
			Name:      "new",
			Usage:     "create a session",
			ArgsUsage: "<teams> <players-per-team> <questions>",
			Action: func(c *cli.Context) error {
				if c.NArg() != 3 {
					return cli.Exit("usage: quizctl new <teams> <players-per-team> <questions>", 2)
				}

				var n [3]int
				for i := range n {
					v, err := strconv.Atoi(c.Args().Get(i))
					if err != nil {
						return cli.Exit(fmt.Sprintf("argument %q is not a number", c.Args().Get(i)), 2)
					}
					n[i] = v
				}

				ctx, cancel := callContext(c)
				defer cancel()

				s, err := client().CreateSession(ctx, api.CreateSessionRequest{
					TeamCount:      n[0],
					PlayersPerTeam: n[1],
					QuestionCount:  n[2],
				})
				if err != nil {
					return failure(err)
				}

				fmt.Printf("Created session %s: %d teams of %d players, %d questions\n",
					s.SessionID, s.TeamCount, s.PlayersPerTeam, s.QuestionCount)
				return nil
			},
		},
		{
			Name:  "list",
			Usage: "list active sessions",
			Action: func(c *cli.Context) error {
				ctx, cancel := callContext(c)
				defer cancel()

				sessions, err := client().ListSessions(ctx)
				if err != nil {
					return failure(err)
				}

				if len(sessions) == 0 {
					fmt.Println("No active sessions")
					return nil
				}

				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "SESSION\tPHASE\tPLAYERS\tQUESTION")
				for _, s := range sessions {
					fmt.Fprintf(w, "%s\t%s\t%d/%d\t%d/%d\n", s.SessionID, s.Phase,
						s.ConnectedPlayers, s.TeamCount*s.PlayersPerTeam, s.QuestionIndex, s.QuestionCount)
				}
				return w.Flush()
			},
		},
		{
			Name:      "leaderboard",
			Usage:     "show the team standings of a session",
			ArgsUsage: "<session>",
			Action: func(c *cli.Context) error {
				if c.NArg() != 1 {
					return cli.Exit("usage: quizctl leaderboard <session>", 2)
				}

				ctx, cancel := callContext(c)
				defer cancel()

				l, err := client().GetLeaderboard(ctx, c.Args().First())
				if err != nil {
					return failure(err)
				}

				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "RANK\tTEAM\tSCORE")
				for i, e := range l.Entries {
					fmt.Fprintf(w, "%d\t%s\t%.0f\n", i+1, e.TeamID, e.Score)
				}
				return w.Flush()
			},
		},
		{
			Name:      "result",
			Usage:     "show the archived result of an ended session",
			ArgsUsage: "<session>",
			Action: func(c *cli.Context) error {
				if c.NArg() != 1 {
					return cli.Exit("usage: quizctl result <session>", 2)
				}

				ctx, cancel := callContext(c)
				defer cancel()

				r, err := client().GetResult(ctx, c.Args().First())
				if err != nil {
					return failure(err)
				}

				fmt.Printf("Session %s ended at %s, winner %s\n", r.SessionID, r.EndedAt.Format(time.RFC3339), r.WinningTeam)
				for _, st := range r.Standings {
					fmt.Printf("  %s: %d\n", st.TeamID, st.Score)
				}

				if len(r.Rounds) == 0 {
					return nil
				}

				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "QUESTION\tTEAM\tKIND\tTRIGGER\tPOINTS\tTOTAL")
				for _, rr := range r.Rounds {
					kind := "individual"
					if rr.TeamQuestion {
						kind = "team"
					}
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\n", rr.QuestionIndex, rr.TeamID, kind, rr.Trigger, rr.RoundPoints, rr.TotalScore)
				}
				return w.Flush()
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func callContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Context, c.Duration("timeout"))
}

// failure turns a gRPC error into the message the server attached to it.
func failure(err error) error {
	if st, ok := status.FromError(err); ok {
		return cli.Exit(fmt.Sprintf("%s: %s", st.Code(), st.Message()), 1)
	}
	return err
}
