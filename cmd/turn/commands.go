package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jeeves-cluster-organization/tripdesk/coreengine/agents"
	"github.com/jeeves-cluster-organization/tripdesk/coreengine/config"
	"github.com/jeeves-cluster-organization/tripdesk/coreengine/envelope"
	"github.com/jeeves-cluster-organization/tripdesk/coreengine/logging"
	"github.com/jeeves-cluster-organization/tripdesk/coreengine/observability"
	"github.com/jeeves-cluster-organization/tripdesk/travel/trips"
	"github.com/jeeves-cluster-organization/tripdesk/travel/turn"
)

// BuildTime is set at link time.
var BuildTime = "dev"

type cli struct {
	logLevel  string
	sessionID string
	asJSON    bool
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "tripdesk-turn",
		Short:         "Talk to the trip assistant from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "WARN", "log level (DEBUG, INFO, WARN, ERROR)")
	root.PersistentFlags().StringVar(&c.sessionID, "session", "", "session id (a fresh one when empty)")

	root.AddCommand(c.askCmd(), c.chatCmd(), tripsCmd(), versionCmd())
	return root
}

// open loads the configuration and assembles a turn stack logging to stderr.
func (c *cli) open(cmd *cobra.Command) (*turn.Stack, agents.Logger, error) {
	_ = godotenv.Load()
	cfg, err := config.Load(config.DefaultEnvPrefix)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(logging.Config{
		Level:      c.logLevel,
		Output:     cmd.ErrOrStderr(),
		TimeFormat: "15:04:05",
	})
	stack, err := turn.Assemble(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return stack, logger, nil
}

func (c *cli) session() string {
	if c.sessionID != "" {
		return c.sessionID
	}
	return "cli-" + uuid.NewString()
}

// =============================================================================
// ASK
// =============================================================================

func (c *cli) askCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask one question and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stack, logger, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer stack.Close()

			resp, err := ask(cmd, stack, logger, c.session(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if c.asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.FinalText)
			return nil
		},
	}
	cmd.Flags().BoolVar(&c.asJSON, "json", false, "print the full turn response as JSON")
	return cmd
}

// ask runs one turn. A fallback reply is returned along with a logged error.
func ask(cmd *cobra.Command, stack *turn.Stack, logger agents.Logger, sessionID, text string) (*turn.TurnResponse, error) {
	resp, err := stack.Service.HandleTurn(cmd.Context(), turn.TurnRequest{SessionID: sessionID, RawText: text})
	if err != nil {
		if resp == nil {
			return nil, err
		}
		logger.Warn("turn_completed_with_error", "session_id", sessionID, "error", err.Error())
	}
	return resp, nil
}

// =============================================================================
// CHAT
// =============================================================================

func (c *cli) chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Hold a conversation read line by line from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stack, logger, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer stack.Close()
			return chat(cmd, stack, logger, c.session())
		},
	}
}

func chat(cmd *cobra.Command, stack *turn.Stack, logger agents.Logger, sessionID string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "session %s (type exit to quit)\n", sessionID)

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		resp, err := ask(cmd, stack, logger, sessionID, line)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, resp.FinalText)
		if resp.NextAction == envelope.ActionHandoff {
			fmt.Fprintln(out, "[handed off to a travel expert]")
		}
	}
}

// =============================================================================
// TRIPS AND VERSION
// =============================================================================

func tripsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trips",
		Short: "List the trips in the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, err := trips.Default()
			if err != nil {
				return err
			}
			return printTrips(cmd.OutOrStdout(), catalog)
		},
	}
}

func printTrips(w io.Writer, catalog *trips.Catalog) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TRIP ID\tNAME\tDESTINATION\tDAYS\tPRICE")
	for _, t := range catalog.All() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			t.TripID, t.Name, t.Destination, t.Duration.Days, t.Pricing.BasePrice)
	}
	return tw.Flush()
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tripdesk-turn %s (built %s)\n", observability.ServiceVersion, BuildTime)
		},
	}
}
