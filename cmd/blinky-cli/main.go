package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"blinky/internal/config"
	"blinky/internal/event"
	"blinky/internal/ipc"
	"blinky/internal/model"
)

var (
	configPath string
	socketPath string
	output     string
	client     *ipc.Client
)

var rootCmd = &cobra.Command{
	Use:   "blinky-cli",
	Short: "Control the blinky eye-rest daemon",
	Long:  `A command-line interface to the running blinkyd daemon. Every command is sent over the daemon's unix socket.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if output != "json" && output != "yaml" {
			return fmt.Errorf("unknown output format %q (use json or yaml)", output)
		}
		if socketPath == "" {
			cfg, err := config.LoadConfig(configPath, zerolog.Nop())
			if err != nil {
				log.Warn("could not read config, using default socket", "err", err)
				socketPath = config.DefaultSocketPath()
			} else {
				socketPath = cfg.SocketPath
			}
		}
		client = ipc.NewClient(socketPath)
		return nil
	},
	SilenceUsage: true,
}

// send issues one command and prints the data of a successful reply.
func send(name string, args any) error {
	ctx, cancel := context.WithTimeout(context.Background(), ipc.DefaultTimeout)
	defer cancel()

	reply, err := client.Send(ctx, name, args)
	if err != nil {
		log.Error("daemon unreachable, is blinkyd running?", "socket", socketPath, "err", err)
		return err
	}
	if !reply.Success {
		return fmt.Errorf("%s", reply.Message)
	}
	if len(reply.Data) == 0 {
		if reply.Message != "" {
			fmt.Println(reply.Message)
		}
		return nil
	}
	return printData(reply.Data)
}

func printData(raw json.RawMessage) error {
	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("failed to decode reply: %w", err)
	}
	switch output {
	case "json":
		out, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	default:
		out, err := yaml.Marshal(data)
		if err != nil {
			return err
		}
		fmt.Print(string(out))
	}
	return nil
}

func simple(use, short, command string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(command, nil)
		},
	}
}

// --- timer ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the timer state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		short, _ := cmd.Flags().GetBool("short")
		if !short {
			return send(ipc.CmdGetTimerState, nil)
		}
		ctx, cancel := context.WithTimeout(context.Background(), ipc.DefaultTimeout)
		defer cancel()
		reply, err := client.Send(ctx, ipc.CmdGetTimerState, nil)
		if err != nil {
			return err
		}
		var st model.TimerState
		if err := reply.Decode(&st); err != nil {
			return err
		}
		fmt.Println(describeState(st))
		return nil
	},
}

func describeState(st model.TimerState) string {
	remaining := formatDuration(time.Duration(st.SecondsRemaining) * time.Second)
	line := fmt.Sprintf("%s %s", st.Phase, remaining)
	if st.Phase.Frozen() && st.ResumePhase != "" {
		line = fmt.Sprintf("%s (%s %s left)", st.Phase, st.ResumePhase, remaining)
	}
	if st.Demo {
		line += " [demo]"
	}
	return fmt.Sprintf("%s, %d breaks today", line, st.BreaksCompletedToday)
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// --- settings ---

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change user settings",
}

var settingsSetCmd = &cobra.Command{
	Use:     "set key=value...",
	Short:   "Change one or more settings",
	Example: "  blinky-cli settings set work_interval_minutes=25 theme=dark",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		patch, err := parseAssignments(args)
		if err != nil {
			return err
		}
		return send(ipc.CmdUpdateSettings, patch)
	},
}

func parseAssignments(args []string) (map[string]any, error) {
	patch := make(map[string]any, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		patch[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return patch, nil
}

// --- analytics ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Break history and analytics",
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent breaks, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		return send(ipc.CmdGetBreakHistory, ipc.BreakHistoryArgs{Limit: limit, Offset: offset})
	},
}

var rangeCmd = &cobra.Command{
	Use:   "range",
	Short: "Daily rollups between two dates (inclusive)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")
		if to == "" {
			to = time.Now().Format(model.DayLayout)
		}
		if from == "" {
			days, _ := cmd.Flags().GetInt("days")
			end, err := time.Parse(model.DayLayout, to)
			if err != nil {
				return fmt.Errorf("invalid --to date: %w", err)
			}
			from = end.AddDate(0, 0, -(days - 1)).Format(model.DayLayout)
		}
		return send(ipc.CmdGetDailyStatsRange, ipc.DailyStatsRangeArgs{From: from, To: to})
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all break history and onboarding progress",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			return fmt.Errorf("refusing to clear data without --yes")
		}
		return send(ipc.CmdClearAllData, nil)
	},
}

// --- onboarding ---

var onboardingCmd = &cobra.Command{
	Use:   "onboarding",
	Short: "First-run onboarding state",
}

var tooltipCmd = &cobra.Command{
	Use:   "tooltip <id>",
	Short: "Mark a tooltip as seen",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return send(ipc.CmdMarkTooltipSeen, ipc.TooltipArgs{ID: args[0]})
	},
}

// --- events ---

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream daemon events until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		types, _ := cmd.Flags().GetStringSlice("type")
		showTicks, _ := cmd.Flags().GetBool("ticks")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		enc := json.NewEncoder(os.Stdout)
		err := client.Subscribe(ctx, types, func(e event.Event) error {
			if e.Type == event.TypeTimerTick && !showTicks && len(types) == 0 {
				return nil
			}
			if output == "json" {
				return enc.Encode(e)
			}
			fmt.Printf("%s %-22s", e.Time.Local().Format("15:04:05"), e.Type)
			if e.Timer != nil {
				fmt.Printf(" %s", describeState(*e.Timer))
			}
			fmt.Println()
			return nil
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func main() {
	log.SetReportTimestamp(false)
	log.SetPrefix("blinky-cli")

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the daemon configuration file")
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "", "Daemon socket path (default: from config)")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "yaml", "Output format: json or yaml")

	// --- Timer Commands ---
	statusCmd.Flags().BoolP("short", "s", false, "Print a one-line summary")
	rootCmd.AddCommand(
		simple("ping", "Check that the daemon is running", ipc.CmdPing),
		statusCmd,
		simple("pause", "Pause the timer", ipc.CmdPauseTimer),
		simple("resume", "Resume a paused timer", ipc.CmdResumeTimer),
		simple("skip", "Skip the current break", ipc.CmdSkipBreak),
		simple("reset", "Start a fresh work interval", ipc.CmdResetTimer),
	)

	// --- Settings Commands ---
	settingsCmd.AddCommand(simple("get", "Show current settings", ipc.CmdGetSettings), settingsSetCmd)
	rootCmd.AddCommand(settingsCmd)

	// --- Analytics Commands ---
	historyCmd.Flags().IntP("limit", "n", 50, "Number of breaks to list")
	historyCmd.Flags().Int("offset", 0, "Number of newest breaks to skip")
	rangeCmd.Flags().String("from", "", "First day, YYYY-MM-DD")
	rangeCmd.Flags().String("to", "", "Last day, YYYY-MM-DD (default today)")
	rangeCmd.Flags().IntP("days", "d", 7, "Number of days ending at --to when --from is not given")
	statsCmd.AddCommand(simple("summary", "Streaks, totals and recent days", ipc.CmdGetAnalyticsSummary), historyCmd, rangeCmd)
	clearCmd.Flags().Bool("yes", false, "Confirm deleting all data")
	rootCmd.AddCommand(statsCmd, simple("export", "Export break history as CSV", ipc.CmdExportDataCSV), clearCmd)

	// --- Onboarding Commands ---
	onboardingCmd.AddCommand(
		simple("status", "Show onboarding progress", ipc.CmdGetOnboardingState),
		simple("complete", "Finish onboarding and start the timer", ipc.CmdCompleteOnboarding),
		simple("demo", "Run a short demo break", ipc.CmdTriggerDemoBreak),
		simple("reset", "Start onboarding over", ipc.CmdResetOnboarding),
		tooltipCmd,
	)
	rootCmd.AddCommand(onboardingCmd)

	// --- Event Stream ---
	watchCmd.Flags().StringSliceP("type", "t", nil, "Only these event types (repeatable)")
	watchCmd.Flags().Bool("ticks", false, "Include timer-tick events when no --type is given")
	rootCmd.AddCommand(watchCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
