package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"coursebot/internal/agent"
	"coursebot/internal/domain"
	"coursebot/internal/knowledge"
	"coursebot/internal/metrics"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	boldGreen = color.New(color.FgGreen, color.Bold).SprintFunc()
	boldCyan  = color.New(color.FgCyan, color.Bold).SprintFunc()
	faint     = color.New(color.Faint).SprintFunc()
	red       = color.New(color.FgRed).SprintFunc()
)

func ingestCmd() *cobra.Command {
	var clearIndex bool
	cmd := &cobra.Command{
		Use:   "ingest [paths...]",
		Short: "Index course manifests (.yaml, .yml, .json files or directories)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig()
			if err != nil {
				return err
			}
			defer closeLog()
			if cfg.VectorStore.Backend == "memory" {
				return fmt.Errorf("the memory backend is not persisted; list course folders in knowledge.paths instead of running ingest")
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			courses, err := knowledge.LoadPaths(args, logger)
			if err != nil {
				return err
			}

			a, err := openApp(ctx, cfg, clearIndex)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.engine().Ingest(ctx, courses, knowledge.IngestOptions{Clear: clearIndex})
			if err != nil {
				return err
			}
			for _, t := range report.Courses {
				fmt.Printf("%s %s\n", boldGreen("added"), t)
			}
			for _, t := range report.Skipped {
				fmt.Printf("%s %s\n", faint("skipped"), t)
			}
			fmt.Printf("%d course(s), %d chunk(s) indexed\n", len(report.Courses), report.Chunks)
			return nil
		},
	}
	cmd.Flags().BoolVar(&clearIndex, "clear", false, "empty the index before ingesting")
	return cmd
}

func coursesCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "courses",
		Short: "List catalogued courses",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig()
			if err != nil {
				return err
			}
			defer closeLog()

			ctx := context.Background()
			a, err := openApp(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.store.CourseCount(ctx)
			if err != nil {
				return err
			}
			titles, err := a.store.CourseTitles(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				data, _ := json.MarshalIndent(agent.CourseAnalytics{TotalCourses: n, CourseTitles: titles}, "", "  ")
				fmt.Println(string(data))
				return nil
			}
			chunks, err := a.store.ChunkCount(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("%d course(s), %d chunk(s)\n", n, chunks)
			for _, t := range titles {
				fmt.Printf("  - %s\n", t)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print analytics as JSON")
	return cmd
}

func askCmd() *cobra.Command {
	var (
		sessionID   string
		asJSON      bool
		showMetrics bool
	)
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a single question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig()
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()
			coord, err := a.coordinator()
			if err != nil {
				return err
			}

			ans, err := coord.AnswerQuery(ctx, strings.Join(args, " "), sessionID)
			if err != nil {
				return describeError(err)
			}
			if asJSON {
				data, _ := json.MarshalIndent(ans, "", "  ")
				fmt.Println(string(data))
			} else {
				printAnswer(ans)
			}
			if showMetrics && !metrics.Collector.Enabled() {
				fmt.Fprintln(os.Stderr, faint("metrics are disabled (metrics.enabled is false)"))
				return nil
			}
			if showMetrics {
				fmt.Println()
				return metrics.Collector.WriteText(os.Stdout)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session id (default: a new session)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the answer as JSON")
	cmd.Flags().BoolVar(&showMetrics, "metrics", false, "print metrics after answering")
	return cmd
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig()
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()
			coord, err := a.coordinator()
			if err != nil {
				return err
			}
			return runChat(ctx, coord)
		},
	}
}

func runChat(ctx context.Context, coord *agent.Coordinator) error {
	sessionID := coord.Sessions().NewSessionID()

	fmt.Println(boldGreen("Coursebot"), version)
	fmt.Println("Ask about your courses. Type /help for commands, /quit to leave.")
	fmt.Println()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		fmt.Print(boldGreen("You: "))
		var input string
		select {
		case <-ctx.Done():
			fmt.Println()
			return nil
		case line, ok := <-lines:
			if !ok {
				fmt.Println()
				return nil
			}
			input = strings.TrimSpace(line)
		}
		if input == "" {
			continue
		}

		if cmd := agent.ParseCommand(input); cmd != nil {
			res := coord.HandleCommand(ctx, cmd, sessionID)
			if res.Handled {
				fmt.Println(res.Response)
				fmt.Println()
				sessionID = res.SessionID
				if res.Quit {
					return nil
				}
				continue
			}
		}

		ans, err := coord.AnswerQuery(ctx, input, sessionID)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			fmt.Fprintln(os.Stderr, red("Error:"), describeError(err))
			fmt.Println()
			continue
		}
		printAnswer(ans)
		fmt.Println()
	}
}

func printAnswer(ans *domain.Answer) {
	fmt.Println(boldCyan("Assistant:"), ans.Text)
	if len(ans.Sources) == 0 {
		return
	}
	fmt.Println(faint("Sources:"))
	for _, s := range ans.Sources {
		if s.Link != "" {
			fmt.Printf("  - %s %s\n", s.Label, faint("("+s.Link+")"))
		} else {
			fmt.Printf("  - %s\n", s.Label)
		}
	}
}

// describeError adds a hint for errors a user can act on.
func describeError(err error) error {
	var apiErr *domain.ModelAPIError
	switch {
	case errors.As(err, &apiErr) && apiErr.Status == 0:
		return fmt.Errorf("%w\n(is the %s provider running? check `coursebot doctor`)", err, apiErr.Provider)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w\n(raise general.queryTimeoutSeconds if the model is slow)", err)
	}
	return err
}
