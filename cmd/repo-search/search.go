package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Sternrassler/repo-backfill/pkg/pagination"
	"github.com/Sternrassler/repo-backfill/pkg/repo"
	"github.com/Sternrassler/repo-backfill/pkg/search"
	"github.com/spf13/cobra"
)

func newSearchCommand(flags *globalFlags) *cobra.Command {
	var (
		pages   int
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Print search results page by page",
		Long: `Search prints local result pages for the query, fetching more results
from GitHub whenever the printed pages reach the end of what is stored.

Multiple words are matched in order anywhere in the repository name or
description, e.g. "go cli" matches "go-fast-cli".`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			query := strings.Join(args, " ")
			return runSearch(ctx, a.coordinator, query, pages, timeout, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().IntVar(&pages, "pages", 3, "Number of local pages to print")
	cmd.Flags().DurationVar(&timeout, "wait", 30*time.Second, "How long to wait for a backfill before giving up")
	return cmd
}

// runSearch pages through query like a scrolling reader: each page is read
// locally, and a page that triggered a backfill is re-read once it lands.
func runSearch(ctx context.Context, coord *search.Coordinator, query string, pages int, wait time.Duration, out, errOut io.Writer) error {
	result := coord.Search(ctx, query)
	seenErrors := 0
	printed := 0

	defer func() {
		waitCtx, cancel := context.WithTimeout(context.Background(), wait)
		defer cancel()
		result.Controller.Wait(waitCtx)
	}()

	for index := 0; index < pages; index++ {
		page, err := result.View.Page(ctx, index)
		if err != nil {
			return err
		}

		if page.Backfilling || page.Boundary != pagination.BoundaryNone {
			waitCtx, cancel := context.WithTimeout(ctx, wait)
			err := result.Controller.Wait(waitCtx)
			cancel()
			if err != nil {
				return fmt.Errorf("waiting for backfill: %w", err)
			}
			if err := result.Controller.Fatal(); err != nil {
				return fmt.Errorf("local store failure: %w", err)
			}
			if page, err = result.View.Page(ctx, index); err != nil {
				return err
			}
		}

		messages := result.Errors.Messages()
		for _, msg := range messages[seenErrors:] {
			fmt.Fprintf(errOut, "fetch failed: %s\n", msg)
		}
		seenErrors = len(messages)

		if len(page.Items) == 0 {
			if index == 0 {
				fmt.Fprintf(out, "No repositories found for %q\n", query)
			}
			return nil
		}

		fmt.Fprintf(out, "-- page %d --\n", index+1)
		for _, r := range page.Items {
			printed++
			printRepo(out, printed, r)
		}

		if !page.HasMore && result.Session.Exhausted() {
			return nil
		}
	}
	return nil
}

func printRepo(out io.Writer, n int, r repo.Repo) {
	fmt.Fprintf(out, "%4d. %-40s ★ %-7d forks %-6d %s\n", n, r.FullName, r.Stars, r.Forks, r.LanguageText())
	if desc := r.DescriptionText(); desc != "" {
		fmt.Fprintf(out, "      %s\n", desc)
	}
}
