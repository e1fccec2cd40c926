package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	cserrors "github.com/Aman-CERP/chatsearch/internal/errors"
	"github.com/Aman-CERP/chatsearch/internal/output"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	chatID   int64
	page     int
	pageSize int
	json     bool
	local    bool // bypass the daemon
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the messages of one chat",
		Long: `Search the indexed messages of one chat, newest first.

Uses the daemon when it is running, otherwise opens the index store
directly (which fails while another process holds it).`,
		Example: `  chatsearch search --chat=-1001234567890 cat
  chatsearch search --chat=-1001234567890 "cat food" --page 2
  chatsearch search --chat=-1001234567890 cat --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().Int64Var(&opts.chatID, "chat", 0, "Chat id to search (required)")
	cmd.Flags().IntVarP(&opts.page, "page", "p", 1, "Page number")
	cmd.Flags().IntVarP(&opts.pageSize, "page-size", "n", 0, "Hits per page (default search.page_size)")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&opts.local, "local", false, "Open the store directly (bypass daemon)")
	_ = cmd.MarkFlagRequired("chat")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	if strings.TrimSpace(query) == "" {
		return cserrors.New(cserrors.ErrCodeInvalidQuery, "query cannot be empty", nil)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if opts.pageSize <= 0 {
		opts.pageSize = cfg.Search.PageSize
	}

	b, _, cleanup, err := connect(cfg, opts.local)
	if err != nil {
		return err
	}
	defer cleanup()

	slog.Info("search_started",
		slog.Int64("channel_id", opts.chatID),
		slog.String("query", query),
		slog.Int("page", opts.page))

	res, err := b.Search(ctx, opts.chatID, query, opts.page, opts.pageSize)
	if err != nil {
		return err
	}

	slog.Info("search_complete", slog.Int("total", res.Total), slog.Int("hits", len(res.Hits)))

	out := output.New(cmd.OutOrStdout())
	if opts.json {
		return out.JSON(res)
	}
	out.Result(res)
	return nil
}
