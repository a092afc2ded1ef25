package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"wharf/internal/api"
	"wharf/internal/hoster"
	"wharf/internal/ipc"
	"wharf/internal/logging"
	"wharf/internal/search"
)

func newSearchCommand(ctx *commandContext) *cobra.Command {
	var season int
	var episode int
	var limit int
	var category string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "search <title>...",
		Short: "Search the host catalog for downloadable files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := api.SearchRequest{
				Title:    strings.Join(args, " "),
				Season:   season,
				Episode:  episode,
				Category: category,
				Limit:    limit,
			}

			results, err := runSearch(cmd, ctx, req)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, api.SearchResponse{Results: results})
			}
			if len(results) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No results")
				return nil
			}
			table := renderTable(
				[]string{"Score", "Filename", "Episode", "Size", "Category", "Reference"},
				buildSearchRows(results),
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			)
			fmt.Fprintln(cmd.OutOrStdout(), table)
			return nil
		},
	}

	cmd.Flags().IntVarP(&season, "season", "s", 0, "Season number for episode searches")
	cmd.Flags().IntVarP(&episode, "episode", "e", 0, "Episode number for episode searches")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")
	cmd.Flags().StringVar(&category, "category", "", "Restrict results to a category")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit results as JSON")
	return cmd
}

// runSearch goes through the daemon when it is up so results share its host
// client and rate limiting; otherwise it runs the pipeline in-process.
func runSearch(cmd *cobra.Command, ctx *commandContext, req api.SearchRequest) ([]api.SearchResult, error) {
	if client, err := ipc.Dial(ctx.socketPath()); err == nil {
		defer client.Close()
		resp, err := client.Search(req)
		if err != nil {
			return nil, err
		}
		return resp.Results, nil
	}

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	host, err := hoster.NewFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	orchestrator := search.New(host, cfg, logging.NewNop())
	cands, err := orchestrator.Search(cmd.Context(), search.Request{
		Title:    req.Title,
		Season:   req.Season,
		Episode:  req.Episode,
		Category: req.Category,
		Limit:    req.Limit,
	})
	if err != nil {
		return nil, err
	}
	return api.FromCandidates(cands), nil
}
