package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperjump/bunmyaku/internal/cli"
	"github.com/hyperjump/bunmyaku/internal/models"
	"github.com/hyperjump/bunmyaku/internal/vector"
)

var (
	queryServerURL   string
	queryScopes      []string
	queryThreshold   float64
	queryLimit       int
	queryGlobalLimit int
)

var queryCmd = &cobra.Command{
	Use:   "query [flags] <text>",
	Short: "Find the most similar items across index scopes",
	Long: `Embed the query text and rank items of the selected scopes by cosine similarity.

The query is all remaining arguments joined by spaces. --limit caps each scope
before merging; --global-limit truncates the merged list.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&queryServerURL, "server", "", "server URL (empty = read the index files directly)")
	queryCmd.Flags().StringSliceVar(&queryScopes, "scope", nil, "scopes to search (default: all)")
	queryCmd.Flags().Float64Var(&queryThreshold, "threshold", 0, "minimum cosine similarity")
	queryCmd.Flags().IntVar(&queryLimit, "limit", 10, "results per scope (0 = no limit)")
	queryCmd.Flags().IntVar(&queryGlobalLimit, "global-limit", 0, "results after merging (0 = no limit)")
}

// buildQueryText joins positional args so multi-word queries work with or without quotes.
func buildQueryText(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func runQuery(cmd *cobra.Command, args []string) error {
	f, err := format()
	if err != nil {
		return err
	}
	req := &models.QueryRequest{
		Text:        buildQueryText(args),
		Scopes:      queryScopes,
		Threshold:   queryThreshold,
		Limit:       queryLimit,
		GlobalLimit: queryGlobalLimit,
	}
	if err := req.Validate(); err != nil {
		return err
	}

	var response *models.QueryResponse
	if queryServerURL != "" {
		response = &models.QueryResponse{}
		if err := postJSON(queryServerURL+"/api/v1/search", req, response); err != nil {
			return err
		}
	} else {
		c, err := setup()
		if err != nil {
			return err
		}
		defer c.Close()
		if response, err = queryDirect(cmd, c, req); err != nil {
			return err
		}
	}
	return cli.WriteQueryResults(cmd.OutOrStdout(), response, f)
}

func queryDirect(cmd *cobra.Command, c *Components, req *models.QueryRequest) (*models.QueryResponse, error) {
	ctx := cmd.Context()
	start := time.Now()
	vec, err := c.Embedder.Embed(ctx, req.Text)
	if err != nil {
		return nil, err
	}
	searchers, err := c.Registry.Searchers(req.Scopes)
	if err != nil {
		return nil, err
	}
	results, err := vector.Search(ctx, searchers, vec, req.Threshold, req.Limit, req.GlobalLimit)
	if err != nil {
		return nil, err
	}
	scopes := req.Scopes
	if len(scopes) == 0 {
		scopes = c.Registry.Scopes()
	}
	return &models.QueryResponse{
		Results:   results,
		Total:     len(results),
		QueryTime: time.Since(start).Milliseconds(),
		Scopes:    scopes,
	}, nil
}

// postJSON posts body to url and decodes a 2xx JSON response into out.
func postJSON(url string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func getJSON(url string, out any) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
