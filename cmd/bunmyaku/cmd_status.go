package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperjump/bunmyaku/internal/cli"
	"github.com/hyperjump/bunmyaku/internal/storage"
	"github.com/hyperjump/bunmyaku/internal/vector"
)

var statusServerURL string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index scopes, conversation count and disk usage",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusServerURL, "server", "", "server URL (empty = read local storage)")
}

// statusResponse is the shape of GET /api/v1/status.
type statusResponse struct {
	Scopes         []vector.ScopeStats `json:"scopes"`
	Conversations  int64               `json:"conversations"`
	DiskUsageBytes int64               `json:"disk_usage_bytes"`
	Config         struct {
		DataDir      string `json:"data_dir"`
		DatabasePath string `json:"database_path"`
	} `json:"config"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	f, err := format()
	if err != nil {
		return err
	}
	var status *cli.Status
	if statusServerURL != "" {
		var resp statusResponse
		if err := getJSON(statusServerURL+"/api/v1/status", &resp); err != nil {
			return err
		}
		status = &cli.Status{
			Scopes:         resp.Scopes,
			Conversations:  resp.Conversations,
			DiskUsageBytes: resp.DiskUsageBytes,
			DataDir:        resp.Config.DataDir,
			DatabasePath:   resp.Config.DatabasePath,
		}
	} else {
		c, err := setup()
		if err != nil {
			return err
		}
		defer c.Close()
		if status, err = localStatus(cmd, c); err != nil {
			return err
		}
	}
	return cli.WriteStatus(cmd.OutOrStdout(), status, f)
}

// localStatus loads every scope it can. Scopes without a snapshot are reported
// as missing instead of failing the command.
func localStatus(cmd *cobra.Command, c *Components) (*cli.Status, error) {
	ctx := cmd.Context()
	missing := make(map[string]bool)
	for _, scope := range c.Registry.Scopes() {
		x, err := c.Registry.Index(scope)
		if err != nil {
			return nil, err
		}
		if err := x.LoadData(ctx); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				missing[scope] = true
				continue
			}
			return nil, fmt.Errorf("load scope %s: %w", scope, err)
		}
	}
	stats := c.Registry.Stats()
	for i := range stats {
		stats[i].Missing = missing[stats[i].Scope]
	}
	count, err := c.Resources.CountConversations(ctx)
	if err != nil {
		return nil, err
	}
	diskBytes, err := storage.DiskUsageBytes(c.Config.Storage.DataDir, c.Config.Storage.DatabasePath)
	if err != nil {
		return nil, err
	}
	return &cli.Status{
		Scopes:         stats,
		Conversations:  count,
		DiskUsageBytes: diskBytes,
		DataDir:        c.Config.Storage.DataDir,
		DatabasePath:   c.Config.Storage.DatabasePath,
	}, nil
}
