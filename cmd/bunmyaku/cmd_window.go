package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/hyperjump/bunmyaku/internal/cli"
	"github.com/hyperjump/bunmyaku/internal/models"
	"github.com/hyperjump/bunmyaku/internal/storage"
)

var (
	windowModel    string
	windowReserved int
)

var windowCmd = &cobra.Command{
	Use:   "window [flags] <conversation-id>",
	Short: "Assemble the context window for a conversation",
	Long: `Build the message and tool lists for the next completion call of a conversation.

--model defaults to the conversation's model; --reserved defaults to
window.reserved_output_tokens from the config.`,
	Args: cobra.ExactArgs(1),
	RunE: runWindow,
}

var appendCmd = &cobra.Command{
	Use:   "append <conversation-id> <file|->",
	Short: "Append identifiers to a conversation's reference log",
	Long: `Append identifiers to the end of a conversation's reference log.

The input holds one JSON identifier per line, for example:
  {"name":"msg-1","type":"message","role":"user","tokens":12}`,
	Args: cobra.ExactArgs(2),
	RunE: runAppend,
}

func init() {
	windowCmd.Flags().StringVar(&windowModel, "model", "", "target model (default: the conversation's model)")
	windowCmd.Flags().IntVar(&windowReserved, "reserved", 0, "tokens reserved for the response (default from config)")
}

func runWindow(cmd *cobra.Command, args []string) error {
	f, err := format()
	if err != nil {
		return err
	}
	c, err := setup()
	if err != nil {
		return err
	}
	defer c.Close()
	ctx := cmd.Context()

	a, err := c.Assembler(args[0])
	if err != nil {
		return err
	}
	model := windowModel
	if model == "" {
		if model, err = a.DefaultModel(ctx); err != nil {
			return err
		}
	}
	reserved := windowReserved
	if !cmd.Flags().Changed("reserved") {
		reserved = c.Config.Window.ReservedOutputTokens
	}

	win, err := a.Build(ctx, model, reserved)
	if err != nil {
		return err
	}
	return cli.WriteWindow(cmd.OutOrStdout(), win, f)
}

func runAppend(cmd *cobra.Command, args []string) error {
	data, err := readInput(cmd, args[1])
	if err != nil {
		return err
	}
	ids, err := parseIdentifiers(data)
	if err != nil {
		return err
	}
	c, err := setup()
	if err != nil {
		return err
	}
	defer c.Close()

	a, err := c.Assembler(args[0])
	if err != nil {
		return err
	}
	if err := a.Append(cmd.Context(), ids); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Appended %d identifiers to %s\n", len(ids), args[0])
	return nil
}

// readInput reads path, or stdin when path is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

func parseIdentifiers(data []byte) ([]models.Identifier, error) {
	records, err := storage.SplitRecords(data)
	if err != nil {
		return nil, err
	}
	ids := make([]models.Identifier, 0, len(records))
	for i, raw := range records {
		var id models.Identifier
		if err := json.Unmarshal(raw, &id); err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
