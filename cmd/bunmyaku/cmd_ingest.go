package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/hyperjump/bunmyaku/internal/embedding"
	"github.com/hyperjump/bunmyaku/internal/models"
	"github.com/hyperjump/bunmyaku/internal/storage"
	"github.com/hyperjump/bunmyaku/internal/vector"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <scope> <file|->",
	Short: "Add vector records to a scope and persist its snapshot",
	Long: `Read one JSON record per line and upsert it into the scope's index, then
persist the snapshot. Records without a vector are embedded from their text:
  {"id":"doc-1","vector":[0.1,0.2],"tokens":40}
  {"id":"doc-2","text":"restart the worker pool","tokens":12}`,
	Args: cobra.ExactArgs(2),
	RunE: runIngest,
}

var loadCmd = &cobra.Command{
	Use:   "load <file|->",
	Short: "Load agents, tools, conversations, messages and experiences into the resource store",
	Long: `Load a YAML or JSON bundle of resources into the resource database.
Existing rows with the same ids are replaced.`,
	Args: cobra.ExactArgs(1),
	RunE: runLoad,
}

type ingestRecord struct {
	ID     string    `json:"id"`
	Vector []float32 `json:"vector,omitempty"`
	Text   string    `json:"text,omitempty"`
	Tokens int       `json:"tokens"`
}

func runIngest(cmd *cobra.Command, args []string) error {
	data, err := readInput(cmd, args[1])
	if err != nil {
		return err
	}
	c, err := setup()
	if err != nil {
		return err
	}
	defer c.Close()

	x, err := c.Registry.Index(args[0])
	if err != nil {
		return err
	}
	n, err := ingest(cmd.Context(), x, c.Embedder, args[0], data)
	if err != nil {
		return err
	}
	c.Logger.Debug("scope ingested", zap.String("scope", args[0]), zap.Int("records", n), zap.Int("items", x.Len()))
	fmt.Fprintf(cmd.OutOrStdout(), "Ingested %d records into %s (%d items)\n", n, args[0], x.Len())
	return nil
}

// ingest upserts every record of data into x and persists it. Nothing is persisted on error.
func ingest(ctx context.Context, x *vector.Index, embedder embedding.Embedder, scope string, data []byte) (int, error) {
	records, err := storage.SplitRecords(data)
	if err != nil {
		return 0, err
	}
	for i, raw := range records {
		var rec ingestRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return 0, fmt.Errorf("line %d: %w", i+1, err)
		}
		vec := rec.Vector
		if len(vec) == 0 && rec.Text != "" {
			if vec, err = embedder.Embed(ctx, rec.Text); err != nil {
				return 0, fmt.Errorf("line %d: %w", i+1, err)
			}
		}
		if err := x.AddItem(ctx, rec.ID, vec, rec.Tokens, scope); err != nil {
			return 0, fmt.Errorf("line %d: %w", i+1, err)
		}
	}
	if err := x.Persist(ctx); err != nil {
		return 0, err
	}
	return len(records), nil
}

// resourceBundle is the document accepted by the load command.
// Field names follow the models' JSON names in both YAML and JSON input.
type resourceBundle struct {
	Agents        []models.Agent        `json:"agents"`
	ToolFunctions []models.ToolFunction `json:"tool_functions"`
	Conversations []models.Conversation `json:"conversations"`
	Messages      []bundleMessage       `json:"messages"`
	Experiences   []models.Experience   `json:"experiences"`
}

type bundleMessage struct {
	ConversationID string `json:"conversation_id"`
	Name           string `json:"name"`
	models.Message
}

// parseBundle decodes YAML (a superset of JSON) and maps it onto the JSON field names.
func parseBundle(data []byte) (*resourceBundle, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse bundle: %w", err)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("parse bundle: %w", err)
	}
	var b resourceBundle
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("parse bundle: %w", err)
	}
	return &b, nil
}

func runLoad(cmd *cobra.Command, args []string) error {
	data, err := readInput(cmd, args[0])
	if err != nil {
		return err
	}
	bundle, err := parseBundle(data)
	if err != nil {
		return err
	}
	c, err := setup()
	if err != nil {
		return err
	}
	defer c.Close()
	if err := loadBundle(cmd.Context(), c.Resources, bundle); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d agents, %d tools, %d conversations, %d messages, %d experiences\n",
		len(bundle.Agents), len(bundle.ToolFunctions), len(bundle.Conversations), len(bundle.Messages), len(bundle.Experiences))
	return nil
}

func loadBundle(ctx context.Context, res *storage.SQLiteResources, b *resourceBundle) error {
	for i := range b.Agents {
		if err := res.PutAgent(ctx, &b.Agents[i]); err != nil {
			return fmt.Errorf("agent %s: %w", b.Agents[i].ID, err)
		}
	}
	for i := range b.ToolFunctions {
		if err := res.PutToolFunction(ctx, &b.ToolFunctions[i]); err != nil {
			return fmt.Errorf("tool function %s: %w", b.ToolFunctions[i].ID, err)
		}
	}
	for i := range b.Conversations {
		if err := res.PutConversation(ctx, &b.Conversations[i]); err != nil {
			return fmt.Errorf("conversation %s: %w", b.Conversations[i].ID, err)
		}
	}
	for i := range b.Messages {
		m := &b.Messages[i]
		if err := res.PutMessage(ctx, m.ConversationID, m.Name, &m.Message); err != nil {
			return fmt.Errorf("message %s: %w", m.Name, err)
		}
	}
	for i := range b.Experiences {
		if err := res.PutExperience(ctx, &b.Experiences[i]); err != nil {
			return fmt.Errorf("experience %s: %w", b.Experiences[i].ID, err)
		}
	}
	return nil
}
