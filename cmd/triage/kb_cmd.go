package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/steveyegge/triage/internal/kb"
	"github.com/steveyegge/triage/internal/types"
)

var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Manage the knowledge base",
	Long: `Manage the team routing rules and the label set the model is given.

The knowledge base holds two JSON documents, by default under the keys
"teams" and "labels":

  teams:  {"<team-id>": {"name": "...", "keywords": [...], "domains": [...]}}
  labels: {"nodes": [{"id": "<label-id>", "name": "..."}]}`,
}

var kbPutCmd = &cobra.Command{
	Use:   "put <key> <file>",
	Short: "Store a document from a JSON or YAML file",
	Long: `Store a knowledge base document.

JSON files may contain comments and trailing commas. YAML files (.yaml, .yml)
are converted to JSON. The document is checked against the shape expected for
the teams or labels key before it is stored.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, path := args[0], args[1]
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		doc, err := kb.Normalize(path, raw)
		if err != nil {
			return err
		}
		if err := checkDocument(key, doc); err != nil {
			return err
		}

		ctx := cmd.Context()
		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		store, err := a.writableKB()
		if err != nil {
			return err
		}
		if err := store.PutDocument(ctx, key, doc); err != nil {
			return err
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Stored %s (%d bytes)\n", green("✓"), key, len(doc))
		return nil
	},
}

var kbGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a stored document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		doc, err := a.kbStore.Get(ctx, args[0])
		if err != nil {
			return fmt.Errorf("key %q: %w", args[0], err)
		}
		var out bytes.Buffer
		if err := json.Indent(&out, doc, "", "  "); err != nil {
			// Stored verbatim; show it as is
			out.Reset()
			out.Write(doc)
		}
		out.WriteByte('\n')
		_, err = out.WriteTo(os.Stdout)
		return err
	},
}

var kbValidateCmd = &cobra.Command{
	Use:   "validate [label-id...]",
	Short: "Check the documents, and optionally which label IDs would be kept",
	Long: `Check that the teams and labels documents are present and well formed.

Label IDs given as arguments are filtered the same way model output is: IDs
absent from the label set are reported as dropped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		var failed bool
		for _, key := range []string{cfg.KB.TeamsKey, cfg.KB.LabelsKey} {
			doc, err := a.kbStore.Get(ctx, key)
			if err == nil {
				err = checkDocument(key, doc)
			}
			if err != nil {
				failed = true
				fmt.Printf("%s %s: %v\n", color.RedString("✗"), key, err)
				continue
			}
			fmt.Printf("%s %s\n", color.GreenString("✓"), key)
		}
		if failed {
			return fmt.Errorf("knowledge base is incomplete")
		}

		knowledge, err := a.accessor()
		if err != nil {
			return err
		}
		loaded, err := knowledge.Load(ctx)
		if err != nil {
			return err
		}
		printKnowledgeBase(os.Stdout, loaded)

		if len(args) > 0 {
			printLabelCheck(os.Stdout, args, kb.ValidateLabelIDs(loaded.Labels, args))
		}
		return nil
	},
}

func printLabelCheck(w io.Writer, candidates, kept []string) {
	keep := make(map[string]bool, len(kept))
	for _, id := range kept {
		keep[id] = true
	}
	fmt.Fprintf(w, "\nLabel check (%d of %d kept):\n", len(kept), len(candidates))
	for _, id := range candidates {
		if keep[id] {
			fmt.Fprintf(w, "  %s %s\n", color.GreenString("kept"), id)
		} else {
			fmt.Fprintf(w, "  %s %s\n", color.RedString("dropped"), id)
		}
	}
}

// checkDocument decodes doc strictly into the shape for key. Keys other than
// the configured teams and labels keys only need to be valid JSON.
func checkDocument(key string, doc []byte) error {
	var target any
	switch key {
	case cfg.KB.TeamsKey:
		target = &types.TeamKnowledgeBase{}
	case cfg.KB.LabelsKey:
		target = &types.LabelKnowledgeBase{}
	default:
		if !json.Valid(doc) {
			return fmt.Errorf("document is not valid JSON")
		}
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return fmt.Errorf("malformed %s document: %w", key, err)
	}
	if labels, ok := target.(*types.LabelKnowledgeBase); ok {
		for i, n := range labels.Nodes {
			if n.ID == "" {
				return fmt.Errorf("malformed %s document: node %d has no id", key, i)
			}
		}
	}
	return nil
}

func printKnowledgeBase(w io.Writer, k *types.KnowledgeBase) {
	cyan := color.New(color.FgCyan).SprintFunc()

	ids := make([]string, 0, len(k.Teams))
	for id := range k.Teams {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fmt.Fprintf(w, "\nTeams (%d):\n", len(ids))
	for _, id := range ids {
		rule := k.Teams[id]
		fmt.Fprintf(w, "  %s %s\n", cyan(id), rule.Name)
	}

	var labels []types.Label
	if k.Labels != nil {
		labels = k.Labels.Nodes
	}
	fmt.Fprintf(w, "\nLabels (%d):\n", len(labels))
	for _, l := range labels {
		fmt.Fprintf(w, "  %s %s\n", cyan(l.ID), l.Name)
	}
}

func init() {
	kbCmd.AddCommand(kbPutCmd, kbGetCmd, kbValidateCmd)
	rootCmd.AddCommand(kbCmd)
}
