package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	service "github.com/okian/shelfrank/internal/app"
	"github.com/okian/shelfrank/internal/domain/model"
	"github.com/okian/shelfrank/internal/domain/tree"
	"github.com/okian/shelfrank/pkg/logger"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Output formats.
const (
	formatJSON = "json"
	formatYAML = "yaml"
)

func encode(w io.Writer, format string, v any) error {
	switch strings.ToLower(format) {
	case "", formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown output format %q", format)
}

// catalog is the ingest file layout. JSON files work too.
type catalog struct {
	Entities []struct {
		ID         string `yaml:"id"`
		Kind       string `yaml:"kind"`
		WorkSet    string `yaml:"work_set"`
		Name       string `yaml:"name"`
		UID        string `yaml:"uid"`
		ParentID   string `yaml:"parent_id"`
		Controlled bool   `yaml:"controlled"`
	} `yaml:"entities"`
	Memberships []struct {
		WorkID  string `yaml:"work_id"`
		TopicID string `yaml:"topic_id"`
	} `yaml:"memberships"`
	Usage []struct {
		ID     string `yaml:"id"`
		WorkID string `yaml:"work_id"`
		Date   string `yaml:"date"`
		Value  int64  `yaml:"value"`
		Type   string `yaml:"type"`
	} `yaml:"usage"`
	Candidates []struct {
		ID     string              `yaml:"id"`
		Title  string              `yaml:"title"`
		Topics map[string][]string `yaml:"topics"`
	} `yaml:"candidates"`
}

func (c catalog) model() ([]model.Entity, []model.Membership, []model.UsageEvent, []model.Candidate, error) {
	entities := make([]model.Entity, 0, len(c.Entities))
	for _, e := range c.Entities {
		kind, err := model.ParseKind(e.Kind)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("entity %s: %w", e.ID, err)
		}
		entities = append(entities, model.Entity{
			ID: e.ID, Kind: kind, WorkSet: e.WorkSet, Name: e.Name,
			UID: e.UID, ParentID: e.ParentID, Controlled: e.Controlled,
		})
	}
	links := make([]model.Membership, 0, len(c.Memberships))
	for _, m := range c.Memberships {
		links = append(links, model.Membership{WorkID: m.WorkID, TopicID: m.TopicID})
	}
	events := make([]model.UsageEvent, 0, len(c.Usage))
	for _, u := range c.Usage {
		events = append(events, model.UsageEvent{ID: u.ID, WorkID: u.WorkID, Date: u.Date, Value: u.Value, Type: u.Type})
	}
	candidates := make([]model.Candidate, 0, len(c.Candidates))
	for _, cand := range c.Candidates {
		topics := make(map[model.Kind][]string, len(cand.Topics))
		for name, ids := range cand.Topics {
			kind, err := model.ParseKind(name)
			if err != nil {
				return nil, nil, nil, nil, fmt.Errorf("candidate %s: %w", cand.ID, err)
			}
			topics[kind] = ids
		}
		candidates = append(candidates, model.Candidate{ID: cand.ID, Title: cand.Title, TopicIDs: topics})
	}
	return entities, links, events, candidates, nil
}

func newIngestCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load entities, memberships, usage and candidates from a YAML or JSON file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			raw, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			var c catalog
			if err := yaml.Unmarshal(raw, &c); err != nil {
				return fmt.Errorf("parse %s: %w", path, err)
			}
			entities, links, events, candidates, err := c.model()
			if err != nil {
				return err
			}

			deps, err := setup(ctx)
			if err != nil {
				return err
			}
			defer deps.Close()
			if err := deps.store.PutEntities(ctx, entities); err != nil {
				return err
			}
			if err := deps.store.PutMemberships(ctx, links); err != nil {
				return err
			}
			if err := deps.store.PutUsage(ctx, events); err != nil {
				return err
			}
			if err := deps.store.PutCandidates(ctx, candidates); err != nil {
				return err
			}
			deps.log.Info(ctx, "catalog ingested",
				logger.String("file", path),
				logger.Int("entities", len(entities)),
				logger.Int("memberships", len(links)),
				logger.Int("usage", len(events)),
				logger.Int("candidates", len(candidates)),
			)
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "file", "f", "", "catalog file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newRecomputeCmd() *cobra.Command {
	var (
		workSet string
		kinds   []string
		format  string
	)
	cmd := &cobra.Command{
		Use:       "recompute static|growth|normalized|candidates|all",
		Short:     "Recompute stored scores for a work set",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"static", "growth", "normalized", "candidates", "all"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			stage, err := service.ParseStage(args[0])
			if err != nil {
				return err
			}
			parsed := make([]model.Kind, 0, len(kinds))
			for _, k := range kinds {
				kind, err := model.ParseKind(k)
				if err != nil {
					return err
				}
				parsed = append(parsed, kind)
			}

			deps, err := setup(ctx)
			if err != nil {
				return err
			}
			defer deps.Close()
			stats, err := deps.svc.Recompute(ctx, stage, workSet, parsed...)
			if encErr := encode(cmd.OutOrStdout(), format, stats); encErr != nil {
				return encErr
			}
			return err
		},
	}
	cmd.Flags().StringVar(&workSet, "work-set", "", "work set id")
	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "entity kinds (default: every kind the stage supports)")
	cmd.Flags().StringVar(&format, "format", formatJSON, "output format: json or yaml")
	_ = cmd.MarkFlagRequired("work-set")
	return cmd
}

func newExportTreeCmd() *cobra.Command {
	var (
		req     service.ExportRequest
		mode    string
		filters string
		format  string
	)
	cmd := &cobra.Command{
		Use:   "export-tree",
		Short: "Aggregate subject trees bottom-up and print them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			filter, err := model.ParseCandidateFilter(filters)
			if err != nil {
				return err
			}
			req.Filter = filter
			req.Mode = tree.Mode(mode)

			deps, err := setup(ctx)
			if err != nil {
				return err
			}
			defer deps.Close()
			if req.Root == "" {
				docs, err := deps.svc.ExportTrees(ctx, req)
				if err != nil {
					return err
				}
				return encode(cmd.OutOrStdout(), format, docs)
			}
			doc, err := deps.svc.ExportTree(ctx, req)
			if err != nil {
				return err
			}
			return encode(cmd.OutOrStdout(), format, doc)
		},
	}
	cmd.Flags().StringVar(&req.WorkSet, "work-set", "", "work set id")
	cmd.Flags().StringVar(&req.Root, "root", "", "root uid, e.g. PSH-ROOT (default: every configured schema)")
	cmd.Flags().StringVar(&mode, "mode", string(tree.ModeScore), "score, candidates_count or growth")
	cmd.Flags().StringVar(&req.Window, "window", "", "static window for score mode (default: all)")
	cmd.Flags().StringVar(&filters, "filters", "", `candidate filter as JSON, e.g. {"author":["id"]}`)
	cmd.Flags().StringVar(&format, "format", formatJSON, "output format: json or yaml")
	_ = cmd.MarkFlagRequired("work-set")
	return cmd
}

func newTopicsCmd() *cobra.Command {
	var (
		workSet string
		kind    string
		order   string
		limit   int
		format  string
	)
	cmd := &cobra.Command{
		Use:   "topics",
		Short: "List the best ranked entities of a kind",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			k, err := model.ParseKind(kind)
			if err != nil {
				return err
			}
			o, err := service.ParseOrder(order)
			if err != nil {
				return err
			}
			deps, err := setup(ctx)
			if err != nil {
				return err
			}
			defer deps.Close()
			rows, err := deps.svc.TopTopics(ctx, workSet, k, o, limit)
			if err != nil {
				return err
			}
			return encode(cmd.OutOrStdout(), format, rows)
		},
	}
	cmd.Flags().StringVar(&workSet, "work-set", "", "work set id")
	cmd.Flags().StringVar(&kind, "kind", string(model.KindAuthor), "entity kind")
	cmd.Flags().StringVar(&order, "order", string(service.OrderScore), "score or growth")
	cmd.Flags().IntVar(&limit, "limit", 10, "number of rows")
	cmd.Flags().StringVar(&format, "format", formatJSON, "output format: json or yaml")
	_ = cmd.MarkFlagRequired("work-set")
	return cmd
}
