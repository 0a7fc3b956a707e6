package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"racecal-backend/internal/config"
	"racecal-backend/internal/engine"
	"racecal-backend/internal/filter"
	"racecal-backend/internal/logging"
	"racecal-backend/internal/metadata"
	"racecal-backend/internal/store"
)

type rootOptions struct {
	configDir string
	verbose   bool
}

func newRootCmd() *cobra.Command {
	var opts rootOptions
	cmd := &cobra.Command{
		Use:           "contentctl",
		Short:         "Query, export and import calendar content",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configDir, "config", ".", "Directory containing app.yaml")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log engine activity to stderr")

	cmd.AddCommand(
		newDescribeCmd(),
		newMigrateCmd(&opts),
		newQueryCmd(&opts),
		newExportCmd(&opts),
		newImportCmd(&opts),
	)
	return cmd
}

// session is an open store with an engine on top.
type session struct {
	store  *store.Store
	engine *engine.Engine
}

func (s *session) Close() { s.store.Close() }

func openSession(cmd *cobra.Command, opts *rootOptions) (*session, error) {
	cfg, err := config.LoadFrom(opts.configDir)
	if err != nil {
		return nil, err
	}
	level := "warn"
	if opts.verbose {
		level = "debug"
	}
	log := logging.New(logging.Config{Level: level, Pretty: true, Output: cmd.ErrOrStderr()})

	s, err := store.New(cmd.Context(), cfg.Database)
	if err != nil {
		return nil, err
	}
	reg := metadata.MustDefault()
	if err := store.NewMigrator(s).Migrate(cmd.Context(), reg); err != nil {
		s.Close()
		return nil, err
	}
	return &session{store: s, engine: engine.New(s, reg, cfg.Engine, log)}, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseFilter(raw string) (filter.Expression, error) {
	var expr filter.Expression
	if strings.TrimSpace(raw) == "" {
		return expr, nil
	}
	if err := json.Unmarshal([]byte(raw), &expr); err != nil {
		return expr, fmt.Errorf("invalid --filter: %w", err)
	}
	return expr, nil
}

func newDescribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "describe [entity]",
		Short: "Print entity metadata",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := metadata.MustDefault()
			if len(args) == 0 {
				return writeJSON(cmd.OutOrStdout(), reg.DescribeAll())
			}
			entity, err := reg.Describe(args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), entity)
		},
	}
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create missing tables for every entity",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "schema ready")
			return nil
		},
	}
}

func newQueryCmd(opts *rootOptions) *cobra.Command {
	var (
		rawFilter string
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "query <entity>",
		Short: "Print records matching a filter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			expr, err := parseFilter(rawFilter)
			if err != nil {
				return err
			}
			s, err := openSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			records, err := s.engine.Query(cmd.Context(), args[0], expr, limit)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), records)
		},
	}
	cmd.Flags().StringVar(&rawFilter, "filter", "", `Filter expression as JSON, e.g. {"conditions":[{"field":"featured","operator":"equals","value":true}]}`)
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum records (default from config)")
	return cmd
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var (
		rawFilter string
		output    string
	)
	cmd := &cobra.Command{
		Use:   "export <entity>",
		Short: "Write matching records as an import batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			expr, err := parseFilter(rawFilter)
			if err != nil {
				return err
			}
			s, err := openSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			batch, err := s.engine.Export(cmd.Context(), args[0], expr)
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				return writeJSON(cmd.OutOrStdout(), batch)
			}
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("create %s: %w", output, err)
			}
			defer f.Close()
			if err := writeJSON(f, batch); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "exported %d %s records to %s\n", batch.ItemCount, batch.EntityType, output)
			return nil
		},
	}
	cmd.Flags().StringVar(&rawFilter, "filter", "", "Filter expression as JSON")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	return cmd
}

type importOptions struct {
	policy       string
	dryRun       bool
	validateOnly bool
	actingAs     string
	condition    string
}

func newImportCmd(opts *rootOptions) *cobra.Command {
	var iopts importOptions
	cmd := &cobra.Command{
		Use:   "import <entity> <file|->",
		Short: "Reconcile an exported batch into the database",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := engine.ParseConflictResolution(iopts.policy)
			if err != nil {
				return err
			}
			batch, err := readBatch(cmd, args[1])
			if err != nil {
				return err
			}
			s, err := openSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			if iopts.validateOnly {
				report, err := s.engine.Validate(cmd.Context(), batch, args[0])
				if err != nil {
					return err
				}
				if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
				if !report.IsValid {
					return fmt.Errorf("%d invalid items", len(report.Errors))
				}
				return nil
			}

			res, err := s.engine.Reconcile(cmd.Context(), batch, args[0], policy, iopts.dryRun, engine.ImportOptions{
				ActingIdentity: iopts.actingAs,
				Condition:      iopts.condition,
			})
			if err != nil {
				return err
			}
			if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("%d of %d items failed", res.Summary.Errors, len(res.PerItem))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&iopts.policy, "policy", "skip", "Conflict resolution: skip, update or create_new")
	cmd.Flags().BoolVar(&iopts.dryRun, "dry-run", false, "Report outcomes without writing")
	cmd.Flags().BoolVar(&iopts.validateOnly, "validate", false, "Only validate the batch")
	cmd.Flags().StringVar(&iopts.actingAs, "as", "", "Acting identity recorded as owner of created records")
	cmd.Flags().StringVar(&iopts.condition, "condition", "", `Only import items matching an expression, e.g. item.featured == true`)
	return cmd
}

func readBatch(cmd *cobra.Command, path string) (*engine.ImportBatch, error) {
	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}
	var batch engine.ImportBatch
	if err := json.NewDecoder(r).Decode(&batch); err != nil {
		return nil, fmt.Errorf("decode batch: %w", err)
	}
	return &batch, nil
}
