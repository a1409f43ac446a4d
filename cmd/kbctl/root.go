package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"kbquery/application/ports"
	"kbquery/application/queries"
	"kbquery/domain/graph"
	"kbquery/infrastructure/labels"
	"kbquery/infrastructure/persistence/memory"
	"kbquery/infrastructure/persistence/sqlite"
)

type rootOptions struct {
	dbPath       string
	snapshotPath string
	labelsPath   string
	verbose      bool

	scope graph.Scope
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:          "kbctl",
		Short:        "Query and load knowledge-base graphs",
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.dbPath, "db", "", "Path to the SQLite fast store")
	flags.StringVar(&opts.snapshotPath, "snapshot", "", "Snapshot JSON served as the generic source")
	flags.StringVar(&opts.labelsPath, "labels", "", "YAML label catalog for facets")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Log tier decisions to stderr")
	flags.StringVar(&opts.scope.OrgID, "org", "", "Organization id")
	flags.StringVar(&opts.scope.DomainID, "domain", "", "Domain id")
	flags.StringVar(&opts.scope.ProjectID, "project", "", "Project id")
	flags.StringVar(&opts.scope.TeamID, "team", "", "Team id")

	cmd.AddCommand(
		newImportCmd(opts),
		newNodesCmd(opts),
		newEdgesCmd(opts),
		newNodeCmd(opts),
		newSceneCmd(opts),
		newFacetsCmd(opts),
	)
	return cmd
}

func (o *rootOptions) logger() *zap.Logger {
	if !o.verbose {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// service opens the configured sources. The returned func releases them.
func (o *rootOptions) service(ctx context.Context) (*queries.GraphQueryService, func(), error) {
	logger := o.logger()
	cleanup := func() { _ = logger.Sync() }

	var fast ports.FastGraphSource
	if o.dbPath != "" {
		store, err := sqlite.Open(ctx, o.dbPath, logger.Named("sqlite"))
		if err != nil {
			return nil, nil, err
		}
		fast = store
		cleanup = func() {
			_ = store.Close()
			_ = logger.Sync()
		}
	}

	var generic ports.GenericGraphSource
	if o.snapshotPath != "" {
		store, err := memory.NewStoreFromFile(o.snapshotPath)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		generic = store
	}

	var resolver ports.LabelResolver
	if o.labelsPath != "" {
		r, err := labels.LoadCatalogResolver(o.labelsPath, logger.Named("labels"))
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		resolver = r
	}

	svc := queries.NewGraphQueryService(fast, generic, nil, resolver, nil, logger, queries.DefaultOptions())
	return svc, cleanup, nil
}

// run opens the service, runs fn and prints its result as JSON.
func (o *rootOptions) run(cmd *cobra.Command, fn func(ctx context.Context, svc *queries.GraphQueryService) (interface{}, error)) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	svc, cleanup, err := o.service(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := fn(ctx, svc)
	if err != nil {
		return err
	}
	return printJSON(cmd, result)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}

func readSnapshot(path string) (*graph.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()
	return graph.DecodeSnapshot(f)
}
