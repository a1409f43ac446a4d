package main

import (
	"context"
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"kbquery/application/queries"
	"kbquery/domain/graph"
	"kbquery/infrastructure/config"
	"kbquery/infrastructure/persistence/dynamodb"
	"kbquery/infrastructure/persistence/neo4j"
	"kbquery/infrastructure/persistence/sqlite"
	apperrors "kbquery/pkg/errors"
)

type importer interface {
	Import(ctx context.Context, snapshot *graph.Snapshot) error
}

func newImportCmd(opts *rootOptions) *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:   "import [snapshot.json]",
		Short: "Load a snapshot into the SQLite store, DynamoDB or Neo4j",
		Long: "Load a snapshot into a store. The sqlite target writes to --db; " +
			"the dynamodb and neo4j targets read their settings from the service environment.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := opts.logger()
			defer func() { _ = logger.Sync() }()

			snapshot, err := readSnapshot(args[0])
			if err != nil {
				return err
			}

			dst, closeFn, err := openImporter(ctx, target, opts.dbPath, logger)
			if err != nil {
				return err
			}
			defer closeFn()

			start := time.Now()
			if err := dst.Import(ctx, snapshot); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d nodes and %d edges into %s in %s\n",
				len(snapshot.Nodes), len(snapshot.Edges), target, time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "target", "sqlite", "Destination store: sqlite, dynamodb or neo4j")
	return cmd
}

func openImporter(ctx context.Context, target, dbPath string, logger *zap.Logger) (importer, func(), error) {
	switch target {
	case "sqlite":
		if dbPath == "" {
			return nil, nil, apperrors.NewValidationError("--db is required for the sqlite target")
		}
		store, err := sqlite.Open(ctx, dbPath, logger.Named("sqlite"))
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil

	case config.GenericSourceDynamoDB:
		cfg, err := config.LoadConfig()
		if err != nil {
			return nil, nil, err
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, nil, fmt.Errorf("load AWS config: %w", err)
		}
		client := awsdynamodb.NewFromConfig(awsCfg)
		return dynamodb.NewSource(client, cfg.DynamoDBTable, cfg.DynamoDBNodeIndex, logger.Named("dynamodb")), func() {}, nil

	case config.GenericSourceNeo4j:
		cfg, err := config.LoadConfig()
		if err != nil {
			return nil, nil, err
		}
		driver, err := neo4j.Connect(ctx, neo4j.Config{
			URI:      cfg.Neo4jURI,
			User:     cfg.Neo4jUser,
			Password: cfg.Neo4jPassword,
			Database: cfg.Neo4jDatabase,
		})
		if err != nil {
			return nil, nil, err
		}
		source := neo4j.NewSource(driver, cfg.Neo4jDatabase, logger.Named("neo4j"))
		return source, func() { _ = source.Close(context.Background()) }, nil

	default:
		return nil, nil, apperrors.NewValidationError(fmt.Sprintf("unknown import target %q", target))
	}
}

func newNodesCmd(opts *rootOptions) *cobra.Command {
	q := queries.ListNodesQuery{}

	cmd := &cobra.Command{
		Use:   "nodes",
		Short: "List nodes visible in the scope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q.Scope = opts.scope
			return opts.run(cmd, func(ctx context.Context, svc *queries.GraphQueryService) (interface{}, error) {
				return svc.ListNodes(ctx, q)
			})
		},
	}
	cmd.Flags().StringVar(&q.EntityType, "type", "", "Entity type filter")
	cmd.Flags().StringVar(&q.Search, "search", "", "Case-insensitive search term")
	cmd.Flags().IntVar(&q.First, "first", 0, "Page size")
	cmd.Flags().StringVar(&q.After, "after", "", "Cursor to continue from")
	return cmd
}

func newEdgesCmd(opts *rootOptions) *cobra.Command {
	q := queries.ListEdgesQuery{}

	cmd := &cobra.Command{
		Use:   "edges",
		Short: "List edges visible in the scope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q.Scope = opts.scope
			return opts.run(cmd, func(ctx context.Context, svc *queries.GraphQueryService) (interface{}, error) {
				return svc.ListEdges(ctx, q)
			})
		},
	}
	cmd.Flags().StringVar(&q.EdgeType, "type", "", "Edge type filter")
	cmd.Flags().StringVar(&q.SourceNodeID, "source", "", "Source node id")
	cmd.Flags().StringVar(&q.TargetNodeID, "target", "", "Target node id")
	cmd.Flags().IntVar(&q.First, "first", 0, "Page size")
	cmd.Flags().StringVar(&q.After, "after", "", "Cursor to continue from")
	return cmd
}

func newNodeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "node [id]",
		Short: "Fetch a single node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, svc *queries.GraphQueryService) (interface{}, error) {
				node, err := svc.GetNode(ctx, queries.GetNodeQuery{Scope: opts.scope, NodeID: args[0]})
				if err != nil {
					return nil, err
				}
				if node == nil {
					return nil, apperrors.NewNotFoundError("node " + args[0])
				}
				return node, nil
			})
		},
	}
}

func newSceneCmd(opts *rootOptions) *cobra.Command {
	q := queries.GetSceneQuery{}

	cmd := &cobra.Command{
		Use:   "scene [id]",
		Short: "Expand the neighborhood of a node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q.Scope = opts.scope
			q.NodeID = args[0]
			return opts.run(cmd, func(ctx context.Context, svc *queries.GraphQueryService) (interface{}, error) {
				return svc.GetScene(ctx, q)
			})
		},
	}
	cmd.Flags().StringSliceVar(&q.EdgeTypes, "edge-types", nil, "Edge types to follow")
	cmd.Flags().IntVar(&q.Depth, "depth", 0, "Hop depth")
	cmd.Flags().IntVar(&q.Limit, "limit", 0, "Node limit")
	return cmd
}

func newFacetsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "facets",
		Short: "Aggregate labelled counts for the scope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd, func(ctx context.Context, svc *queries.GraphQueryService) (interface{}, error) {
				return svc.GetFacets(ctx, queries.GetFacetsQuery{Scope: opts.scope})
			})
		},
	}
}
