package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"kbquery/application/ports"
	"kbquery/domain/graph"
	apperrors "kbquery/pkg/errors"
)

// Key layout of the single table:
//
//	PK = ORG#<org>           SK = NODE#<id> | EDGE#<id>
//	GSI1PK = NODEID#<id>     GSI1SK = NODE
const (
	orgPrefix    = "ORG#"
	nodePrefix   = "NODE#"
	edgePrefix   = "EDGE#"
	nodeIDPrefix = "NODEID#"
	recordNode   = "NODE"
	recordEdge   = "EDGE"

	// DefaultNodeIndex is the GSI used for lookups by node id
	DefaultNodeIndex = "GSI1"
)

// API is the subset of the DynamoDB client the source uses.
type API interface {
	dynamodb.QueryAPIClient
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// Source implements the generic graph source on a DynamoDB table.
// It narrows by org, type and endpoints; callers apply the remaining scope.
type Source struct {
	client    API
	tableName string
	nodeIndex string
	logger    *zap.Logger
}

var _ ports.GenericGraphSource = (*Source)(nil)

// NewSource creates a new Source
func NewSource(client API, tableName, nodeIndex string, logger *zap.Logger) *Source {
	if nodeIndex == "" {
		nodeIndex = DefaultNodeIndex
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{
		client:    client,
		tableName: tableName,
		nodeIndex: nodeIndex,
		logger:    logger,
	}
}

// nodeItem represents the DynamoDB item structure for a node
type nodeItem struct {
	PK            string                 `dynamodbav:"PK"`
	SK            string                 `dynamodbav:"SK"`
	GSI1PK        string                 `dynamodbav:"GSI1PK"`
	GSI1SK        string                 `dynamodbav:"GSI1SK"`
	RecordType    string                 `dynamodbav:"RecordType"`
	NodeID        string                 `dynamodbav:"NodeID"`
	TenantID      string                 `dynamodbav:"TenantID"`
	ProjectID     string                 `dynamodbav:"ProjectID,omitempty"`
	EntityType    string                 `dynamodbav:"EntityType"`
	DisplayName   string                 `dynamodbav:"DisplayName"`
	CanonicalPath string                 `dynamodbav:"CanonicalPath,omitempty"`
	SourceSystem  string                 `dynamodbav:"SourceSystem,omitempty"`
	Properties    map[string]interface{} `dynamodbav:"Properties,omitempty"`
	Version       int                    `dynamodbav:"Version"`
	Phase         string                 `dynamodbav:"Phase,omitempty"`
	Scope         scopeItem              `dynamodbav:"Scope"`
	Identity      identityItem           `dynamodbav:"Identity"`
	CreatedAt     string                 `dynamodbav:"CreatedAt"`
	UpdatedAt     string                 `dynamodbav:"UpdatedAt"`
}

// edgeItem represents the DynamoDB item structure for an edge
type edgeItem struct {
	PK               string                 `dynamodbav:"PK"`
	SK               string                 `dynamodbav:"SK"`
	RecordType       string                 `dynamodbav:"RecordType"`
	EdgeID           string                 `dynamodbav:"EdgeID"`
	TenantID         string                 `dynamodbav:"TenantID"`
	ProjectID        string                 `dynamodbav:"ProjectID,omitempty"`
	EdgeType         string                 `dynamodbav:"EdgeType"`
	SourceNodeID     string                 `dynamodbav:"SourceNodeID"`
	TargetNodeID     string                 `dynamodbav:"TargetNodeID"`
	SourceLogicalKey string                 `dynamodbav:"SourceLogicalKey,omitempty"`
	TargetLogicalKey string                 `dynamodbav:"TargetLogicalKey,omitempty"`
	Confidence       *float64               `dynamodbav:"Confidence,omitempty"`
	Metadata         map[string]interface{} `dynamodbav:"Metadata,omitempty"`
	Scope            scopeItem              `dynamodbav:"Scope"`
	Identity         identityItem           `dynamodbav:"Identity"`
	CreatedAt        string                 `dynamodbav:"CreatedAt"`
	UpdatedAt        string                 `dynamodbav:"UpdatedAt"`
}

type scopeItem struct {
	OrgID     string `dynamodbav:"OrgID"`
	DomainID  string `dynamodbav:"DomainID,omitempty"`
	ProjectID string `dynamodbav:"ProjectID,omitempty"`
	TeamID    string `dynamodbav:"TeamID,omitempty"`
}

type identityItem struct {
	LogicalKey       string `dynamodbav:"LogicalKey,omitempty"`
	ExternalID       string `dynamodbav:"ExternalID,omitempty"`
	OriginEndpointID string `dynamodbav:"OriginEndpointID,omitempty"`
	OriginVendor     string `dynamodbav:"OriginVendor,omitempty"`
	Provenance       string `dynamodbav:"Provenance,omitempty"`
}

// ListNodes queries every node of the org, narrowed by entity type.
// Search is applied by the caller.
func (s *Source) ListNodes(ctx context.Context, orgID string, entityTypes []string, search string) ([]*graph.Node, error) {
	builder := expression.NewBuilder().WithKeyCondition(orgKey(orgID, nodePrefix))
	if cond, ok := inCondition("EntityType", entityTypes); ok {
		builder = builder.WithFilter(cond)
	}

	items, err := s.query(ctx, "listNodes", builder)
	if err != nil {
		return nil, err
	}

	nodes := make([]*graph.Node, 0, len(items))
	for _, item := range items {
		var ni nodeItem
		if err := attributevalue.UnmarshalMap(item, &ni); err != nil {
			s.logger.Warn("Failed to unmarshal node item", zap.Error(err))
			continue
		}
		nodes = append(nodes, ni.toNode())
	}
	return nodes, nil
}

// ListEdges queries every edge of the org, narrowed by type and endpoints
func (s *Source) ListEdges(ctx context.Context, orgID string, edgeTypes []string, sourceNodeID, targetNodeID string) ([]*graph.Edge, error) {
	builder := expression.NewBuilder().WithKeyCondition(orgKey(orgID, edgePrefix))

	var filters []expression.ConditionBuilder
	if cond, ok := inCondition("EdgeType", edgeTypes); ok {
		filters = append(filters, cond)
	}
	if sourceNodeID != "" {
		filters = append(filters, expression.Name("SourceNodeID").Equal(expression.Value(sourceNodeID)))
	}
	if targetNodeID != "" {
		filters = append(filters, expression.Name("TargetNodeID").Equal(expression.Value(targetNodeID)))
	}
	if cond, ok := and(filters); ok {
		builder = builder.WithFilter(cond)
	}

	items, err := s.query(ctx, "listEdges", builder)
	if err != nil {
		return nil, err
	}

	edges := make([]*graph.Edge, 0, len(items))
	for _, item := range items {
		var ei edgeItem
		if err := attributevalue.UnmarshalMap(item, &ei); err != nil {
			s.logger.Warn("Failed to unmarshal edge item", zap.Error(err))
			continue
		}
		edges = append(edges, ei.toEdge())
	}
	return edges, nil
}

// GetNodeByID looks a node up through the node id index
func (s *Source) GetNodeByID(ctx context.Context, id string) (*graph.Node, error) {
	keyExpr := expression.Key("GSI1PK").Equal(expression.Value(nodeIDPrefix + id)).
		And(expression.Key("GSI1SK").Equal(expression.Value(recordNode)))

	expr, err := expression.NewBuilder().WithKeyCondition(keyExpr).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		IndexName:                 aws.String(s.nodeIndex),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return nil, s.unavailable("getNodeById", err)
	}
	if len(result.Items) == 0 {
		return nil, nil
	}

	var ni nodeItem
	if err := attributevalue.UnmarshalMap(result.Items[0], &ni); err != nil {
		return nil, fmt.Errorf("failed to unmarshal node: %w", err)
	}
	return ni.toNode(), nil
}

// Import writes snapshot in batches of 25, retrying unprocessed items.
func (s *Source) Import(ctx context.Context, snapshot *graph.Snapshot) error {
	if snapshot == nil {
		return nil
	}

	var requests []types.WriteRequest
	for _, n := range snapshot.Nodes {
		av, err := attributevalue.MarshalMap(newNodeItem(n))
		if err != nil {
			return fmt.Errorf("failed to marshal node %s: %w", n.ID, err)
		}
		requests = append(requests, types.WriteRequest{PutRequest: &types.PutRequest{Item: av}})
	}
	for _, e := range snapshot.Edges {
		av, err := attributevalue.MarshalMap(newEdgeItem(e))
		if err != nil {
			return fmt.Errorf("failed to marshal edge %s: %w", e.ID, err)
		}
		requests = append(requests, types.WriteRequest{PutRequest: &types.PutRequest{Item: av}})
	}

	// DynamoDB limits batch writes to 25 items
	const batchSize = 25
	const maxRetries = 3
	for start := 0; start < len(requests); start += batchSize {
		end := start + batchSize
		if end > len(requests) {
			end = len(requests)
		}
		pending := map[string][]types.WriteRequest{s.tableName: requests[start:end]}

		for attempt := 0; len(pending[s.tableName]) > 0; attempt++ {
			if attempt > maxRetries {
				return fmt.Errorf("batch write: %d items unprocessed after %d retries", len(pending[s.tableName]), maxRetries)
			}
			if attempt > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(time.Duration(attempt*attempt) * 50 * time.Millisecond):
				}
			}
			out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
			if err != nil {
				return fmt.Errorf("batch write: %w", err)
			}
			pending = out.UnprocessedItems
		}
	}

	s.logger.Info("Imported snapshot into DynamoDB",
		zap.String("table", s.tableName),
		zap.Int("nodes", len(snapshot.Nodes)),
		zap.Int("edges", len(snapshot.Edges)),
	)
	return nil
}

// query pages through every result of the expression on the base table
func (s *Source) query(ctx context.Context, op string, builder expression.Builder) ([]map[string]types.AttributeValue, error) {
	expr, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}

	var items []map[string]types.AttributeValue
	paginator := dynamodb.NewQueryPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, s.unavailable(op, err)
		}
		items = append(items, page.Items...)
	}

	s.logger.Debug("Queried DynamoDB",
		zap.String("operation", op),
		zap.Int("items", len(items)),
	)
	return items, nil
}

// unavailable classifies a DynamoDB failure for the fallback chain
func (s *Source) unavailable(op string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apperrors.NewSourceUnavailableError("dynamodb", err).
			WithCode(apiErr.ErrorCode()).
			WithDetails(map[string]interface{}{"operation": op})
	}
	return apperrors.NewSourceUnavailableError("dynamodb", err).
		WithDetails(map[string]interface{}{"operation": op})
}

func orgKey(orgID, prefix string) expression.KeyConditionBuilder {
	return expression.Key("PK").Equal(expression.Value(orgPrefix + orgID)).
		And(expression.Key("SK").BeginsWith(prefix))
}

func inCondition(name string, values []string) (expression.ConditionBuilder, bool) {
	switch len(values) {
	case 0:
		return expression.ConditionBuilder{}, false
	case 1:
		return expression.Name(name).Equal(expression.Value(values[0])), true
	}
	operands := make([]expression.OperandBuilder, 0, len(values)-1)
	for _, v := range values[1:] {
		operands = append(operands, expression.Value(v))
	}
	return expression.Name(name).In(expression.Value(values[0]), operands...), true
}

func and(conds []expression.ConditionBuilder) (expression.ConditionBuilder, bool) {
	switch len(conds) {
	case 0:
		return expression.ConditionBuilder{}, false
	case 1:
		return conds[0], true
	}
	return expression.And(conds[0], conds[1], conds[2:]...), true
}

func newNodeItem(n *graph.Node) nodeItem {
	return nodeItem{
		PK:            orgPrefix + n.Scope.OrgID,
		SK:            nodePrefix + n.ID,
		GSI1PK:        nodeIDPrefix + n.ID,
		GSI1SK:        recordNode,
		RecordType:    recordNode,
		NodeID:        n.ID,
		TenantID:      n.TenantID,
		ProjectID:     n.ProjectID,
		EntityType:    n.EntityType,
		DisplayName:   n.DisplayName,
		CanonicalPath: n.CanonicalPath,
		SourceSystem:  n.SourceSystem,
		Properties:    n.Properties,
		Version:       n.Version,
		Phase:         n.Phase,
		Scope:         toScopeItem(n.Scope),
		Identity:      identityItem(n.Identity),
		CreatedAt:     n.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:     n.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func (ni nodeItem) toNode() *graph.Node {
	return &graph.Node{
		ID:            ni.NodeID,
		TenantID:      ni.TenantID,
		ProjectID:     ni.ProjectID,
		EntityType:    ni.EntityType,
		DisplayName:   ni.DisplayName,
		CanonicalPath: ni.CanonicalPath,
		SourceSystem:  ni.SourceSystem,
		Properties:    ni.Properties,
		Version:       ni.Version,
		Phase:         ni.Phase,
		Scope:         ni.Scope.toScope(),
		Identity:      graph.Identity(ni.Identity),
		CreatedAt:     parseTime(ni.CreatedAt),
		UpdatedAt:     parseTime(ni.UpdatedAt),
	}
}

func newEdgeItem(e *graph.Edge) edgeItem {
	return edgeItem{
		PK:               orgPrefix + e.Scope.OrgID,
		SK:               edgePrefix + e.ID,
		RecordType:       recordEdge,
		EdgeID:           e.ID,
		TenantID:         e.TenantID,
		ProjectID:        e.ProjectID,
		EdgeType:         e.EdgeType,
		SourceNodeID:     e.SourceNodeID,
		TargetNodeID:     e.TargetNodeID,
		SourceLogicalKey: e.SourceLogicalKey,
		TargetLogicalKey: e.TargetLogicalKey,
		Confidence:       e.Confidence,
		Metadata:         e.Metadata,
		Scope:            toScopeItem(e.Scope),
		Identity:         identityItem(e.Identity),
		CreatedAt:        e.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:        e.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func (ei edgeItem) toEdge() *graph.Edge {
	return &graph.Edge{
		ID:               ei.EdgeID,
		TenantID:         ei.TenantID,
		ProjectID:        ei.ProjectID,
		EdgeType:         ei.EdgeType,
		SourceNodeID:     ei.SourceNodeID,
		TargetNodeID:     ei.TargetNodeID,
		SourceLogicalKey: ei.SourceLogicalKey,
		TargetLogicalKey: ei.TargetLogicalKey,
		Confidence:       ei.Confidence,
		Metadata:         ei.Metadata,
		Scope:            ei.Scope.toScope(),
		Identity:         graph.Identity(ei.Identity),
		CreatedAt:        parseTime(ei.CreatedAt),
		UpdatedAt:        parseTime(ei.UpdatedAt),
	}
}

func toScopeItem(s graph.Scope) scopeItem {
	return scopeItem{OrgID: s.OrgID, DomainID: s.DomainID, ProjectID: s.ProjectID, TeamID: s.TeamID}
}

func (si scopeItem) toScope() graph.Scope {
	return graph.Scope{OrgID: si.OrgID, DomainID: si.DomainID, ProjectID: si.ProjectID, TeamID: si.TeamID}
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
