package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"flowchart-mermaid/internal/domain"
)

const (
	skPrefixImage = "IMG#"
	skSummary     = "SUMMARY#"
	ttlDuration   = 30 * 24 * time.Hour // 30-day TTL
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Client wraps a DynamoDB table holding the conversion ledger: one item per
// converted image and one summary item per batch run, both keyed by run.
type Client struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName, now: time.Now}, nil
}

func runPK(runID string) string {
	return "RUN#" + runID
}

func imageSK(stem string) string {
	return skPrefixImage + stem
}

func (c *Client) ttlValue() int64 {
	return c.now().Add(ttlDuration).Unix()
}

// SaveConversion writes or replaces the record for one image of a run.
func (c *Client) SaveConversion(ctx context.Context, rec domain.ConversionRecord) error {
	if rec.RunID == "" || rec.Stem == "" {
		return errors.New("repository: SaveConversion: run ID and stem are required")
	}
	if rec.CreatedAt == "" {
		rec.CreatedAt = c.now().UTC().Format(time.RFC3339)
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      conversionItem(rec, c.ttlValue()),
	})
	if err != nil {
		return fmt.Errorf("repository: SaveConversion: %w", err)
	}
	return nil
}

// SaveRunSummary writes or replaces the summary of a run.
func (c *Client) SaveRunSummary(ctx context.Context, res domain.BatchResult) error {
	if res.RunID == "" {
		return errors.New("repository: SaveRunSummary: run ID is required")
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      summaryItem(res, c.now().UTC().Format(time.RFC3339), c.ttlValue()),
	})
	if err != nil {
		return fmt.Errorf("repository: SaveRunSummary: %w", err)
	}
	return nil
}

// GetRunSummary returns the stored summary of a run. The boolean is false
// when no summary exists.
func (c *Client) GetRunSummary(ctx context.Context, runID string) (domain.BatchResult, bool, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: runPK(runID)},
			"SK": &types.AttributeValueMemberS{Value: skSummary},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.BatchResult{}, false, fmt.Errorf("repository: GetRunSummary get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.BatchResult{}, false, nil
	}
	res, err := itemToSummary(runID, out.Item)
	if err != nil {
		return domain.BatchResult{}, false, fmt.Errorf("repository: GetRunSummary decode: %w", err)
	}
	return res, true, nil
}

// ListConversions returns every image record of a run ordered by stem.
func (c *Client) ListConversions(ctx context.Context, runID string) ([]domain.ConversionRecord, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: runPK(runID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixImage},
		},
	}

	var recs []domain.ConversionRecord
	for {
		out, err := c.api.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("repository: ListConversions query: %w", err)
		}
		for _, item := range out.Items {
			rec, err := itemToConversion(item)
			if err != nil {
				return nil, fmt.Errorf("repository: ListConversions unmarshal: %w", err)
			}
			recs = append(recs, rec)
		}
		if len(out.LastEvaluatedKey) == 0 {
			return recs, nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func conversionItem(rec domain.ConversionRecord, ttl int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: runPK(rec.RunID)},
		"SK":        &types.AttributeValueMemberS{Value: imageSK(rec.Stem)},
		"runId":     &types.AttributeValueMemberS{Value: rec.RunID},
		"image":     &types.AttributeValueMemberS{Value: rec.Image},
		"stem":      &types.AttributeValueMemberS{Value: rec.Stem},
		"status":    &types.AttributeValueMemberS{Value: rec.Status},
		"reason":    &types.AttributeValueMemberS{Value: string(rec.Reason)},
		"fragment":  &types.AttributeValueMemberS{Value: rec.Fragment},
		"model":     &types.AttributeValueMemberS{Value: rec.Model},
		"createdAt": &types.AttributeValueMemberS{Value: rec.CreatedAt},
		"ttl":       &types.AttributeValueMemberN{Value: strconv.FormatInt(ttl, 10)},
	}
}

func summaryItem(res domain.BatchResult, finishedAt string, ttl int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":         &types.AttributeValueMemberS{Value: runPK(res.RunID)},
		"SK":         &types.AttributeValueMemberS{Value: skSummary},
		"runId":      &types.AttributeValueMemberS{Value: res.RunID},
		"attempted":  &types.AttributeValueMemberN{Value: strconv.Itoa(res.Attempted)},
		"succeeded":  &types.AttributeValueMemberN{Value: strconv.Itoa(res.Succeeded)},
		"failed":     &types.AttributeValueMemberN{Value: strconv.Itoa(res.Failed)},
		"moderated":  &types.AttributeValueMemberN{Value: strconv.Itoa(res.Moderated)},
		"finishedAt": &types.AttributeValueMemberS{Value: finishedAt},
		"ttl":        &types.AttributeValueMemberN{Value: strconv.FormatInt(ttl, 10)},
	}
}

func itemToConversion(item map[string]types.AttributeValue) (domain.ConversionRecord, error) {
	runID, err := strAttr(item, "runId")
	if err != nil {
		return domain.ConversionRecord{}, err
	}
	stem, err := strAttr(item, "stem")
	if err != nil {
		return domain.ConversionRecord{}, err
	}
	status, err := strAttr(item, "status")
	if err != nil {
		return domain.ConversionRecord{}, err
	}
	image, _ := strAttr(item, "image")       // allow empty
	reason, _ := strAttr(item, "reason")     // allow empty
	fragment, _ := strAttr(item, "fragment") // allow empty
	model, _ := strAttr(item, "model")
	createdAt, _ := strAttr(item, "createdAt")

	return domain.ConversionRecord{
		RunID:     runID,
		Image:     image,
		Stem:      stem,
		Status:    status,
		Reason:    domain.FailureReason(reason),
		Fragment:  fragment,
		Model:     model,
		CreatedAt: createdAt,
	}, nil
}

func itemToSummary(runID string, item map[string]types.AttributeValue) (domain.BatchResult, error) {
	res := domain.BatchResult{RunID: runID}
	fields := []struct {
		key string
		dst *int
	}{
		{"attempted", &res.Attempted},
		{"succeeded", &res.Succeeded},
		{"failed", &res.Failed},
		{"moderated", &res.Moderated},
	}
	for _, f := range fields {
		n, err := intAttr(item, f.key)
		if err != nil {
			return domain.BatchResult{}, err
		}
		*f.dst = n
	}
	return res, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
