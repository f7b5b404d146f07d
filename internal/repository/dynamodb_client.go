package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"red-ai/internal/domain"
)

const (
	attrUserID    = "user_id"
	attrTimestamp = "timestamp"
	attrRole      = "role"
	attrContent   = "content"

	// sortKeyLayout is fixed width so lexical order of the sort key equals
	// chronological order.
	sortKeyLayout = "2006-01-02T15:04:05.000000000Z"

	maxAppendAttempts = 5
)

// ErrTimestampCollision is returned when every attempt to find a free sort key
// for a turn collided with an existing turn of the same user.
var ErrTimestampCollision = errors.New("repository: timestamp collision")

// dynamodbAPI is the minimal DynamoDB interface required by DynamoClient.
// Defined here for testability.
type dynamodbAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoClient stores conversation turns in a DynamoDB table keyed by
// user_id (partition) and timestamp (sort).
type DynamoClient struct {
	api       dynamodbAPI
	tableName string
}

// NewDynamo creates a DynamoClient for the given table.
func NewDynamo(api dynamodbAPI, tableName string) (*DynamoClient, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &DynamoClient{api: api, tableName: tableName}, nil
}

// SortKey encodes a turn timestamp as its sort key.
func SortKey(ts time.Time) string {
	return ts.UTC().Format(sortKeyLayout)
}

// ParseSortKey decodes a sort key written by SortKey.
func ParseSortKey(s string) (time.Time, error) {
	ts, err := time.Parse(sortKeyLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("repository: parse sort key %q: %w", s, err)
	}
	return ts, nil
}

// Append writes the turn. The put is conditional on the key being free; when
// another turn of the same user already holds the timestamp, the timestamp is
// advanced by one nanosecond and the put is retried.
func (c *DynamoClient) Append(ctx context.Context, turn domain.Turn) error {
	if err := validateTurn(turn); err != nil {
		return fmt.Errorf("repository: Append: %w", err)
	}

	ts := turn.Timestamp
	for attempt := 0; attempt < maxAppendAttempts; attempt++ {
		_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:                aws.String(c.tableName),
			Item:                     turnItem(turn, ts),
			ConditionExpression:      aws.String("attribute_not_exists(#uid)"),
			ExpressionAttributeNames: map[string]string{"#uid": attrUserID},
		})
		if err == nil {
			return nil
		}
		var conflict *types.ConditionalCheckFailedException
		if !errors.As(err, &conflict) {
			return fmt.Errorf("repository: Append: %w", err)
		}
		ts = ts.Add(time.Nanosecond)
	}
	return fmt.Errorf("repository: Append: %w", ErrTimestampCollision)
}

// History returns every turn of the user in ascending timestamp order.
func (c *DynamoClient) History(ctx context.Context, userID string) ([]domain.Turn, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("repository: History: user id is required")
	}

	in := &dynamodb.QueryInput{
		TableName:                aws.String(c.tableName),
		KeyConditionExpression:   aws.String("#uid = :user_id"),
		ExpressionAttributeNames: map[string]string{"#uid": attrUserID},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":user_id": &types.AttributeValueMemberS{Value: userID},
		},
		ScanIndexForward: aws.Bool(true),
		ConsistentRead:   aws.Bool(true),
	}

	turns := make([]domain.Turn, 0)
	for {
		out, err := c.api.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("repository: History query: %w", err)
		}
		if out == nil {
			break
		}
		for _, item := range out.Items {
			turn, err := itemToTurn(item)
			if err != nil {
				return nil, fmt.Errorf("repository: History unmarshal: %w", err)
			}
			turns = append(turns, turn)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
	return turns, nil
}

func validateTurn(turn domain.Turn) error {
	if strings.TrimSpace(turn.UserID) == "" {
		return errors.New("user id is required")
	}
	if turn.Timestamp.IsZero() {
		return errors.New("timestamp is required")
	}
	if !turn.Role.Valid() {
		return fmt.Errorf("invalid role %q", turn.Role)
	}
	return nil
}

func turnItem(turn domain.Turn, ts time.Time) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrUserID:    &types.AttributeValueMemberS{Value: turn.UserID},
		attrTimestamp: &types.AttributeValueMemberS{Value: SortKey(ts)},
		attrRole:      &types.AttributeValueMemberS{Value: string(turn.Role)},
		attrContent:   &types.AttributeValueMemberS{Value: turn.Content},
	}
}

// itemToTurn converts a DynamoDB attribute map to a Turn.
func itemToTurn(item map[string]types.AttributeValue) (domain.Turn, error) {
	userID, err := strAttr(item, attrUserID)
	if err != nil {
		return domain.Turn{}, err
	}
	rawTS, err := strAttr(item, attrTimestamp)
	if err != nil {
		return domain.Turn{}, err
	}
	ts, err := ParseSortKey(rawTS)
	if err != nil {
		return domain.Turn{}, err
	}
	rawRole, err := strAttr(item, attrRole)
	if err != nil {
		return domain.Turn{}, err
	}
	role, err := domain.ParseRole(rawRole)
	if err != nil {
		return domain.Turn{}, err
	}
	content, err := strAttr(item, attrContent)
	if err != nil {
		return domain.Turn{}, err
	}
	return domain.Turn{
		UserID:    userID,
		Timestamp: ts,
		Role:      role,
		Content:   content,
	}, nil
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
