package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"red-ai/internal/domain"
)

type fakeDynamo struct {
	putErrs     []error
	putCalls    int
	putInputs   []*dynamodb.PutItemInput
	queryPages  []*dynamodb.QueryOutput
	queryErr    error
	queryInputs []dynamodb.QueryInput
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.putInputs = append(f.putInputs, in)
	idx := f.putCalls
	f.putCalls++
	if idx < len(f.putErrs) {
		return nil, f.putErrs[idx]
	}
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.queryInputs = append(f.queryInputs, *in)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	idx := len(f.queryInputs) - 1
	if idx >= len(f.queryPages) {
		return &dynamodb.QueryOutput{}, nil
	}
	return f.queryPages[idx], nil
}

func makeTurnItem(userID, ts, role, content string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"user_id":   &types.AttributeValueMemberS{Value: userID},
		"timestamp": &types.AttributeValueMemberS{Value: ts},
		"role":      &types.AttributeValueMemberS{Value: role},
		"content":   &types.AttributeValueMemberS{Value: content},
	}
}

func mustNewDynamo(t *testing.T, db *fakeDynamo) *DynamoClient {
	t.Helper()
	c, err := NewDynamo(db, "ChatTable")
	require.NoError(t, err)
	return c
}

func conditionalFailure() error {
	return &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
}

var t0 = time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)

func TestAppend_HappyPath(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewDynamo(t, db)

	err := c.Append(context.Background(), domain.Turn{UserID: "u1", Timestamp: t0, Role: domain.RoleUser, Content: "hello"})
	require.NoError(t, err)
	require.Len(t, db.putInputs, 1)

	in := db.putInputs[0]
	require.Equal(t, "ChatTable", *in.TableName)
	require.Equal(t, "attribute_not_exists(#uid)", *in.ConditionExpression)
	require.Equal(t, "u1", in.Item["user_id"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, "2026-10-17T09:30:00.000000000Z", in.Item["timestamp"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, "user", in.Item["role"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, "hello", in.Item["content"].(*types.AttributeValueMemberS).Value)
}

func TestAppend_CollisionAdvancesTimestamp(t *testing.T) {
	db := &fakeDynamo{putErrs: []error{conditionalFailure(), conditionalFailure()}}
	c := mustNewDynamo(t, db)

	err := c.Append(context.Background(), domain.Turn{UserID: "u1", Timestamp: t0, Role: domain.RoleUser, Content: "hello"})
	require.NoError(t, err)
	require.Len(t, db.putInputs, 3)
	require.Equal(t, "2026-10-17T09:30:00.000000000Z", db.putInputs[0].Item["timestamp"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, "2026-10-17T09:30:00.000000001Z", db.putInputs[1].Item["timestamp"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, "2026-10-17T09:30:00.000000002Z", db.putInputs[2].Item["timestamp"].(*types.AttributeValueMemberS).Value)
}

func TestAppend_CollisionExhausted(t *testing.T) {
	errs := make([]error, maxAppendAttempts)
	for i := range errs {
		errs[i] = conditionalFailure()
	}
	db := &fakeDynamo{putErrs: errs}
	c := mustNewDynamo(t, db)

	err := c.Append(context.Background(), domain.Turn{UserID: "u1", Timestamp: t0, Role: domain.RoleUser, Content: "hello"})
	require.ErrorIs(t, err, ErrTimestampCollision)
	require.Len(t, db.putInputs, maxAppendAttempts)
}

func TestAppend_DynamoError(t *testing.T) {
	db := &fakeDynamo{putErrs: []error{errors.New("ProvisionedThroughputExceededException")}}
	c := mustNewDynamo(t, db)

	err := c.Append(context.Background(), domain.Turn{UserID: "u1", Timestamp: t0, Role: domain.RoleUser, Content: "hello"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "Append")
	require.Len(t, db.putInputs, 1)
}

func TestAppend_RejectsInvalidTurns(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewDynamo(t, db)

	cases := []struct {
		name string
		turn domain.Turn
		want string
	}{
		{name: "missing user", turn: domain.Turn{Timestamp: t0, Role: domain.RoleUser}, want: "user id"},
		{name: "missing timestamp", turn: domain.Turn{UserID: "u1", Role: domain.RoleUser}, want: "timestamp"},
		{name: "bad role", turn: domain.Turn{UserID: "u1", Timestamp: t0, Role: "system"}, want: "invalid role"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := c.Append(context.Background(), tc.turn)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}
	require.Empty(t, db.putInputs)
}

func TestHistory_HappyPath(t *testing.T) {
	db := &fakeDynamo{queryPages: []*dynamodb.QueryOutput{{
		Items: []map[string]types.AttributeValue{
			makeTurnItem("u1", "2026-10-17T09:30:00.000000000Z", "user", "hello"),
			makeTurnItem("u1", "2026-10-17T09:30:01.000000000Z", "assistant", "hi"),
		},
	}}}
	c := mustNewDynamo(t, db)

	turns, err := c.History(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	require.Equal(t, domain.Turn{UserID: "u1", Timestamp: t0, Role: domain.RoleUser, Content: "hello"}, turns[0])
	require.Equal(t, domain.RoleAssistant, turns[1].Role)
	require.Equal(t, "hi", turns[1].Content)
	require.True(t, turns[0].Timestamp.Before(turns[1].Timestamp))
}

func TestHistory_QueryShape(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewDynamo(t, db)

	_, err := c.History(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, db.queryInputs, 1)
	in := db.queryInputs[0]
	require.Equal(t, "#uid = :user_id", *in.KeyConditionExpression)
	require.Equal(t, "user_id", in.ExpressionAttributeNames["#uid"])
	require.Equal(t, "u1", in.ExpressionAttributeValues[":user_id"].(*types.AttributeValueMemberS).Value)
	require.True(t, *in.ScanIndexForward)
}

func TestHistory_FollowsPagination(t *testing.T) {
	lastKey := map[string]types.AttributeValue{
		"user_id":   &types.AttributeValueMemberS{Value: "u1"},
		"timestamp": &types.AttributeValueMemberS{Value: "2026-10-17T09:30:00.000000000Z"},
	}
	db := &fakeDynamo{queryPages: []*dynamodb.QueryOutput{
		{
			Items:            []map[string]types.AttributeValue{makeTurnItem("u1", "2026-10-17T09:30:00.000000000Z", "user", "first")},
			LastEvaluatedKey: lastKey,
		},
		{
			Items: []map[string]types.AttributeValue{makeTurnItem("u1", "2026-10-17T09:31:00.000000000Z", "assistant", "second")},
		},
	}}
	c := mustNewDynamo(t, db)

	turns, err := c.History(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	require.Equal(t, "first", turns[0].Content)
	require.Equal(t, "second", turns[1].Content)
	require.Len(t, db.queryInputs, 2)
	require.Nil(t, db.queryInputs[0].ExclusiveStartKey)
	require.Equal(t, lastKey, db.queryInputs[1].ExclusiveStartKey)
}

func TestHistory_EmptyResult(t *testing.T) {
	db := &fakeDynamo{queryPages: []*dynamodb.QueryOutput{{}}}
	c := mustNewDynamo(t, db)

	turns, err := c.History(context.Background(), "new-user")
	require.NoError(t, err)
	require.NotNil(t, turns)
	require.Empty(t, turns)
}

func TestHistory_QueryError(t *testing.T) {
	db := &fakeDynamo{queryErr: errors.New("ResourceNotFoundException")}
	c := mustNewDynamo(t, db)

	_, err := c.History(context.Background(), "u1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "History query")
}

func TestHistory_MalformedItems(t *testing.T) {
	cases := []struct {
		name string
		item map[string]types.AttributeValue
		want string
	}{
		{
			name: "missing content",
			item: map[string]types.AttributeValue{
				"user_id":   &types.AttributeValueMemberS{Value: "u1"},
				"timestamp": &types.AttributeValueMemberS{Value: "2026-10-17T09:30:00.000000000Z"},
				"role":      &types.AttributeValueMemberS{Value: "user"},
			},
			want: "content",
		},
		{name: "unknown role", item: makeTurnItem("u1", "2026-10-17T09:30:00.000000000Z", "system", "x"), want: "unknown role"},
		{name: "bad timestamp", item: makeTurnItem("u1", "2026-10-17T09:30:00Z", "user", "x"), want: "parse sort key"},
		{
			name: "numeric role",
			item: map[string]types.AttributeValue{
				"user_id":   &types.AttributeValueMemberS{Value: "u1"},
				"timestamp": &types.AttributeValueMemberS{Value: "2026-10-17T09:30:00.000000000Z"},
				"role":      &types.AttributeValueMemberN{Value: "1"},
				"content":   &types.AttributeValueMemberS{Value: "x"},
			},
			want: "not a string",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db := &fakeDynamo{queryPages: []*dynamodb.QueryOutput{{Items: []map[string]types.AttributeValue{tc.item}}}}
			c := mustNewDynamo(t, db)
			_, err := c.History(context.Background(), "u1")
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestHistory_EmptyUserID(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewDynamo(t, db)
	_, err := c.History(context.Background(), " ")
	require.Error(t, err)
	require.Empty(t, db.queryInputs)
}

func TestSortKey_OrdersLexically(t *testing.T) {
	earlier := SortKey(time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC))
	later := SortKey(time.Date(2026, 10, 17, 9, 30, 0, 100_000_000, time.UTC))
	require.Less(t, earlier, later)

	parsed, err := ParseSortKey(later)
	require.NoError(t, err)
	require.Equal(t, 100_000_000, parsed.Nanosecond())
}

func TestSortKey_NormalisesToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	require.Equal(t, "2026-10-17T07:30:00.000000000Z", SortKey(time.Date(2026, 10, 17, 9, 30, 0, 0, loc)))
}

func TestNewDynamo_NilAPI(t *testing.T) {
	_, err := NewDynamo(nil, "ChatTable")
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be nil")
}

func TestNewDynamo_EmptyTableName(t *testing.T) {
	_, err := NewDynamo(&fakeDynamo{}, " ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be empty")
}
