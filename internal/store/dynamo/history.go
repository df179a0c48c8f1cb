package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"geocdn/internal/domain"
)

// historyItem のソートキーは時刻の後ろに一意な接尾辞を付け、同時刻の追記を区別する
type historyItem struct {
	DistributionID string            `dynamodbav:"distributionId"`
	SortKey        string            `dynamodbav:"timestamp"`
	Timestamp      time.Time         `dynamodbav:"recordedAt"`
	Action         string            `dynamodbav:"action"`
	User           string            `dynamodbav:"user"`
	Version        int64             `dynamodbav:"version,omitempty"`
	PreviousStatus string            `dynamodbav:"previousStatus,omitempty"`
	NewStatus      string            `dynamodbav:"newStatus,omitempty"`
	Details        map[string]string `dynamodbav:"details,omitempty"`
}

// AppendHistory は履歴を追記します
func (s *Store) AppendHistory(ctx context.Context, e domain.HistoryEntry) error {
	item := historyItem{
		DistributionID: e.DistributionID,
		SortKey:        e.Timestamp.UTC().Format(time.RFC3339Nano) + "#" + uuid.NewString()[:8],
		Timestamp:      e.Timestamp,
		Action:         string(e.Action),
		User:           e.User,
		Version:        e.Version,
		PreviousStatus: string(e.PreviousStatus),
		NewStatus:      string(e.NewStatus),
		Details:        e.Details,
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return err
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tables.History),
		Item:      av,
	}); err != nil {
		return fmt.Errorf("put history: %w", err)
	}
	return nil
}

// ListHistory は新しい順に履歴を返します
func (s *Store) ListHistory(ctx context.Context, distributionID string, limit int) ([]domain.HistoryEntry, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.tables.History),
		KeyConditionExpression: aws.String("distributionId = :id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":id": &types.AttributeValueMemberS{Value: distributionID},
		},
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}

	var out []domain.HistoryEntry
	paginator := dynamodb.NewQueryPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query history: %w", err)
		}
		var items []historyItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, err
		}
		for _, item := range items {
			out = append(out, domain.HistoryEntry{
				DistributionID: item.DistributionID,
				Timestamp:      item.Timestamp,
				Action:         domain.HistoryAction(item.Action),
				User:           item.User,
				Version:        item.Version,
				PreviousStatus: domain.Status(item.PreviousStatus),
				NewStatus:      domain.Status(item.NewStatus),
				Details:        item.Details,
			})
		}
		if limit > 0 && len(out) >= limit {
			return out[:limit], nil
		}
	}
	return out, nil
}
