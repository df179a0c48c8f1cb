package dynamo

import (
	"context"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"geocdn/internal/domain"
)

// templateItem の config はCloudFront構成のJSONをそのまま文字列で保持する
type templateItem struct {
	TemplateID  string    `dynamodbav:"templateId"`
	Name        string    `dynamodbav:"name"`
	Description string    `dynamodbav:"description,omitempty"`
	Category    string    `dynamodbav:"category,omitempty"`
	Config      string    `dynamodbav:"config"`
	CreatedBy   string    `dynamodbav:"createdBy,omitempty"`
	CreatedAt   time.Time `dynamodbav:"createdAt"`
	UpdatedAt   time.Time `dynamodbav:"updatedAt"`
}

func (i templateItem) toDomain() domain.Template {
	return domain.Template{
		TemplateID: i.TemplateID, Name: i.Name, Description: i.Description, Category: i.Category,
		Config: []byte(i.Config), CreatedBy: i.CreatedBy, CreatedAt: i.CreatedAt, UpdatedAt: i.UpdatedAt,
	}
}

// PutTemplate はテンプレートを登録します
func (s *Store) PutTemplate(ctx context.Context, t domain.Template) error {
	return s.putNew(ctx, s.tables.Templates, "templateId", templateItem{
		TemplateID: t.TemplateID, Name: t.Name, Description: t.Description, Category: t.Category,
		Config: string(t.Config), CreatedBy: t.CreatedBy, CreatedAt: t.CreatedAt, UpdatedAt: t.UpdatedAt,
	})
}

// GetTemplate はテンプレートを取得します
func (s *Store) GetTemplate(ctx context.Context, templateID string) (domain.Template, error) {
	var item templateItem
	if err := s.getItem(ctx, s.tables.Templates, stringKey("templateId", templateID), &item); err != nil {
		return domain.Template{}, err
	}
	return item.toDomain(), nil
}

// ListTemplates はテンプレートを作成順に返します
func (s *Store) ListTemplates(ctx context.Context) ([]domain.Template, error) {
	items, err := scanAll[templateItem](ctx, s.client, &dynamodb.ScanInput{TableName: aws.String(s.tables.Templates)})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Template, 0, len(items))
	for _, item := range items {
		out = append(out, item.toDomain())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// UpdateTemplate はテンプレートの内容を書き換えます
func (s *Store) UpdateTemplate(ctx context.Context, t domain.Template) error {
	return s.updateExisting(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.tables.Templates),
		Key:              stringKey("templateId", t.TemplateID),
		UpdateExpression: aws.String("SET #name = :name, #config = :config, description = :description, category = :category, updatedAt = :at"),
		ExpressionAttributeNames: map[string]string{
			"#name":   "name",
			"#config": "config",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":name":        &types.AttributeValueMemberS{Value: t.Name},
			":config":      &types.AttributeValueMemberS{Value: string(t.Config)},
			":description": &types.AttributeValueMemberS{Value: t.Description},
			":category":    &types.AttributeValueMemberS{Value: t.Category},
			":at":          timeValue(t.UpdatedAt),
		},
	}, "templateId")
}

// DeleteTemplate はテンプレートを削除します
func (s *Store) DeleteTemplate(ctx context.Context, templateID string) error {
	return s.deleteExisting(ctx, s.tables.Templates, stringKey("templateId", templateID), "templateId")
}
