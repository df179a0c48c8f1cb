// Package dynamo は DynamoDB によるストア実装です。Lambda 上のスキャナーから共有されます。
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"geocdn/internal/domain"
	"geocdn/internal/store"
)

// API は利用する DynamoDB 操作
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Tables はテーブル名の組
type Tables struct {
	Origins       string
	Distributions string
	EdgeFunctions string
	History       string
	Templates     string
}

// Store は DynamoDB によるストア
type Store struct {
	client API
	tables Tables
}

var _ store.Store = (*Store)(nil)

// New はストアを作成します
func New(client API, tables Tables) *Store {
	return &Store{client: client, tables: tables}
}

// Close は何もしません
func (s *Store) Close() error { return nil }

func stringKey(name, value string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{name: &types.AttributeValueMemberS{Value: value}}
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func timeValue(t time.Time) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: t.UTC().Format(time.RFC3339Nano)}
}

func (s *Store) getItem(ctx context.Context, table string, key map[string]types.AttributeValue, out any) error {
	res, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(table),
		Key:            key,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("get item from %s: %w", table, err)
	}
	if len(res.Item) == 0 {
		return store.ErrNotFound
	}
	return attributevalue.UnmarshalMap(res.Item, out)
}

func (s *Store) putNew(ctx context.Context, table, keyAttr string, item any) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return err
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(table),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(" + keyAttr + ")"),
	})
	if isConditionFailed(err) {
		return store.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("put item into %s: %w", table, err)
	}
	return nil
}

func (s *Store) deleteExisting(ctx context.Context, table string, key map[string]types.AttributeValue, keyAttr string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(table),
		Key:                 key,
		ConditionExpression: aws.String("attribute_exists(" + keyAttr + ")"),
	})
	if isConditionFailed(err) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete item from %s: %w", table, err)
	}
	return nil
}

// updateExisting はキーが存在する場合だけ更新式を適用します
func (s *Store) updateExisting(ctx context.Context, input *dynamodb.UpdateItemInput, keyAttr string) error {
	input.ConditionExpression = aws.String("attribute_exists(" + keyAttr + ")")
	_, err := s.client.UpdateItem(ctx, input)
	if isConditionFailed(err) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update item in %s: %w", aws.ToString(input.TableName), err)
	}
	return nil
}

// scanAll はテーブル全体をページングしながら読み出します
func scanAll[T any](ctx context.Context, client API, input *dynamodb.ScanInput) ([]T, error) {
	var out []T
	paginator := dynamodb.NewScanPaginator(client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", aws.ToString(input.TableName), err)
		}
		var items []T
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, err
		}
		out = append(out, items...)
	}
	return out, nil
}

type originItem struct {
	OriginID                string    `dynamodbav:"originId"`
	Name                    string    `dynamodbav:"name"`
	Description             string    `dynamodbav:"description,omitempty"`
	BucketName              string    `dynamodbav:"bucketName"`
	Region                  string    `dynamodbav:"region"`
	AccessControlID         string    `dynamodbav:"accessControlId,omitempty"`
	WebsiteEnabled          bool      `dynamodbav:"websiteEnabled"`
	AssociatedDistributions []string  `dynamodbav:"associatedDistributions,stringset,omitempty"`
	CreatedBy               string    `dynamodbav:"createdBy,omitempty"`
	CreatedAt               time.Time `dynamodbav:"createdAt"`
	UpdatedAt               time.Time `dynamodbav:"updatedAt"`
}

func (i originItem) toDomain() domain.Origin {
	assoc := i.AssociatedDistributions
	if assoc == nil {
		assoc = []string{}
	}
	sort.Strings(assoc)
	return domain.Origin{
		OriginID: i.OriginID, Name: i.Name, Description: i.Description, BucketName: i.BucketName,
		Region: i.Region, AccessControlID: i.AccessControlID, WebsiteEnabled: i.WebsiteEnabled,
		AssociatedDistributions: assoc, CreatedBy: i.CreatedBy, CreatedAt: i.CreatedAt, UpdatedAt: i.UpdatedAt,
	}
}

// PutOrigin はオリジンを登録します
func (s *Store) PutOrigin(ctx context.Context, o domain.Origin) error {
	return s.putNew(ctx, s.tables.Origins, "originId", originItem{
		OriginID: o.OriginID, Name: o.Name, Description: o.Description, BucketName: o.BucketName,
		Region: o.Region, AccessControlID: o.AccessControlID, WebsiteEnabled: o.WebsiteEnabled,
		AssociatedDistributions: o.AssociatedDistributions, CreatedBy: o.CreatedBy,
		CreatedAt: o.CreatedAt, UpdatedAt: o.UpdatedAt,
	})
}

// GetOrigin はオリジンを取得します
func (s *Store) GetOrigin(ctx context.Context, originID string) (domain.Origin, error) {
	var item originItem
	if err := s.getItem(ctx, s.tables.Origins, stringKey("originId", originID), &item); err != nil {
		return domain.Origin{}, err
	}
	return item.toDomain(), nil
}

// ListOrigins はオリジンを作成順に返します
func (s *Store) ListOrigins(ctx context.Context) ([]domain.Origin, error) {
	items, err := scanAll[originItem](ctx, s.client, &dynamodb.ScanInput{TableName: aws.String(s.tables.Origins)})
	if err != nil {
		return nil, err
	}
	origins := make([]domain.Origin, 0, len(items))
	for _, item := range items {
		origins = append(origins, item.toDomain())
	}
	sort.SliceStable(origins, func(i, j int) bool { return origins[i].CreatedAt.Before(origins[j].CreatedAt) })
	return origins, nil
}

// UpdateOrigin は関連付け以外の属性を書き換えます
func (s *Store) UpdateOrigin(ctx context.Context, o domain.Origin) error {
	return s.updateExisting(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.tables.Origins),
		Key:              stringKey("originId", o.OriginID),
		UpdateExpression: aws.String("SET #name = :name, description = :description, accessControlId = :acid, websiteEnabled = :website, updatedAt = :at"),
		ExpressionAttributeNames: map[string]string{
			"#name": "name",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":name":        &types.AttributeValueMemberS{Value: o.Name},
			":description": &types.AttributeValueMemberS{Value: o.Description},
			":acid":        &types.AttributeValueMemberS{Value: o.AccessControlID},
			":website":     &types.AttributeValueMemberBOOL{Value: o.WebsiteEnabled},
			":at":          timeValue(o.UpdatedAt),
		},
	}, "originId")
}

// DeleteOrigin はオリジンを削除します
func (s *Store) DeleteOrigin(ctx context.Context, originID string) error {
	return s.deleteExisting(ctx, s.tables.Origins, stringKey("originId", originID), "originId")
}

// AddAssociation は関連付けセットにARNを追加します
func (s *Store) AddAssociation(ctx context.Context, originID, distributionArn string, at time.Time) error {
	return s.updateAssociations(ctx, "ADD", originID, distributionArn, at)
}

// RemoveAssociation は関連付けセットからARNを取り除きます
func (s *Store) RemoveAssociation(ctx context.Context, originID, distributionArn string, at time.Time) error {
	return s.updateAssociations(ctx, "DELETE", originID, distributionArn, at)
}

func (s *Store) updateAssociations(ctx context.Context, op, originID, distributionArn string, at time.Time) error {
	return s.updateExisting(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.tables.Origins),
		Key:              stringKey("originId", originID),
		UpdateExpression: aws.String(op + " associatedDistributions :arn SET updatedAt = :at"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":arn": &types.AttributeValueMemberSS{Value: []string{distributionArn}},
			":at":  timeValue(at),
		},
	}, "originId")
}

type distributionItem struct {
	DistributionID   string                    `dynamodbav:"distributionId"`
	ProviderID       string                    `dynamodbav:"cloudfrontId,omitempty"`
	Name             string                    `dynamodbav:"name"`
	Description      string                    `dynamodbav:"description,omitempty"`
	Status           string                    `dynamodbav:"status"`
	DomainName       string                    `dynamodbav:"domainName,omitempty"`
	ARN              string                    `dynamodbav:"arn,omitempty"`
	IsMultiOrigin    bool                      `dynamodbav:"isMultiOrigin"`
	MultiOrigin      *domain.MultiOriginConfig `dynamodbav:"multiOriginConfig,omitempty"`
	EdgeFunctionID   string                    `dynamodbav:"lambdaEdgeFunctionId,omitempty"`
	AccessIdentityID string                    `dynamodbav:"oaiId,omitempty"`
	Config           string                    `dynamodbav:"config,omitempty"`
	Version          int64                     `dynamodbav:"version"`
	CreatedBy        string                    `dynamodbav:"createdBy,omitempty"`
	CreatedAt        time.Time                 `dynamodbav:"createdAt"`
	UpdatedAt        time.Time                 `dynamodbav:"updatedAt"`
}

func (i distributionItem) toDomain() domain.Distribution {
	d := domain.Distribution{
		DistributionID: i.DistributionID, ProviderID: i.ProviderID, Name: i.Name, Description: i.Description,
		Status: domain.Status(i.Status), DomainName: i.DomainName, ARN: i.ARN, IsMultiOrigin: i.IsMultiOrigin,
		MultiOrigin: i.MultiOrigin, EdgeFunctionID: i.EdgeFunctionID, AccessIdentityID: i.AccessIdentityID,
		Version: i.Version, CreatedBy: i.CreatedBy, CreatedAt: i.CreatedAt, UpdatedAt: i.UpdatedAt,
	}
	if i.Config != "" {
		d.Config = []byte(i.Config)
	}
	return d
}

// PutDistribution はディストリビューションを登録します
func (s *Store) PutDistribution(ctx context.Context, d domain.Distribution) error {
	return s.putNew(ctx, s.tables.Distributions, "distributionId", distributionItem{
		DistributionID: d.DistributionID, ProviderID: d.ProviderID, Name: d.Name, Description: d.Description,
		Status: string(d.Status), DomainName: d.DomainName, ARN: d.ARN, IsMultiOrigin: d.IsMultiOrigin,
		MultiOrigin: d.MultiOrigin, EdgeFunctionID: d.EdgeFunctionID, AccessIdentityID: d.AccessIdentityID,
		Config: string(d.Config), Version: d.Version, CreatedBy: d.CreatedBy,
		CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	})
}

// GetDistribution はディストリビューションを取得します
func (s *Store) GetDistribution(ctx context.Context, distributionID string) (domain.Distribution, error) {
	var item distributionItem
	if err := s.getItem(ctx, s.tables.Distributions, stringKey("distributionId", distributionID), &item); err != nil {
		return domain.Distribution{}, err
	}
	return item.toDomain(), nil
}

// ListDistributions はディストリビューションを作成順に返します
func (s *Store) ListDistributions(ctx context.Context) ([]domain.Distribution, error) {
	return s.scanDistributions(ctx, &dynamodb.ScanInput{TableName: aws.String(s.tables.Distributions)})
}

// ListByStatus は指定した状態のディストリビューションを返します
func (s *Store) ListByStatus(ctx context.Context, statuses ...domain.Status) ([]domain.Distribution, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	values := make(map[string]types.AttributeValue, len(statuses))
	filter := "#status IN ("
	for i, st := range statuses {
		name := ":s" + strconv.Itoa(i)
		if i > 0 {
			filter += ", "
		}
		filter += name
		values[name] = &types.AttributeValueMemberS{Value: string(st)}
	}
	filter += ")"
	return s.scanDistributions(ctx, &dynamodb.ScanInput{
		TableName:                 aws.String(s.tables.Distributions),
		FilterExpression:          aws.String(filter),
		ExpressionAttributeNames:  map[string]string{"#status": "status"},
		ExpressionAttributeValues: values,
	})
}

func (s *Store) scanDistributions(ctx context.Context, input *dynamodb.ScanInput) ([]domain.Distribution, error) {
	items, err := scanAll[distributionItem](ctx, s.client, input)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Distribution, 0, len(items))
	for _, item := range items {
		out = append(out, item.toDomain())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// UpdateStatus はバージョン一致を条件に状態を更新します
func (s *Store) UpdateStatus(ctx context.Context, distributionID string, expectedVersion int64, status domain.Status, at time.Time) error {
	key := stringKey("distributionId", distributionID)
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.tables.Distributions),
		Key:                 key,
		UpdateExpression:    aws.String("SET #status = :status, version = version + :one, updatedAt = :at"),
		ConditionExpression: aws.String("attribute_exists(distributionId) AND version = :expected"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status":   &types.AttributeValueMemberS{Value: string(status)},
			":one":      &types.AttributeValueMemberN{Value: "1"},
			":expected": &types.AttributeValueMemberN{Value: strconv.FormatInt(expectedVersion, 10)},
			":at":       timeValue(at),
		},
	})
	if err == nil {
		return nil
	}
	if !isConditionFailed(err) {
		return fmt.Errorf("update distribution status: %w", err)
	}
	// 条件不一致はレコード不在とバージョン競合のどちらか
	var item distributionItem
	if err := s.getItem(ctx, s.tables.Distributions, key, &item); err != nil {
		return err
	}
	return store.ErrConflict
}

// UpdateMetadata は名前と説明を更新します
func (s *Store) UpdateMetadata(ctx context.Context, distributionID, name, description string, at time.Time) error {
	return s.updateExisting(ctx, &dynamodb.UpdateItemInput{
		TableName:                aws.String(s.tables.Distributions),
		Key:                      stringKey("distributionId", distributionID),
		UpdateExpression:         aws.String("SET #name = :name, description = :description, updatedAt = :at"),
		ExpressionAttributeNames: map[string]string{"#name": "name"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":name":        &types.AttributeValueMemberS{Value: name},
			":description": &types.AttributeValueMemberS{Value: description},
			":at":          timeValue(at),
		},
	}, "distributionId")
}

// DeleteDistribution はディストリビューションを削除します
func (s *Store) DeleteDistribution(ctx context.Context, distributionID string) error {
	return s.deleteExisting(ctx, s.tables.Distributions, stringKey("distributionId", distributionID), "distributionId")
}

type edgeFunctionItem struct {
	FunctionID    string                  `dynamodbav:"functionId"`
	FunctionName  string                  `dynamodbav:"functionName"`
	FunctionARN   string                  `dynamodbav:"functionArn"`
	VersionedARN  string                  `dynamodbav:"versionArn"`
	CodeContent   string                  `dynamodbav:"codeContent"`
	Origins       []domain.OriginSnapshot `dynamodbav:"origins"`
	RegionMapping map[string]string       `dynamodbav:"regionMapping"`
	PresetKey     string                  `dynamodbav:"preset"`
	Status        string                  `dynamodbav:"status"`
	CreatedBy     string                  `dynamodbav:"createdBy,omitempty"`
	CreatedAt     time.Time               `dynamodbav:"createdAt"`
	UpdatedAt     time.Time               `dynamodbav:"updatedAt"`
}

func (i edgeFunctionItem) toDomain() domain.EdgeFunction {
	return domain.EdgeFunction(i)
}

// PutEdgeFunction はエッジ関数を登録します
func (s *Store) PutEdgeFunction(ctx context.Context, f domain.EdgeFunction) error {
	return s.putNew(ctx, s.tables.EdgeFunctions, "functionId", edgeFunctionItem(f))
}

// GetEdgeFunction はエッジ関数を取得します
func (s *Store) GetEdgeFunction(ctx context.Context, functionID string) (domain.EdgeFunction, error) {
	var item edgeFunctionItem
	if err := s.getItem(ctx, s.tables.EdgeFunctions, stringKey("functionId", functionID), &item); err != nil {
		return domain.EdgeFunction{}, err
	}
	return item.toDomain(), nil
}

// ListEdgeFunctions はエッジ関数を作成順に返します
func (s *Store) ListEdgeFunctions(ctx context.Context) ([]domain.EdgeFunction, error) {
	items, err := scanAll[edgeFunctionItem](ctx, s.client, &dynamodb.ScanInput{TableName: aws.String(s.tables.EdgeFunctions)})
	if err != nil {
		return nil, err
	}
	out := make([]domain.EdgeFunction, 0, len(items))
	for _, item := range items {
		out = append(out, item.toDomain())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// UpdateEdgeFunctionStatus はエッジ関数の状態を更新します
func (s *Store) UpdateEdgeFunctionStatus(ctx context.Context, functionID, status string, at time.Time) error {
	return s.updateExisting(ctx, &dynamodb.UpdateItemInput{
		TableName:                aws.String(s.tables.EdgeFunctions),
		Key:                      stringKey("functionId", functionID),
		UpdateExpression:         aws.String("SET #status = :status, updatedAt = :at"),
		ExpressionAttributeNames: map[string]string{"#status": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: status},
			":at":     timeValue(at),
		},
	}, "functionId")
}

// DeleteEdgeFunction はエッジ関数を削除します
func (s *Store) DeleteEdgeFunction(ctx context.Context, functionID string) error {
	return s.deleteExisting(ctx, s.tables.EdgeFunctions, stringKey("functionId", functionID), "functionId")
}
