// Package dynamo is the DynamoDB store.Table backend.
package dynamo

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/jrsteele09/synchub/store"
	"github.com/pkg/errors"
)

// API is the subset of *dynamodb.Client the table uses.
type API interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	dynamodb.QueryAPIClient
}

// ClientConfig locates DynamoDB. Endpoint is set for DynamoDB Local.
type ClientConfig struct {
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	SessionToken string
}

// NewClient builds a DynamoDB client from static credentials.
func NewClient(cfg ClientConfig) *dynamodb.Client {
	opts := dynamodb.Options{
		Region: cfg.Region,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	if cfg.AccessKey != "" {
		opts.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, cfg.SessionToken)
	}
	return dynamodb.New(opts)
}

// Table stores items in one DynamoDB table whose key schema matches schema.
type Table struct {
	client API
	schema store.Schema
}

var _ store.Table = (*Table)(nil)

func New(client API, schema store.Schema) *Table {
	return &Table{client: client, schema: schema}
}

func (t *Table) key(key store.Key) (map[string]types.AttributeValue, error) {
	av, err := attributevalue.MarshalMap(map[string]string{
		t.schema.PartitionKey: key.Partition,
		t.schema.SortKey:      key.Sort,
	})
	return av, errors.Wrap(err, "marshal key")
}

// keyExists is the condition used so that updates and deletes of absent
// items fail instead of creating or silently succeeding.
func (t *Table) keyExists() (string, map[string]string) {
	return "attribute_exists(#pk)", map[string]string{"#pk": t.schema.PartitionKey}
}

func (t *Table) Get(ctx context.Context, key store.Key) (store.Item, error) {
	k, err := t.key(key)
	if err != nil {
		return nil, err
	}
	out, err := t.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(t.schema.Name),
		Key:            k,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "get item from %s", t.schema.Name)
	}
	if len(out.Item) == 0 {
		return nil, store.ErrNotFound
	}
	return unmarshal(out.Item)
}

func (t *Table) Put(ctx context.Context, item store.Item) error {
	if _, err := t.schema.KeyOf(item); err != nil {
		return err
	}
	av, err := attributevalue.MarshalMap(map[string]any(item))
	if err != nil {
		return errors.Wrap(err, "marshal item")
	}
	_, err = t.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(t.schema.Name),
		Item:      av,
	})
	return errors.Wrapf(err, "put item into %s", t.schema.Name)
}

func (t *Table) Update(ctx context.Context, key store.Key, patch store.Item) (store.Item, error) {
	if err := t.schema.CheckPatch(patch); err != nil {
		return nil, err
	}
	if len(patch) == 0 {
		return t.Get(ctx, key)
	}
	k, err := t.key(key)
	if err != nil {
		return nil, err
	}

	condition, names := t.keyExists()
	values := map[string]types.AttributeValue{}
	set, add := store.SplitPatch(patch)

	var sets, adds []string
	i := 0
	for _, f := range slices.Sorted(maps.Keys(set)) {
		name, value, err := bindAttribute(names, values, i, f, set[f])
		if err != nil {
			return nil, err
		}
		sets = append(sets, name+" = "+value)
		i++
	}
	for _, f := range slices.Sorted(maps.Keys(add)) {
		name, value, err := bindAttribute(names, values, i, f, add[f])
		if err != nil {
			return nil, err
		}
		adds = append(adds, name+" "+value)
		i++
	}

	var clauses []string
	if len(sets) > 0 {
		clauses = append(clauses, "SET "+strings.Join(sets, ", "))
	}
	if len(adds) > 0 {
		clauses = append(clauses, "ADD "+strings.Join(adds, ", "))
	}

	out, err := t.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(t.schema.Name),
		Key:                       k,
		UpdateExpression:          aws.String(strings.Join(clauses, " ")),
		ConditionExpression:       aws.String(condition),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		if conditionFailed(err) {
			return nil, store.ErrNotFound
		}
		return nil, errors.Wrapf(err, "update item in %s", t.schema.Name)
	}
	return unmarshal(out.Attributes)
}

func (t *Table) Delete(ctx context.Context, key store.Key) error {
	k, err := t.key(key)
	if err != nil {
		return err
	}
	condition, names := t.keyExists()
	_, err = t.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(t.schema.Name),
		Key:                      k,
		ConditionExpression:      aws.String(condition),
		ExpressionAttributeNames: names,
	})
	if conditionFailed(err) {
		return store.ErrNotFound
	}
	return errors.Wrapf(err, "delete item from %s", t.schema.Name)
}

func (t *Table) Query(ctx context.Context, index, value string) ([]store.Item, error) {
	attr, err := t.schema.IndexAttribute(index)
	if err != nil {
		return nil, err
	}
	v, err := attributevalue.Marshal(value)
	if err != nil {
		return nil, errors.Wrap(err, "marshal query value")
	}

	in := &dynamodb.QueryInput{
		TableName:                 aws.String(t.schema.Name),
		KeyConditionExpression:    aws.String("#a = :v"),
		ExpressionAttributeNames:  map[string]string{"#a": attr},
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": v},
	}
	if index != "" {
		in.IndexName = aws.String(index)
	}

	var items []store.Item
	paginator := dynamodb.NewQueryPaginator(t.client, in)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "query %s", t.schema.Name)
		}
		for _, raw := range page.Items {
			item, err := unmarshal(raw)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
	}
	return items, nil
}

// bindAttribute registers placeholder number i for attribute f.
func bindAttribute(names map[string]string, values map[string]types.AttributeValue, i int, f string, v any) (string, string, error) {
	av, err := attributevalue.Marshal(v)
	if err != nil {
		return "", "", errors.Wrapf(err, "marshal %s", f)
	}
	name, value := fmt.Sprintf("#f%d", i), fmt.Sprintf(":v%d", i)
	names[name] = f
	values[value] = av
	return name, value, nil
}

func unmarshal(av map[string]types.AttributeValue) (store.Item, error) {
	item := store.Item{}
	if err := attributevalue.UnmarshalMap(av, &item); err != nil {
		return nil, errors.Wrap(err, "unmarshal item")
	}
	return item, nil
}

func conditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}
