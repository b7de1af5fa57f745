package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/care-auth-api/internal/domain"
)

// PrincipalRepo provides typed DynamoDB operations for one principal table.
// Each owner kind gets its own instance over its own table; rows never
// reference another kind's table.
type PrincipalRepo struct {
	client    *dynamodb.Client
	tableName string
	kind      domain.OwnerKind
}

func NewPrincipalRepo(client *dynamodb.Client, tableName string, kind domain.OwnerKind) *PrincipalRepo {
	return &PrincipalRepo{client: client, tableName: tableName, kind: kind}
}

// Kind returns the owner kind this registry serves.
func (r *PrincipalRepo) Kind() domain.OwnerKind { return r.kind }

func (r *PrincipalRepo) Create(ctx context.Context, p *domain.Principal) error {
	p.Kind = r.kind
	item, err := attributevalue.MarshalMap(p)
	if err != nil {
		return fmt.Errorf("marshal principal: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *PrincipalRepo) FindByID(ctx context.Context, principalID string) (*domain.Principal, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("principal_id", principalID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("principal not found: %w", domain.ErrNotFound)
	}
	var p domain.Principal
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PrincipalRepo) FindByEmail(ctx context.Context, email string) (*domain.Principal, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("email-index"),
		KeyConditionExpression: aws.String("#e = :v"),
		ExpressionAttributeNames: map[string]string{
			"#e": fieldEmail,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberS{Value: email},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("principal not found: %w", domain.ErrNotFound)
	}
	var p domain.Principal
	if err := attributevalue.UnmarshalMap(out.Items[0], &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PrincipalRepo) Update(ctx context.Context, principalID string, updates map[string]interface{}) error {
	updates[fieldUpdatedAt] = time.Now().UTC().Format(time.RFC3339)
	expr, names, values, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("principal_id", principalID),
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	return err
}

func (r *PrincipalRepo) UpdatePassword(ctx context.Context, principalID, newHash string) error {
	return r.Update(ctx, principalID, map[string]interface{}{fieldPasswordHash: newHash})
}

// MarkVerified flips the verification flag. Only a verified OTP transition
// for account_verification reaches this.
func (r *PrincipalRepo) MarkVerified(ctx context.Context, principalID string) error {
	return r.Update(ctx, principalID, map[string]interface{}{fieldVerified: true})
}

func (r *PrincipalRepo) UpdateEmail(ctx context.Context, principalID, email string) error {
	return r.Update(ctx, principalID, map[string]interface{}{fieldEmail: email})
}

func (r *PrincipalRepo) UpdatePhone(ctx context.Context, principalID, phone string) error {
	return r.Update(ctx, principalID, map[string]interface{}{fieldPhone: phone})
}
