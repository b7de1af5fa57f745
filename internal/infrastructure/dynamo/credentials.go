package dynamo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/care-auth-api/internal/domain"
)

// credentialAPI is the subset of the DynamoDB client the repo uses.
type credentialAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// CredentialRepo provides typed DynamoDB operations for the credentials table.
type CredentialRepo struct {
	client    credentialAPI
	tableName string
}

func NewCredentialRepo(client credentialAPI, tableName string) *CredentialRepo {
	return &CredentialRepo{client: client, tableName: tableName}
}

func principalScope(guard domain.OwnerKind, principalID string) string {
	return fmt.Sprintf("%s#%s", guard, principalID)
}

func (r *CredentialRepo) Create(ctx context.Context, c *domain.Credential) error {
	c.PrincipalScope = principalScope(c.Guard, c.PrincipalID)
	item, err := attributevalue.MarshalMap(c)
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *CredentialRepo) FindByID(ctx context.Context, credentialID string) (*domain.Credential, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("credential_id", credentialID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("credential not found: %w", domain.ErrNotFound)
	}
	var c domain.Credential
	if err := attributevalue.UnmarshalMap(out.Item, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// FindActiveByToken looks up a credential by its opaque token via GSI.
// Returns ErrUnauthorized when found but revoked or past expiry.
func (r *CredentialRepo) FindActiveByToken(ctx context.Context, token string) (*domain.Credential, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("token-index"),
		KeyConditionExpression: aws.String("#t = :tok"),
		ExpressionAttributeNames: map[string]string{
			"#t": "token",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":tok": &types.AttributeValueMemberS{Value: token},
		},
	})
	if err != nil {
		return nil, err
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("credential not found: %w", domain.ErrNotFound)
	}
	var c domain.Credential
	if err := attributevalue.UnmarshalMap(out.Items[0], &c); err != nil {
		return nil, err
	}
	if !c.Active(time.Now()) {
		return nil, fmt.Errorf("credential revoked or expired: %w", domain.ErrUnauthorized)
	}
	return &c, nil
}

// Revoke marks one credential revoked. Re-revoking is a no-op, so the call
// is idempotent.
func (r *CredentialRepo) Revoke(ctx context.Context, credentialID string) error {
	return r.update(ctx, credentialID, map[string]interface{}{fieldRevoked: true})
}

// RevokeAllForPrincipal marks every non-revoked credential for a principal
// revoked ("logout everywhere"). The GSI query is paginated; a principal with
// credentials past the first page still loses all of them.
func (r *CredentialRepo) RevokeAllForPrincipal(ctx context.Context, guard domain.OwnerKind, principalID string) error {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("principal_scope-index"),
		KeyConditionExpression: aws.String("principal_scope = :ps"),
		FilterExpression:       aws.String("#rv = :f"),
		ExpressionAttributeNames: map[string]string{
			"#rv": fieldRevoked,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ps": &types.AttributeValueMemberS{Value: principalScope(guard, principalID)},
			":f":  &types.AttributeValueMemberBOOL{Value: false},
		},
	}
	var firstErr error
	for {
		out, err := r.client.Query(ctx, input)
		if err != nil {
			return err
		}
		for _, item := range out.Items {
			cidAttr, ok := item["credential_id"].(*types.AttributeValueMemberS)
			if !ok {
				continue
			}
			if err := r.Revoke(ctx, cidAttr.Value); err != nil {
				slog.Warn("failed to revoke credential during revoke-all", "credential_id", cidAttr.Value, "principal_id", principalID, "err", err)
				if firstErr == nil {
					firstErr = err
				}
			}
		}
		if out.LastEvaluatedKey == nil {
			return firstErr
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func (r *CredentialRepo) update(ctx context.Context, credentialID string, updates map[string]interface{}) error {
	expr, names, values, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("credential_id", credentialID),
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	return err
}
