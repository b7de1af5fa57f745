package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/care-auth-api/internal/domain"
)

// OTPRepo provides typed DynamoDB operations for the otps table.
// PK: scope (owner kind + owner id + purpose), SK: otp_id (ULID). The
// increment and status transitions are conditional writes, so concurrent
// verifications against one record serialize on the storage engine.
type OTPRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewOTPRepo(client *dynamodb.Client, tableName string) *OTPRepo {
	return &OTPRepo{client: client, tableName: tableName}
}

func (r *OTPRepo) Create(ctx context.Context, rec *domain.OTPRecord) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal otp record: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

// FindMostRecent returns the newest record for a scope. ULID sort keys make
// "newest" the last item in key order.
func (r *OTPRepo) FindMostRecent(ctx context.Context, scope string) (*domain.OTPRecord, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("#sc = :s"),
		ExpressionAttributeNames: map[string]string{
			"#sc": "scope", // reserved word
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":s": &types.AttributeValueMemberS{Value: scope},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("otp record not found: %w", domain.ErrNotFound)
	}
	var rec domain.OTPRecord
	if err := attributevalue.UnmarshalMap(out.Items[0], &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// FindPending returns every record for a scope still marked pending in
// storage, regardless of lazy expiry.
func (r *OTPRepo) FindPending(ctx context.Context, scope string) ([]domain.OTPRecord, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("#sc = :s"),
		FilterExpression:       aws.String("#st = :pending"),
		ExpressionAttributeNames: map[string]string{
			"#sc": "scope", // reserved word
			"#st": fieldStatus,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":s":       &types.AttributeValueMemberS{Value: scope},
			":pending": &types.AttributeValueMemberS{Value: string(domain.OTPPending)},
		},
	})
	if err != nil {
		return nil, err
	}
	var recs []domain.OTPRecord
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// IncrementAttempts adds one to the attempt counter and returns the new
// value. The write is conditional on the record still being pending with
// budget left; a failed condition surfaces as ErrConflict so the caller can
// re-read and classify the race.
func (r *OTPRepo) IncrementAttempts(ctx context.Context, scope, otpID string) (int, error) {
	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 compositeKey("scope", scope, "otp_id", otpID),
		UpdateExpression:    aws.String("SET attempts = attempts + :one, #ua = :now"),
		ConditionExpression: aws.String("attempts < max_attempts AND #st = :pending"),
		ExpressionAttributeNames: map[string]string{
			"#st": fieldStatus,
			"#ua": fieldUpdatedAt,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one":     &types.AttributeValueMemberN{Value: "1"},
			":pending": &types.AttributeValueMemberS{Value: string(domain.OTPPending)},
			":now":     &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return 0, fmt.Errorf("attempt increment rejected: %w", domain.ErrConflict)
		}
		return 0, err
	}
	n, ok := out.Attributes["attempts"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("attempts attribute missing from update response")
	}
	count, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("parse attempts: %w", err)
	}
	return count, nil
}

// UpdateStatus transitions a record out of pending. The condition guarantees
// at most one transition per record; a lost race surfaces as ErrConflict.
// verifiedAt is set only for the verified transition and never overwritten.
func (r *OTPRepo) UpdateStatus(ctx context.Context, scope, otpID string, status domain.OTPStatus, verifiedAt *time.Time) error {
	updates := map[string]interface{}{
		fieldStatus:    string(status),
		fieldUpdatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if verifiedAt != nil {
		updates[fieldVerifiedAt] = verifiedAt.UTC().Format(time.RFC3339Nano)
	}
	expr, names, values, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	names["#st"] = fieldStatus
	values[":pending"] = &types.AttributeValueMemberS{Value: string(domain.OTPPending)}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       compositeKey("scope", scope, "otp_id", otpID),
		UpdateExpression:          aws.String(expr),
		ConditionExpression:       aws.String("#st = :pending"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("status transition rejected: %w", domain.ErrConflict)
		}
	}
	return err
}

// ExpiredBefore scans for terminal or lazily-expired records created before
// the cutoff. Pending records inside their TTL are never returned, so purging
// cannot race a live verification.
func (r *OTPRepo) ExpiredBefore(ctx context.Context, cutoff, now time.Time) ([]domain.OTPRecord, error) {
	var recs []domain.OTPRecord
	input := &dynamodb.ScanInput{
		TableName:        aws.String(r.tableName),
		FilterExpression: aws.String("(#st <> :pending OR expires_at < :now) AND created_at < :cutoff"),
		ExpressionAttributeNames: map[string]string{
			"#st": fieldStatus,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pending": &types.AttributeValueMemberS{Value: string(domain.OTPPending)},
			":now":     &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
			":cutoff":  &types.AttributeValueMemberS{Value: cutoff.UTC().Format(time.RFC3339)},
		},
	}
	for {
		out, err := r.client.Scan(ctx, input)
		if err != nil {
			return nil, err
		}
		var page []domain.OTPRecord
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, err
		}
		recs = append(recs, page...)
		if out.LastEvaluatedKey == nil {
			return recs, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func (r *OTPRepo) Delete(ctx context.Context, scope, otpID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       compositeKey("scope", scope, "otp_id", otpID),
	})
	return err
}
