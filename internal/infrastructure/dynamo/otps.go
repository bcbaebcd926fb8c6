package dynamo

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-auth-nosql/internal/domain"
)

// OTPRepo manages one-time-passcode records.
// PK: email, SK: purpose ("signin" | "password_reset").
type OTPRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewOTPRepo(client *dynamodb.Client, tableName string) *OTPRepo {
	return &OTPRepo{client: client, tableName: tableName}
}

// Upsert writes the record, replacing any existing one for the same
// (email, purpose) in a single PutItem. The previous code is superseded
// the instant this succeeds.
func (r *OTPRepo) Upsert(ctx context.Context, rec *domain.OTPRecord) error {
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

// Get returns the live record for (email, purpose), or (nil, nil) when absent.
func (r *OTPRepo) Get(ctx context.Context, email, purpose string) (*domain.OTPRecord, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       compositeKey("email", email, "purpose", purpose),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, nil
	}
	var rec domain.OTPRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Consume flips used to true in one conditional write. The condition requires
// used = false and the stored hash to still equal codeHash, so two concurrent
// consumers of the same code, or a consumer racing a reissue, cannot both
// succeed. A lost race surfaces as domain.ErrConflict.
func (r *OTPRepo) Consume(ctx context.Context, email, purpose, codeHash string) error {
	_, err := r.client.UpdateItem(ctx, markUsedInput(r.tableName, email, purpose, codeHash))
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("otp already consumed or superseded: %w", domain.ErrConflict)
		}
		return err
	}
	return nil
}

// MarkUsed burns the record when an expired code is presented, so the same
// stale code cannot be retried. The write carries the same condition as
// Consume: if a fresh code replaced the slot after the caller's read, the
// condition fails and the new code stays live. A failed condition is a no-op,
// not an error.
func (r *OTPRepo) MarkUsed(ctx context.Context, email, purpose, codeHash string) error {
	_, err := r.client.UpdateItem(ctx, markUsedInput(r.tableName, email, purpose, codeHash))
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil
		}
		return err
	}
	return nil
}

// markUsedInput builds the conditional used-flag update for (email, purpose),
// guarded on used = false and the stored hash still matching codeHash.
func markUsedInput(table, email, purpose, codeHash string) *dynamodb.UpdateItemInput {
	return &dynamodb.UpdateItemInput{
		TableName:           aws.String(table),
		Key:                 compositeKey("email", email, "purpose", purpose),
		UpdateExpression:    aws.String("SET #u = :t"),
		ConditionExpression: aws.String("#u = :f AND code_hash = :h"),
		ExpressionAttributeNames: map[string]string{
			"#u": "used",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t": &types.AttributeValueMemberBOOL{Value: true},
			":f": &types.AttributeValueMemberBOOL{Value: false},
			":h": &types.AttributeValueMemberS{Value: codeHash},
		},
	}
}

// DeleteExpired removes all records whose expiry is before now (Unix seconds)
// and returns how many were deleted. Each delete is conditioned on the record
// still being past expiry, so a slot that Issue refreshed between the scan and
// the delete is left alone. Idempotent; safe to run concurrently with issuance
// and verification.
func (r *OTPRepo) DeleteExpired(ctx context.Context, now int64) (int, error) {
	deleted := 0
	var startKey map[string]types.AttributeValue
	for {
		out, err := r.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:            aws.String(r.tableName),
			FilterExpression:     aws.String("expires_at < :now"),
			ProjectionExpression: aws.String("email, #p"),
			ExpressionAttributeNames: map[string]string{
				"#p": "purpose",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":now": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", now)},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return deleted, err
		}
		for _, item := range out.Items {
			email, ok1 := item["email"].(*types.AttributeValueMemberS)
			purpose, ok2 := item["purpose"].(*types.AttributeValueMemberS)
			if !ok1 || !ok2 {
				continue
			}
			if _, err := r.client.DeleteItem(ctx, expiredDeleteInput(r.tableName, email.Value, purpose.Value, now)); err != nil {
				var ccf *types.ConditionalCheckFailedException
				if errors.As(err, &ccf) {
					// Reissued after the scan; the slot is live again.
					continue
				}
				return deleted, err
			}
			deleted++
		}
		if len(out.LastEvaluatedKey) == 0 {
			return deleted, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

// expiredDeleteInput builds a delete for (email, purpose) that only succeeds
// while the record is still past expiry.
func expiredDeleteInput(table, email, purpose string, now int64) *dynamodb.DeleteItemInput {
	return &dynamodb.DeleteItemInput{
		TableName:           aws.String(table),
		Key:                 compositeKey("email", email, "purpose", purpose),
		ConditionExpression: aws.String("expires_at < :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", now)},
		},
	}
}
