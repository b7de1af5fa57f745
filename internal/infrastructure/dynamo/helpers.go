package dynamo

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// strKey builds the key map for the single-hash-key tables (principals,
// credentials).
func strKey(name, value string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		name: &types.AttributeValueMemberS{Value: value},
	}
}

// compositeKey builds the otps table key: scope hash key plus otp_id range key.
func compositeKey(pkName, pkValue, skName, skValue string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		pkName: &types.AttributeValueMemberS{Value: pkValue},
		skName: &types.AttributeValueMemberS{Value: skValue},
	}
}

// buildUpdateExpr turns a field->value map into a SET expression. Every field
// goes through a generated name placeholder, so reserved words like "status"
// never appear literally in the expression text.
func buildUpdateExpr(updates map[string]interface{}) (string, map[string]string, map[string]types.AttributeValue, error) {
	if len(updates) == 0 {
		return "", nil, nil, fmt.Errorf("no fields to update")
	}
	names := make(map[string]string, len(updates))
	values := make(map[string]types.AttributeValue, len(updates))
	expr := "SET "
	i := 0
	for field, value := range updates {
		av, err := attributevalue.Marshal(value)
		if err != nil {
			return "", nil, nil, fmt.Errorf("marshal field %s: %w", field, err)
		}
		name := fmt.Sprintf("#u%d", i)
		placeholder := fmt.Sprintf(":u%d", i)
		names[name] = field
		values[placeholder] = av
		if i > 0 {
			expr += ", "
		}
		expr += name + " = " + placeholder
		i++
	}
	return expr, names, values, nil
}
