package dynamostore

import (
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/getpup/pupstream/es/store"
)

// Cancellation reason codes of TransactWriteItems.
const (
	reasonConditionalCheckFailed = "ConditionalCheckFailed"
	reasonTransactionConflict    = "TransactionConflict"
	reasonThrottling             = "ThrottlingError"
	reasonThroughputExceeded     = "ProvisionedThroughputExceeded"
)

// classify maps DynamoDB errors onto the store contract: a failed condition
// becomes ErrOptimisticConcurrency, throttling and contention become
// transient, anything else is returned unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		retryable := false
		for _, r := range canceled.CancellationReasons {
			switch aws.ToString(r.Code) {
			case reasonConditionalCheckFailed:
				return fmt.Errorf("%s: %w", canceled.ErrorMessage(), store.ErrOptimisticConcurrency)
			case reasonTransactionConflict, reasonThrottling, reasonThroughputExceeded:
				retryable = true
			}
		}
		if retryable {
			return store.Transient(err)
		}
		return err
	}

	var (
		throughput *types.ProvisionedThroughputExceededException
		limit      *types.RequestLimitExceeded
		internal   *types.InternalServerError
		inProgress *types.TransactionInProgressException
	)
	switch {
	case errors.As(err, &throughput), errors.As(err, &limit),
		errors.As(err, &internal), errors.As(err, &inProgress):
		return store.Transient(err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "ServiceUnavailable", "TransactionConflictException":
			return store.Transient(err)
		}
	}
	return err
}
