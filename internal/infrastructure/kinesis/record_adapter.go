package kinesis

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/example/storefront-orders/internal/domain/order"
)

// ConvertFromKinesisRecord converts a Kinesis record (DynamoDB Streams format) to an audit entry.
// Records other than INSERT yield a nil entry.
func ConvertFromKinesisRecord(record events.KinesisEventRecord) (*order.LogEntry, error) {
	var dynamoDBRecord events.DynamoDBEventRecord
	if err := json.Unmarshal(record.Kinesis.Data, &dynamoDBRecord); err != nil {
		return nil, fmt.Errorf("failed to unmarshal DynamoDB record: %w", err)
	}

	// The log is append-only; only new entries are of interest
	if dynamoDBRecord.EventName != "INSERT" {
		return nil, nil
	}

	return convertDynamoDBImage(dynamoDBRecord.Change.NewImage)
}

// ConvertFromDynamoDBStreamRecord converts a DynamoDB Stream record to an audit entry.
func ConvertFromDynamoDBStreamRecord(record events.DynamoDBEventRecord) (*order.LogEntry, error) {
	if record.EventName != "INSERT" {
		return nil, nil
	}

	return convertDynamoDBImage(record.Change.NewImage)
}

// convertDynamoDBImage reads the item written by store.DynamoLogStore.
func convertDynamoDBImage(image map[string]events.DynamoDBAttributeValue) (*order.LogEntry, error) {
	if image == nil {
		return nil, fmt.Errorf("DynamoDB image is nil")
	}

	entry := &order.LogEntry{}
	if v, ok := image["id"]; ok {
		entry.ID = v.String()
	}
	if v, ok := image["event"]; ok {
		entry.Event = v.String()
	}
	if v, ok := image["payload"]; ok {
		payload := v.String()
		if !json.Valid([]byte(payload)) {
			return nil, fmt.Errorf("payload of entry %s is not valid JSON", entry.ID)
		}
		entry.Payload = json.RawMessage(payload)
	}
	if v, ok := image["created_at"]; ok {
		t, err := time.Parse(time.RFC3339Nano, v.String())
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		entry.CreatedAt = t
	}

	if entry.ID == "" || entry.Event == "" || len(entry.Payload) == 0 {
		return nil, fmt.Errorf("missing required fields: id=%q, event=%q, payload=%d bytes",
			entry.ID, entry.Event, len(entry.Payload))
	}

	return entry, nil
}

// BatchConvertFromKinesisEvent converts all records from a Kinesis event to audit entries.
// Returns successfully converted entries and any errors encountered.
func BatchConvertFromKinesisEvent(kinesisEvent events.KinesisEvent) ([]*order.LogEntry, []error) {
	var entries []*order.LogEntry
	var errs []error

	for _, record := range kinesisEvent.Records {
		entry, err := ConvertFromKinesisRecord(record)
		if err != nil {
			errs = append(errs, fmt.Errorf("record %s: %w", record.EventID, err))
			continue
		}
		if entry != nil {
			entries = append(entries, entry)
		}
	}

	return entries, errs
}
