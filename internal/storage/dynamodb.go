package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"
)

const (
	usersKey         = "Username"
	tableWaitTimeout = 2 * time.Minute
)

// DynamoDBBackend keeps accounts in a DynamoDB table keyed by Username
type DynamoDBBackend struct {
	client *dynamodb.Client
	table  string
	logger zerolog.Logger
}

// NewDynamoDBBackend connects to DynamoDB, creating the table in local mode
func NewDynamoDBBackend(ctx context.Context, cfg Config, logger zerolog.Logger) (*DynamoDBBackend, error) {
	var client *dynamodb.Client

	if cfg.Mode == ModeLocal {
		// Build the client directly: LoadDefaultConfig probes the EC2 IMDS
		// endpoint, which hangs on EC2 hosts when static credentials are intended.
		client = dynamodb.New(dynamodb.Options{
			Region:       cfg.Region,
			BaseEndpoint: aws.String(cfg.Endpoint),
			Credentials:  credentials.NewStaticCredentialsProvider("local", "local", ""),
		})
	} else {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		client = dynamodb.NewFromConfig(awsCfg)
	}

	b := &DynamoDBBackend{
		client: client,
		table:  cfg.UsersTable,
		logger: logger,
	}

	if cfg.Mode == ModeLocal {
		if err := CreateTablesIfNotExist(ctx, client, cfg, logger); err != nil {
			return nil, err
		}
	}

	logger.Info().
		Str("mode", string(cfg.Mode)).
		Str("region", cfg.Region).
		Str("table", cfg.UsersTable).
		Msg("DynamoDB credential store initialized")

	return b, nil
}

func (b *DynamoDBBackend) Get(ctx context.Context, username string) (Record, error) {
	key, err := attributevalue.MarshalMap(map[string]string{usersKey: username})
	if err != nil {
		return Record{}, fmt.Errorf("failed to marshal key: %w", err)
	}

	result, err := b.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(b.table),
		Key:       key,
	})
	if err != nil {
		return Record{}, fmt.Errorf("failed to get user: %w", err)
	}
	if len(result.Item) == 0 {
		return Record{}, ErrUserNotFound
	}

	var rec Record
	if err := attributevalue.UnmarshalMap(result.Item, &rec); err != nil {
		return Record{}, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	return rec, nil
}

func (b *DynamoDBBackend) Put(ctx context.Context, rec Record) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}

	_, err = b.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(b.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

func (b *DynamoDBBackend) Create(ctx context.Context, rec Record) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}

	cond := expression.AttributeNotExists(expression.Name(usersKey))
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	_, err = b.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(b.table),
		Item:                     item,
		ConditionExpression:      expr.Condition(),
		ExpressionAttributeNames: expr.Names(),
	})
	if err != nil {
		var ccf *dbtypes.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrUserExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (b *DynamoDBBackend) Delete(ctx context.Context, username string) error {
	key, err := attributevalue.MarshalMap(map[string]string{usersKey: username})
	if err != nil {
		return fmt.Errorf("failed to marshal key: %w", err)
	}

	cond := expression.AttributeExists(expression.Name(usersKey))
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	_, err = b.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(b.table),
		Key:                      key,
		ConditionExpression:      expr.Condition(),
		ExpressionAttributeNames: expr.Names(),
	})
	if err != nil {
		var ccf *dbtypes.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

func (b *DynamoDBBackend) List(ctx context.Context) ([]Record, error) {
	var records []Record

	paginator := dynamodb.NewScanPaginator(b.client, &dynamodb.ScanInput{
		TableName: aws.String(b.table),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to scan users: %w", err)
		}

		var batch []Record
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("failed to unmarshal users: %w", err)
		}
		records = append(records, batch...)
	}
	return records, nil
}

// NewStore creates the configured credential store, seeds the initial
// admin when empty and wraps it with the profile cache.
func NewStore(ctx context.Context, cfg Config, logger zerolog.Logger) (Store, error) {
	var backend Backend

	switch cfg.Mode {
	case ModeLocal, ModeAWS:
		b, err := NewDynamoDBBackend(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		backend = b
	case ModeMemory:
		logger.Info().Msg("credential store in memory (CREDENTIALS_MODE=memory)")
		backend = NewMemoryBackend()
	default:
		logger.Info().Str("path", cfg.UsersFile).Msg("credential store on file")
		backend = NewFileBackend(cfg.UsersFile)
	}

	users := NewUsers(backend, cfg.DefaultPassword, logger)
	if err := users.EnsureAdmin(ctx); err != nil {
		return nil, err
	}
	return NewCachedStore(users, cfg.ProfileCacheTTL), nil
}
