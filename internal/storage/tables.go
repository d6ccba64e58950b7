package storage

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"
)

// CreateTablesIfNotExist creates the users table for local development
func CreateTablesIfNotExist(ctx context.Context, client *dynamodb.Client, cfg Config, logger zerolog.Logger) error {
	_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(cfg.UsersTable),
	})
	if err == nil {
		logger.Info().Str("table", cfg.UsersTable).Msg("table already exists")
		return nil
	}

	_, err = client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(cfg.UsersTable),
		KeySchema: []dbtypes.KeySchemaElement{
			{AttributeName: aws.String(usersKey), KeyType: dbtypes.KeyTypeHash},
		},
		AttributeDefinitions: []dbtypes.AttributeDefinition{
			{AttributeName: aws.String(usersKey), AttributeType: dbtypes.ScalarAttributeTypeS},
		},
		BillingMode: dbtypes.BillingModePayPerRequest,
	})
	if err != nil {
		return fmt.Errorf("failed to create table %s: %w", cfg.UsersTable, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(cfg.UsersTable)}, tableWaitTimeout); err != nil {
		return fmt.Errorf("failed waiting for table %s: %w", cfg.UsersTable, err)
	}
	logger.Info().Str("table", cfg.UsersTable).Msg("table created")
	return nil
}
