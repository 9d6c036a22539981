// Package provider opens a queryreader Connection for the backend named in a Config.
package provider

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"google.golang.org/api/option"

	"github.com/kent-id/queryreader"
	"github.com/kent-id/queryreader/sdk/athena"
	"github.com/kent-id/queryreader/sdk/bigquery"
)

// NewService builds the remote execution service for cfg.Backend.
func NewService(ctx context.Context, cfg *queryreader.Config) (queryreader.Service, error) {
	switch cfg.Backend {
	case queryreader.BackendBigQuery:
		var opts []option.ClientOption
		if cfg.CredentialsFile != "" {
			opts = append(opts, option.WithAuthCredentialsFile(option.ServiceAccount, cfg.CredentialsFile))
		}
		if cfg.Endpoint != "" {
			opts = append(opts, option.WithEndpoint(cfg.Endpoint))
		}
		return bigquery.New(ctx, opts...)

	case queryreader.BackendAthena:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return athena.New(awsCfg,
			athena.WithWorkgroup(cfg.Workgroup),
			athena.WithOutputLocation(cfg.OutputLocation),
		), nil

	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// Open validates cfg, applies its log level and returns an open Connection.
func Open(ctx context.Context, cfg *queryreader.Config) (*queryreader.Connection, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.LogLevel != "" {
		queryreader.SetLogLevel(queryreader.ParseLogLevel(cfg.LogLevel))
	}

	service, err := NewService(ctx, cfg)
	if err != nil {
		return nil, err
	}
	conn := queryreader.NewConnection(service, cfg.ProjectID, cfg.DatasetID, cfg.ConnectionOptions()...)
	if err := conn.Open(ctx); err != nil {
		return nil, err
	}
	return conn, nil
}
