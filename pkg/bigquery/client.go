package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"

	"github.com/angelmondragon/campus-loyalty/pkg/config"
	"github.com/angelmondragon/campus-loyalty/pkg/gcp"
	"github.com/angelmondragon/campus-loyalty/pkg/logger"
)

const metadataTimeout = 10 * time.Second

var (
	errDatasetRequired      = errors.New("bigquery dataset is required")
	errTableNameRequired    = errors.New("bigquery table name is required")
	errClientNotInitialized = errors.New("bigquery client not initialized")
)

// Client is the analytics worker's handle on the ledger dataset.
type Client struct {
	client  *bigquery.Client
	dataset *bigquery.Dataset
	cfg     config.BigQueryConfig
}

// NewClient connects and checks that the dataset exists. Tables are checked
// by EnsureTable.
func NewClient(ctx context.Context, gcpCfg config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	projectID, err := gcp.ProjectID(gcpCfg)
	if err != nil {
		return nil, err
	}
	datasetID := strings.TrimSpace(cfg.Dataset)
	if datasetID == "" {
		return nil, errDatasetRequired
	}
	if strings.TrimSpace(cfg.LedgerTable) == "" {
		return nil, errTableNameRequired
	}

	bq, err := bigquery.NewClient(ctx, projectID, gcp.ClientOptions(gcpCfg)...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}
	c := &Client{client: bq, dataset: bq.Dataset(datasetID), cfg: cfg}

	checkCtx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()
	if _, err := c.dataset.Metadata(checkCtx); err != nil {
		_ = bq.Close()
		return nil, describe("dataset", datasetID, err)
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "dataset", datasetID), "bigquery client initialized")
	}
	return c, nil
}

// EnsureTable verifies name exists. When create is set a missing table is
// created with schema, partitioned by day on partitionField.
func (c *Client) EnsureTable(ctx context.Context, name string, schema bigquery.Schema, partitionField string, create bool) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return errTableNameRequired
	}
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	table := c.dataset.Table(name)
	_, err := table.Metadata(ctx)
	if err == nil || !isNotFound(err) || !create {
		return describe("table", name, err)
	}
	meta := &bigquery.TableMetadata{Schema: schema}
	if partitionField != "" {
		meta.TimePartitioning = &bigquery.TimePartitioning{Type: bigquery.DayPartitioningType, Field: partitionField}
	}
	if err := table.Create(ctx, meta); err != nil {
		return fmt.Errorf("creating table %q: %w", name, err)
	}
	return nil
}

// Ping checks the dataset and the ledger table are reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}
	return c.EnsureTable(ctx, c.cfg.LedgerTable, nil, "", false)
}

// InsertRows streams rows into table.
func (c *Client) InsertRows(ctx context.Context, table string, rows []any) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return errTableNameRequired
	}
	if len(rows) == 0 {
		return nil
	}
	return c.dataset.Table(table).Inserter().Put(ctx, rows)
}

func (c *Client) LedgerTable() string {
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c.cfg.LedgerTable)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func describe(kind, name string, err error) error {
	switch {
	case err == nil:
		return nil
	case isNotFound(err):
		return fmt.Errorf("%s %q does not exist", kind, name)
	default:
		return fmt.Errorf("checking %s %q: %w", kind, name, err)
	}
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
