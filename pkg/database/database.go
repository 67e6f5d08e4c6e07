package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	_ "github.com/microsoft/go-mssqldb"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/BartekS5/sante-etl/pkg/logger"
)

// Dialect captures the SQL differences between the supported engines.
type Dialect struct {
	Name       string
	DriverName string
	// Placeholder returns the n-th (1-based) bind parameter.
	Placeholder func(n int) string
	// QuoteIdent quotes a table or column name.
	QuoteIdent func(name string) string
	// DateEquals compares the calendar day of a column with bind parameter n.
	DateEquals func(column string, n int) string
}

var Postgres = Dialect{
	Name:        "postgres",
	DriverName:  "postgres",
	Placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	QuoteIdent:  pq.QuoteIdentifier,
	DateEquals: func(column string, n int) string {
		return fmt.Sprintf("DATE(%s) = DATE($%d)", pq.QuoteIdentifier(column), n)
	},
}

var SQLServer = Dialect{
	Name:        "sqlserver",
	DriverName:  "sqlserver",
	Placeholder: func(n int) string { return fmt.Sprintf("@p%d", n) },
	QuoteIdent:  quoteBracket,
	DateEquals: func(column string, n int) string {
		return fmt.Sprintf("CAST(%s AS DATE) = CAST(@p%d AS DATE)", quoteBracket(column), n)
	},
}

// DialectFor returns the dialect registered under name.
// quoteBracket doubles any closing bracket, as QUOTENAME does.
func quoteBracket(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func DialectFor(name string) (Dialect, error) {
	switch name {
	case "", "postgres", "postgresql":
		return Postgres, nil
	case "sqlserver", "mssql":
		return SQLServer, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported SQL driver %q", name)
	}
}

func ConnectSQL(ctx context.Context, d Dialect, connString string) (*sql.DB, error) {
	db, err := sql.Open(d.DriverName, connString)
	if err != nil {
		return nil, fmt.Errorf("error opening %s database: %w", d.Name, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to %s database (ping failed): %w", d.Name, err)
	}

	logger.Debugf("Successfully connected to %s.", d.Name)
	return db, nil
}

func ConnectMongo(ctx context.Context, connString string) (*mongo.Client, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(connString))
	if err != nil {
		return nil, fmt.Errorf("error creating MongoDB client: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		disconnectCtx, disconnectCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer disconnectCancel()
		_ = client.Disconnect(disconnectCtx)

		return nil, fmt.Errorf("error connecting to MongoDB (ping failed): %w", err)
	}

	logger.Debugf("Successfully connected to MongoDB.")
	return client, nil
}
