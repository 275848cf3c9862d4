// Package query provides the upstream query-source collaborator: listing the
// distinct lenders and fetching one lender's records from the analytical
// engine. The production implementation runs against DuckDB/MotherDuck; tests
// substitute a fake Source.
package query

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver

	"lenderpulse/internal/records"
)

// Params are substituted into the query template for one lender's fetch.
type Params struct {
	StartDate string
	EndDate   string
	Lender    string
}

// Source is the upstream query engine as the pipeline sees it.
type Source interface {
	DistinctLenders(ctx context.Context) ([]string, error)
	Fetch(ctx context.Context, p Params) (*records.Set, error)
}

// The view carries its full catalog qualifier: the MotherDuck DSN attaches
// no default database, so an unqualified name would not resolve.
const distinctLendersQuery = `SELECT DISTINCT exportedLender FROM quickli_labs.main."exports-deals-view" WHERE exportedLender IS NOT NULL`

// MotherDuckDSN builds the connection string for a MotherDuck-hosted
// database from an access token.
func MotherDuckDSN(token string) string {
	return "md:?motherduck_token=" + token
}

// DuckDB is the production Source over a DuckDB or MotherDuck database.
type DuckDB struct {
	db       *sql.DB
	template string
	logger   *slog.Logger
}

// Open connects to the database and verifies the connection. template is the
// parameterized query text with {start_date}, {end_date} and {lender_name}
// placeholders.
func Open(ctx context.Context, dsn, template string, logger *slog.Logger) (*DuckDB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open duckdb connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}

	return &DuckDB{db: db, template: template, logger: logger}, nil
}

// Close closes the database connection.
func (d *DuckDB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// DistinctLenders lists every lender present in the deals view.
func (d *DuckDB) DistinctLenders(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, distinctLendersQuery)
	if err != nil {
		return nil, fmt.Errorf("fetch lenders: %w", err)
	}
	defer rows.Close()

	var lenders []string
	for rows.Next() {
		var lender string
		if err := rows.Scan(&lender); err != nil {
			return nil, fmt.Errorf("scan lender: %w", err)
		}
		lenders = append(lenders, lender)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lenders: %w", err)
	}
	return lenders, nil
}

// Fetch runs the query template for one lender and scans the result into a
// record set, preserving the engine's column order.
func (d *DuckDB) Fetch(ctx context.Context, p Params) (*records.Set, error) {
	query := ExpandTemplate(d.template, p)

	d.logger.InfoContext(ctx, "running lender query",
		"lender", p.Lender,
		"start_date", p.StartDate,
		"end_date", p.EndDate,
	)

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("run lender query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read result columns: %w", err)
	}

	set := records.NewSet(columns...)
	scan := make([]any, len(columns))
	for i := range scan {
		scan[i] = new(any)
	}
	for rows.Next() {
		if err := rows.Scan(scan...); err != nil {
			return nil, fmt.Errorf("scan result row: %w", err)
		}
		row := make(records.Row, len(columns))
		for i := range scan {
			row[i] = convertValue(*scan[i].(*any))
		}
		if err := set.Append(row); err != nil {
			return nil, fmt.Errorf("append result row: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate result rows: %w", err)
	}
	return set, nil
}

// ExpandTemplate substitutes query parameters into the template placeholders.
func ExpandTemplate(template string, p Params) string {
	return strings.NewReplacer(
		"{start_date}", p.StartDate,
		"{end_date}", p.EndDate,
		"{lender_name}", p.Lender,
	).Replace(template)
}

// convertValue maps a database/sql scan result onto a record value. Unknown
// driver types degrade to their string form rather than failing the fetch.
func convertValue(v any) records.Value {
	switch x := v.(type) {
	case nil:
		return records.Null()
	case string:
		return records.String(x)
	case []byte:
		return records.String(string(x))
	case float64:
		return records.Number(x)
	case float32:
		return records.Number(float64(x))
	case int64:
		return records.Int(x)
	case int32:
		return records.Int(int64(x))
	case int:
		return records.Int(int64(x))
	case bool:
		if x {
			return records.String("true")
		}
		return records.String("false")
	case time.Time:
		return records.Time(x)
	default:
		return records.String(fmt.Sprintf("%v", x))
	}
}
