package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/url"
	"regexp"
	"strings"
	"time"

	"retail-cohorts/pkg/models"

	_ "github.com/go-sql-driver/mysql"
)

var tableNameRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Open DSN mariadb:// ou mysql:// → format MySQL driver
func Open(dsn string) (*sql.DB, string, error) {
	mysqlDSN, err := toMySQLDSN(dsn)
	if err != nil {
		return nil, "", err
	}
	db, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		return nil, "", err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, mysqlDSN, nil
}

func toMySQLDSN(dsn string) (string, error) {
	if strings.HasPrefix(dsn, "mariadb://") || strings.HasPrefix(dsn, "mysql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("parse dsn: %w", err)
		}
		user := ""
		pass := ""
		if u.User != nil {
			user = u.User.Username()
			pw, _ := u.User.Password()
			pass = pw
		}
		host := u.Host
		db := strings.TrimPrefix(u.Path, "/")
		if user == "" || host == "" || db == "" {
			return "", fmt.Errorf("dsn incomplet (user/host/db)")
		}
		return fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true&loc=UTC&interpolateParams=true",
			user, pass, host, db), nil
	}
	return dsn, nil
}

// LoadTransactions charge la table de transactions (DATETIME-safe).
// Mêmes règles que l'ingestion fichier : client obligatoire, prix ≥ 0,
// TotalAmount = Quantity × Price.
func LoadTransactions(ctx context.Context, db *sql.DB, tableName string) (*models.Table, error) {
	if !tableNameRe.MatchString(tableName) {
		return nil, fmt.Errorf("table invalide %q: %w", tableName, models.ErrInvalidInput)
	}

	q := fmt.Sprintf(`
		SELECT t.Invoice, t.StockCode, t.CustomerID, t.Quantity, t.Price, t.InvoiceDate, t.Country
		FROM %s t
		WHERE t.CustomerID IS NOT NULL
		  AND t.Price >= 0
		ORDER BY t.InvoiceDate, t.Invoice
	`, tableName)

	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", tableName, err)
	}
	defer rows.Close()

	countRows := 0
	skipped := 0
	var out []models.Transaction
	for rows.Next() {
		countRows++
		var (
			invoice    string
			stockCode  sql.NullString
			customerID sql.NullInt64
			quantity   sql.NullInt64
			price      sql.NullFloat64
			invoiceDT  sql.NullTime
			country    sql.NullString
		)
		if err := rows.Scan(&invoice, &stockCode, &customerID, &quantity, &price, &invoiceDT, &country); err != nil {
			return nil, fmt.Errorf("scan %s: %w", tableName, err)
		}
		if !customerID.Valid || customerID.Int64 <= 0 || !invoiceDT.Valid || !price.Valid {
			skipped++
			continue
		}
		qty := int(quantity.Int64)
		out = append(out, models.Transaction{
			Invoice:     invoice,
			StockCode:   stockCode.String,
			CustomerID:  uint64(customerID.Int64),
			Quantity:    qty,
			Price:       price.Float64,
			InvoiceDate: invoiceDT.Time.UTC(),
			Country:     country.String,
			TotalAmount: models.LineTotal(qty, price.Float64),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	log.Printf("[DEBUG] Lignes lues=%d, ignorées=%d, retenues=%d", countRows, skipped, len(out))
	return models.NewTable(out)
}
