package db

import (
	"database/sql"
	"fmt"

	sqlPostgres "datafeed-go/internal/sql/postgres"
	"datafeed-go/pkg/log"

	_ "github.com/lib/pq"
)

var pgLogger = log.New("postgres")

// PostgresDriver реализует DBDriver для PostgreSQL
type PostgresDriver struct {
	DB       *sql.DB
	Host     string
	Port     int
	User     string
	Pass     string
	Database string
}

func (p *PostgresDriver) dsn() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		p.Host, p.Port, p.User, p.Pass, p.Database)
}

func (p *PostgresDriver) Connect() error {
	db, err := sql.Open("postgres", p.dsn())
	if err != nil {
		return err
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	p.DB = db
	return p.Ping()
}

func (p *PostgresDriver) Close() error {
	if p.DB != nil {
		return p.DB.Close()
	}
	return nil
}

func (p *PostgresDriver) Ping() error {
	return p.DB.Ping()
}

func (p *PostgresDriver) GetExchangeByName(name string) (*Exchange, error) {
	return scanExchange(p.DB.QueryRow(sqlPostgres.GetExchangeByName, name), name)
}

func (p *PostgresDriver) GetMarginSymbols(exchange string) ([]string, error) {
	rows, err := p.DB.Query(sqlPostgres.GetMarginSymbols, exchange)
	if err != nil {
		return nil, err
	}
	return scanSymbols(rows, pgLogger)
}
