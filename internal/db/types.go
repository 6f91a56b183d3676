package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"datafeed-go/pkg/log"
)

var typesLogger = log.New("db_types")

// ErrExchangeNotFound - в таблице нет активной записи биржи
var ErrExchangeNotFound = errors.New("exchange not found")

// DBDriver общий интерфейс для всех БД
type DBDriver interface {
	Connect() error
	Close() error
	Ping() error
	GetExchangeByName(name string) (*Exchange, error)
	GetMarginSymbols(exchange string) ([]string, error)
}

// Exchange - переопределения для биржи. Пустые поля не меняют значения по умолчанию.
type Exchange struct {
	ID           int
	Name         string
	Active       bool
	BaseUrl      sql.NullString
	WebsocketUrl sql.NullString
	ApiKey       sql.NullString
	ApiSecret    sql.NullString
	Passphrase   sql.NullString
}

// NewDriver создает экземпляр драйвера в зависимости от типа
func NewDriver(dbType string, cfg map[string]string) (DBDriver, error) {
	switch dbType {
	case "mysql":
		return &MySQLDriver{
			Host:     cfg["host"],
			Port:     atoi(cfg["port"]),
			User:     cfg["user"],
			Pass:     cfg["password"],
			Database: cfg["database"],
		}, nil
	case "postgresql", "postgres":
		return &PostgresDriver{
			Host:     cfg["host"],
			Port:     atoi(cfg["port"]),
			User:     cfg["user"],
			Pass:     cfg["password"],
			Database: cfg["database"],
		}, nil
	default:
		err := fmt.Errorf("unsupported database type: %s", dbType)
		typesLogger.Error("db error: %s", err.Error())
		return nil, err
	}
}

func atoi(s string) int {
	v, _ := strconv.Atoi(s)
	return v
}

// scanExchange общий для обоих драйверов
func scanExchange(row *sql.Row, name string) (*Exchange, error) {
	var ex Exchange
	err := row.Scan(&ex.ID, &ex.Name, &ex.Active, &ex.BaseUrl, &ex.WebsocketUrl, &ex.ApiKey, &ex.ApiSecret, &ex.Passphrase)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", name, ErrExchangeNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &ex, nil
}

func scanSymbols(rows *sql.Rows, logger *log.Logger) ([]string, error) {
	defer rows.Close()
	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			logger.Error("Error scanning margin symbol: %v", err)
			continue
		}
		symbols = append(symbols, s)
	}
	return symbols, rows.Err()
}
