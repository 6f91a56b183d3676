package db

import (
	"database/sql"
	"strconv"

	sqlMysql "datafeed-go/internal/sql/mysql"
	"datafeed-go/pkg/log"

	_ "github.com/go-sql-driver/mysql"
)

var mysqlLogger = log.New("mysql")

// MySQLDriver реализует DBDriver для MySQL
type MySQLDriver struct {
	DB       *sql.DB
	Host     string
	Port     int
	User     string
	Pass     string
	Database string
}

func (m *MySQLDriver) dsn() string {
	return m.User + ":" + m.Pass + "@tcp(" + m.Host + ":" + strconv.Itoa(m.Port) + ")/" + m.Database + "?parseTime=true"
}

func (m *MySQLDriver) Connect() error {
	db, err := sql.Open("mysql", m.dsn())
	if err != nil {
		return err
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	m.DB = db
	return m.Ping()
}

func (m *MySQLDriver) Close() error {
	if m.DB != nil {
		return m.DB.Close()
	}
	return nil
}

func (m *MySQLDriver) Ping() error {
	return m.DB.Ping()
}

// GetExchangeByName возвращает Exchange по имени
func (m *MySQLDriver) GetExchangeByName(name string) (*Exchange, error) {
	return scanExchange(m.DB.QueryRow(sqlMysql.GetExchangeByName, name), name)
}

// GetMarginSymbols возвращает активные маржинальные пары биржи
func (m *MySQLDriver) GetMarginSymbols(exchange string) ([]string, error) {
	rows, err := m.DB.Query(sqlMysql.GetMarginSymbols, exchange)
	if err != nil {
		return nil, err
	}
	return scanSymbols(rows, mysqlLogger)
}
