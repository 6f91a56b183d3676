package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDriver(t *testing.T) {
	cfg := map[string]string{"host": "db", "port": "3306", "user": "u", "password": "p", "database": "feed"}

	d, err := NewDriver("mysql", cfg)
	require.NoError(t, err)
	m, ok := d.(*MySQLDriver)
	require.True(t, ok)
	assert.Equal(t, 3306, m.Port)
	assert.Equal(t, "u:p@tcp(db:3306)/feed?parseTime=true", m.dsn())

	d, err = NewDriver("postgresql", cfg)
	require.NoError(t, err)
	p, ok := d.(*PostgresDriver)
	require.True(t, ok)
	assert.Equal(t, "host=db port=3306 user=u password=p dbname=feed sslmode=disable", p.dsn())

	_, err = NewDriver("oracle", cfg)
	assert.Error(t, err)
}

func TestCloseWithoutConnect(t *testing.T) {
	assert.NoError(t, (&MySQLDriver{}).Close())
	assert.NoError(t, (&PostgresDriver{}).Close())
}

func TestAtoi(t *testing.T) {
	assert.Equal(t, 5432, atoi("5432"))
	assert.Equal(t, 0, atoi("x"))
}
