package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/tuition-ledger-api/pkg/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{
		Host:     "db.internal",
		Port:     5432,
		User:     "ledger",
		Password: `it's a secret`,
		Name:     "tuition",
	})
	assert.Equal(t, `host=db.internal port=5432 user=ledger password='it\'s a secret' dbname=tuition sslmode=disable timezone=UTC`, dsn)
}

func TestDSNSkipsEmptyValues(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "localhost", Port: 5432, Name: "tuition", SSLMode: "require"})
	assert.Equal(t, "host=localhost port=5432 dbname=tuition sslmode=require timezone=UTC", dsn)
}
