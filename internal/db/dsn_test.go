package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithDBName(t *testing.T) {
	tests := []struct {
		name     string
		dsn      string
		database string
		expected string
	}{
		{"replace", "postgres://u:p@db:5432/postgres?sslmode=disable", "blocks", "postgres://u:p@db:5432/blocks?sslmode=disable"},
		{"leading slash", "postgresql://u@db/x", "/blocks", "postgresql://u@db/blocks"},
		{"no scheme", "u@db:5432/x", "blocks", "postgres://u@db:5432/blocks"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := WithDBName(tt.dsn, tt.database)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestWithDBNameErrors(t *testing.T) {
	for _, dsn := range []string{"", "mysql://u@db/x"} {
		_, err := WithDBName(dsn, "blocks")
		assert.Error(t, err, dsn)
	}
}
