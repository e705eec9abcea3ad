package database

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDSN(t *testing.T) {
	cfg := Config{Host: "db", Port: 5432, User: "truefantix", Password: "secret", DBName: "truefantix", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=truefantix password=secret dbname=truefantix sslmode=disable", cfg.DSN())
}

func TestMigrationsAreIdempotent(t *testing.T) {
	create := regexp.MustCompile(`(?i)CREATE\s+(UNIQUE\s+)?(TABLE|INDEX)\s+(\S+\s+\S+\s+\S+)?`)
	for i, m := range Migrations {
		for _, stmt := range create.FindAllString(m, -1) {
			assert.True(t, strings.Contains(strings.ToUpper(stmt), "IF NOT EXISTS"),
				"migration %d: %q", i+1, strings.TrimSpace(stmt))
		}
	}
}
