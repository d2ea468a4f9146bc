package postgres

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMigrations_AreIdempotent(t *testing.T) {
	for i, stmt := range migrations {
		upper := strings.ToUpper(stmt)
		assert.True(t,
			strings.Contains(upper, "IF NOT EXISTS"),
			"statement %d must be safe to re-run", i)
	}
}

func TestMigrations_ParentsBeforeChildren(t *testing.T) {
	order := map[string]int{}
	for i, stmt := range migrations {
		for _, table := range []string{"users", "apis", "api_keys", "audit_logs"} {
			if strings.Contains(stmt, "CREATE TABLE IF NOT EXISTS "+table+" (") {
				order[table] = i
			}
		}
	}

	assert.Less(t, order["users"], order["apis"])
	assert.Less(t, order["apis"], order["api_keys"])
	assert.Less(t, order["api_keys"], order["audit_logs"])
}
