// Package testutil provides testing utilities for shopsync
package testutil

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/ajitpratap0/shopsync/pkg/connector/core"
)

// TestContext creates a test context with a 30-second timeout.
// The caller must call the returned cancel function to avoid leaks.
func TestContext(_ *testing.T) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// RequireEnv returns the environment variable or skips the test when it is
// unset. Used to gate tests that need a live database or bucket.
func RequireEnv(t *testing.T, key string) string {
	t.Helper()
	v := os.Getenv(key)
	if v == "" {
		t.Skipf("%s not set", key)
	}
	return v
}

// OrdersTable is a small table shaped like the flattened orders resource
var OrdersTable = core.Table{
	Name:    "orders",
	Columns: []string{"id", "name", "email", "total_price", "test", "created_at"},
}

// OrderRows returns n order rows with ids starting at first. Every third
// row has a NULL email.
func OrderRows(first, n int) []core.Row {
	rows := make([]core.Row, n)
	for i := range rows {
		id := first + i
		var email interface{} = fmt.Sprintf("buyer%d@example.com", id)
		if id%3 == 0 {
			email = nil
		}
		rows[i] = core.Row{
			"id":          int64(5000000000 + id),
			"name":        fmt.Sprintf("#%d", 1000+id),
			"email":       email,
			"total_price": float64(id) + 0.5,
			"test":        id%2 == 0,
			"created_at":  time.Date(2025, 10, 1, 0, 0, id, 0, time.UTC).Format(time.RFC3339),
		}
	}
	return rows
}
