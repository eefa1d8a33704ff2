package main

import (
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestFailureFieldsCarrySQLState(t *testing.T) {
	err := fmt.Errorf("goose up: %w", &pq.Error{Code: "42P01", Table: "orders", Detail: "missing"})

	fields := failureFields(err)
	assert.Equal(t, "42P01", fields["sql_state"])
	assert.Equal(t, "orders", fields["sql_table"])

	plain := failureFields(fmt.Errorf("no such file"))
	assert.NotContains(t, plain, "sql_state")
	assert.Contains(t, plain, "error_chain")
}
