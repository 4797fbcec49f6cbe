package mysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDSN_AddsParseTime(t *testing.T) {
	assert.Equal(t, "u:p@tcp(db:3306)/ftf?parseTime=true", DSN("u:p@tcp(db:3306)/ftf"))
	assert.Equal(t, "u:p@tcp(db:3306)/ftf?charset=utf8mb4&parseTime=true", DSN("u:p@tcp(db:3306)/ftf?charset=utf8mb4"))
	assert.Equal(t, "u:p@/ftf?parseTime=false", DSN("u:p@/ftf?parseTime=false"))
}
