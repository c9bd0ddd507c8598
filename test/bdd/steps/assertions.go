package steps

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cucumber/godog"
	messages "github.com/cucumber/messages/go/v21"
	"github.com/stretchr/testify/assert"
)

const stepTimeout = 2 * time.Second

// asserter lets testify assertions report into a step's returned error
type asserter struct {
	err error
}

func (a *asserter) Errorf(format string, args ...interface{}) {
	a.err = fmt.Errorf(format, args...)
}

// check runs a testify assertion and turns a failure into an error
func check(assertion func(t assert.TestingT) bool) error {
	var a asserter
	assertion(&a)
	return a.err
}

func stepContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), stepTimeout)
}

// cell reads a value by column header; the first row is the header
func cell(table *godog.Table, row *messages.PickleTableRow, column string) string {
	if len(table.Rows) == 0 {
		return ""
	}
	for i, header := range table.Rows[0].Cells {
		if header.Value == column && i < len(row.Cells) {
			return row.Cells[i].Value
		}
	}
	return ""
}

func cellInt(table *godog.Table, row *messages.PickleTableRow, column string) (int, error) {
	raw := cell(table, row, column)
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("column %q: %q is not a number", column, raw)
	}
	return n, nil
}
