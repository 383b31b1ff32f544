package testutil

import (
	"context"
	"os"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/ajitpratap0/shopsync/pkg/connector/core"
)

// DestinationSuite checks the write-mode contract every destination must
// honor. Embed it, set Open and Count, and run it with suite.Run.
type DestinationSuite struct {
	suite.Suite
	ctx       context.Context
	cancel    context.CancelFunc
	tempDir   string
	startTime time.Time

	// Open creates the destination under test; tempDir is private to the suite
	Open func(ctx context.Context, tempDir string) (core.Destination, error)
	// Count returns the number of rows currently in table
	Count func(ctx context.Context, dest core.Destination, table string) (int, error)

	dest core.Destination
}

// SetupSuite runs before all tests in the suite
func (s *DestinationSuite) SetupSuite() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 5*time.Minute)
	s.startTime = time.Now()

	tempDir, err := os.MkdirTemp("", "shopsync-test-*")
	require.NoError(s.T(), err)
	s.tempDir = tempDir

	require.NotNil(s.T(), s.Open, "DestinationSuite.Open must be set")
	require.NotNil(s.T(), s.Count, "DestinationSuite.Count must be set")
	s.dest, err = s.Open(s.ctx, s.tempDir)
	require.NoError(s.T(), err)
}

// TearDownSuite runs after all tests in the suite
func (s *DestinationSuite) TearDownSuite() {
	if s.dest != nil {
		s.NoError(s.dest.Close(s.ctx))
	}
	s.cancel()
	if s.tempDir != "" {
		os.RemoveAll(s.tempDir)
	}
	s.T().Logf("destination suite completed in %v", time.Since(s.startTime))
}

// Context returns the suite context
func (s *DestinationSuite) Context() context.Context {
	return s.ctx
}

// Destination returns the destination under test
func (s *DestinationSuite) Destination() core.Destination {
	return s.dest
}

func (s *DestinationSuite) submit(table core.Table, rows []core.Row, mode core.WriteMode) {
	s.Require().NoError(s.dest.Submit(s.ctx, table, rows, mode))
}

func (s *DestinationSuite) count(table string) int {
	n, err := s.Count(s.ctx, s.dest, table)
	s.Require().NoError(err)
	return n
}

func (s *DestinationSuite) table(name string) core.Table {
	t := OrdersTable
	t.Name = name
	return t
}

func (s *DestinationSuite) TestReplaceIsIdempotent() {
	table := s.table("orders_replace")
	s.submit(table, OrderRows(1, 7), core.WriteReplace)
	s.submit(table, OrderRows(1, 7), core.WriteReplace)
	s.Equal(7, s.count(table.Name))
}

func (s *DestinationSuite) TestReplaceSupersedes() {
	table := s.table("orders_supersede")
	s.submit(table, OrderRows(1, 10), core.WriteReplace)
	s.submit(table, OrderRows(20, 3), core.WriteReplace)
	s.Equal(3, s.count(table.Name))
}

func (s *DestinationSuite) TestReplaceWithNoRowsEmptiesTable() {
	table := s.table("orders_empty")
	s.submit(table, OrderRows(1, 4), core.WriteReplace)
	s.submit(table, nil, core.WriteReplace)
	s.Equal(0, s.count(table.Name))
}

func (s *DestinationSuite) TestAppendAccumulates() {
	table := s.table("orders_append")
	s.submit(table, OrderRows(1, 5), core.WriteReplace)
	s.submit(table, OrderRows(6, 5), core.WriteAppend)
	s.submit(table, OrderRows(11, 2), core.WriteAppend)
	s.Equal(12, s.count(table.Name))
}

func (s *DestinationSuite) TestAppendCreatesMissingTableAndColumns() {
	table := s.table("orders_new_columns")
	s.submit(table, OrderRows(1, 2), core.WriteAppend)

	wider := table
	wider.Columns = append(append([]string{}, table.Columns...), "currency")
	rows := OrderRows(3, 2)
	for _, r := range rows {
		r["currency"] = "EUR"
	}
	s.submit(wider, rows, core.WriteAppend)
	s.Equal(4, s.count(table.Name))
}
