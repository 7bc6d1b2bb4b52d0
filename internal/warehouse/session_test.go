package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/athena"
	"github.com/aws/aws-sdk-go/service/s3"
)

// fakeAthena answers queries from canned pages and records what it was sent.
type fakeAthena struct {
	started   []*athena.StartQueryExecutionInput
	states    []string // returned by successive GetQueryExecution calls
	reason    string
	stmtType  string
	location  string
	pages     []*athena.GetQueryResultsOutput
	polls     int
	stopped   []string
	startErr  error
	resultErr error
}

func (f *fakeAthena) StartQueryExecutionWithContext(_ aws.Context, in *athena.StartQueryExecutionInput, _ ...request.Option) (*athena.StartQueryExecutionOutput, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.started = append(f.started, in)
	return &athena.StartQueryExecutionOutput{QueryExecutionId: aws.String("q-1")}, nil
}

func (f *fakeAthena) GetQueryExecutionWithContext(ctx aws.Context, in *athena.GetQueryExecutionInput, _ ...request.Option) (*athena.GetQueryExecutionOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	state := athena.QueryExecutionStateSucceeded
	if f.polls < len(f.states) {
		state = f.states[f.polls]
	}
	f.polls++
	return &athena.GetQueryExecutionOutput{QueryExecution: &athena.QueryExecution{
		QueryExecutionId: in.QueryExecutionId,
		StatementType:    aws.String(f.stmtType),
		Status: &athena.QueryExecutionStatus{
			State:             aws.String(state),
			StateChangeReason: aws.String(f.reason),
		},
		ResultConfiguration: &athena.ResultConfiguration{OutputLocation: aws.String(f.location)},
	}}, nil
}

func (f *fakeAthena) GetQueryResultsPagesWithContext(_ aws.Context, _ *athena.GetQueryResultsInput, fn func(*athena.GetQueryResultsOutput, bool) bool, _ ...request.Option) error {
	if f.resultErr != nil {
		return f.resultErr
	}
	for i, p := range f.pages {
		if !fn(p, i == len(f.pages)-1) {
			break
		}
	}
	return nil
}

func (f *fakeAthena) StopQueryExecutionWithContext(_ aws.Context, in *athena.StopQueryExecutionInput, _ ...request.Option) (*athena.StopQueryExecutionOutput, error) {
	f.stopped = append(f.stopped, aws.StringValue(in.QueryExecutionId))
	return &athena.StopQueryExecutionOutput{}, nil
}

type fakeS3 struct {
	body   string
	bucket string
	key    string
}

func (f *fakeS3) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	f.bucket = aws.StringValue(in.Bucket)
	f.key = aws.StringValue(in.Key)
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(f.body))}, nil
}

// collector is a RowWriter that copies what it receives.
type collector struct {
	header []string
	rows   [][]sql.NullString
}

func (c *collector) WriteHeader(cols []string) error {
	c.header = cols
	return nil
}

func (c *collector) WriteRow(row []sql.NullString) error {
	c.rows = append(c.rows, append([]sql.NullString(nil), row...))
	return nil
}

func testSession(api *fakeAthena, objects ObjectGetter) *Session {
	return New(api, objects, Options{
		Schema:         "study",
		WorkGroup:      "primary",
		OutputLocation: "s3://staging/results/",
		PollInterval:   time.Millisecond,
		PageSize:       2,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func datum(v string) *athena.Datum { return &athena.Datum{VarCharValue: aws.String(v)} }

func row(values ...*athena.Datum) *athena.Row { return &athena.Row{Data: values} }

func meta(names ...string) *athena.ResultSetMetadata {
	m := &athena.ResultSetMetadata{}
	for _, n := range names {
		m.ColumnInfo = append(m.ColumnInfo, &athena.ColumnInfo{Name: aws.String(n), Type: aws.String("varchar")})
	}
	return m
}

func TestQuerySkipsDMLHeaderRow(t *testing.T) {
	api := &fakeAthena{
		stmtType: athena.StatementTypeDml,
		pages: []*athena.GetQueryResultsOutput{
			{ResultSet: &athena.ResultSet{
				ResultSetMetadata: meta("surveyname", "surveykey"),
				Rows: []*athena.Row{
					row(datum("surveyname"), datum("surveykey")),
					row(datum("Mood Survey"), datum("K1")),
				},
			}},
			{ResultSet: &athena.ResultSet{
				Rows: []*athena.Row{row(datum("Sleep Quality"), &athena.Datum{})},
			}},
		},
	}
	s := testSession(api, nil)

	res, err := s.Query(context.Background(), "SELECT surveyname, surveykey FROM surveyresults")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}

	if got := strings.Join(res.ColumnNames(), ","); got != "surveyname,surveykey" {
		t.Errorf("unexpected columns %s", got)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(res.Rows))
	}
	if res.Rows[0][0].String != "Mood Survey" {
		t.Errorf("expected first row Mood Survey, got %q", res.Rows[0][0].String)
	}
	if res.Rows[1][1].Valid {
		t.Error("expected missing value to be NULL")
	}
}

func TestQueryKeepsUtilityFirstRow(t *testing.T) {
	api := &fakeAthena{
		stmtType: athena.StatementTypeUtility,
		pages: []*athena.GetQueryResultsOutput{
			{ResultSet: &athena.ResultSet{
				ResultSetMetadata: meta("tab_name"),
				Rows:              []*athena.Row{row(datum("fitbitdailydata")), row(datum("surveyresults"))},
			}},
		},
	}
	s := testSession(api, nil)

	res, err := s.Query(context.Background(), "SHOW TABLES")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}

	tables, err := res.Values("tab_name")
	if err != nil {
		t.Fatalf("Values() error = %v", err)
	}
	if strings.Join(tables, ",") != "fitbitdailydata,surveyresults" {
		t.Errorf("unexpected tables %v", tables)
	}
}

func TestQueryBindsParameters(t *testing.T) {
	api := &fakeAthena{stmtType: athena.StatementTypeDml}
	s := testSession(api, nil)

	if _, err := s.Query(context.Background(), "SELECT 1 WHERE surveykey = ?", "'K1'"); err != nil {
		t.Fatalf("Query() error = %v", err)
	}

	if len(api.started) != 1 {
		t.Fatalf("expected one query, got %d", len(api.started))
	}
	in := api.started[0]
	if got := aws.StringValueSlice(in.ExecutionParameters); len(got) != 1 || got[0] != "'K1'" {
		t.Errorf("unexpected execution parameters %v", got)
	}
	if aws.StringValue(in.QueryExecutionContext.Database) != "study" {
		t.Errorf("expected database study, got %s", aws.StringValue(in.QueryExecutionContext.Database))
	}
	if aws.StringValue(in.WorkGroup) != "primary" {
		t.Errorf("expected work group primary, got %s", aws.StringValue(in.WorkGroup))
	}
	if aws.StringValue(in.ResultConfiguration.OutputLocation) != "s3://staging/results/" {
		t.Errorf("unexpected output location %s", aws.StringValue(in.ResultConfiguration.OutputLocation))
	}
}

func TestQueryWithoutParametersLeavesThemUnset(t *testing.T) {
	api := &fakeAthena{stmtType: athena.StatementTypeDml}
	s := testSession(api, nil)

	if _, err := s.Query(context.Background(), "SELECT 1"); err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if api.started[0].ExecutionParameters != nil {
		t.Error("execution parameters must be omitted when there are none")
	}
}

func TestQueryPollsUntilTerminal(t *testing.T) {
	api := &fakeAthena{
		stmtType: athena.StatementTypeDml,
		states:   []string{athena.QueryExecutionStateQueued, athena.QueryExecutionStateRunning},
	}
	s := testSession(api, nil)

	if _, err := s.Query(context.Background(), "SELECT 1"); err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if api.polls != 3 {
		t.Errorf("expected 3 polls, got %d", api.polls)
	}
}

func TestQueryFailed(t *testing.T) {
	api := &fakeAthena{
		states: []string{athena.QueryExecutionStateFailed},
		reason: "TABLE_NOT_FOUND: line 1:15: Table does not exist",
	}
	s := testSession(api, nil)

	_, err := s.Query(context.Background(), "SELECT * FROM missing")
	if !errors.Is(err, ErrQueryFailed) {
		t.Fatalf("expected ErrQueryFailed, got %v", err)
	}

	var qerr *QueryError
	if !errors.As(err, &qerr) {
		t.Fatalf("expected *QueryError, got %T", err)
	}
	if qerr.State != athena.QueryExecutionStateFailed || !strings.Contains(qerr.Reason, "TABLE_NOT_FOUND") {
		t.Errorf("unexpected query error %+v", qerr)
	}
}

func TestQueryStartError(t *testing.T) {
	api := &fakeAthena{startErr: errors.New("AccessDeniedException")}
	s := testSession(api, nil)

	_, err := s.Query(context.Background(), "SELECT 1")
	if err == nil || !strings.Contains(err.Error(), "AccessDeniedException") {
		t.Fatalf("expected start error to propagate, got %v", err)
	}
}

func TestQueryResultsError(t *testing.T) {
	api := &fakeAthena{stmtType: athena.StatementTypeDml, resultErr: errors.New("throttled")}
	s := testSession(api, nil)

	if _, err := s.Query(context.Background(), "SELECT 1"); err == nil {
		t.Fatal("expected results error")
	}
}

func TestQueryCancelledStopsQuery(t *testing.T) {
	api := &fakeAthena{states: []string{athena.QueryExecutionStateRunning, athena.QueryExecutionStateRunning}}
	s := testSession(api, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Query(ctx, "SELECT 1")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(api.stopped) != 1 || api.stopped[0] != "q-1" {
		t.Errorf("expected query q-1 to be stopped, got %v", api.stopped)
	}
}

func TestStream(t *testing.T) {
	api := &fakeAthena{
		stmtType: athena.StatementTypeDml,
		location: "s3://staging/results/q-1.csv",
	}
	objects := &fakeS3{body: "\"participantidentifier\",\"steps\"\n\"p1\",\"100\"\n\"p2\",\n"}
	s := testSession(api, objects)

	c := &collector{}
	n, err := s.Stream(context.Background(), c, `SELECT * FROM "fitbitdailydata"`)
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	if n != 2 {
		t.Errorf("expected 2 rows, got %d", n)
	}
	if objects.bucket != "staging" || objects.key != "results/q-1.csv" {
		t.Errorf("unexpected object s3://%s/%s", objects.bucket, objects.key)
	}
	if strings.Join(c.header, ",") != "participantidentifier,steps" {
		t.Errorf("unexpected header %v", c.header)
	}
	if c.rows[0][1].String != "100" || !c.rows[0][1].Valid {
		t.Errorf("unexpected first row %v", c.rows[0])
	}
	if c.rows[1][1].Valid {
		t.Error("expected empty cell to be NULL")
	}
}

func TestStreamKeepsQuotedEmptyStrings(t *testing.T) {
	api := &fakeAthena{location: "s3://staging/results/q-1.csv"}
	body := "\"participantidentifier\",\"note\",\"steps\"\n" +
		"\"p1\",\"\",\"10\"\n" +
		"\"p2\",,\"20\"\n" +
		"\"p3\",\"two\nlines\",\n" +
		"\"p4\",\"\","
	s := testSession(api, &fakeS3{body: body})

	c := &collector{}
	n, err := s.Stream(context.Background(), c, "SELECT 1")
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4 rows, got %d", n)
	}

	tests := []struct {
		name  string
		cell  sql.NullString
		valid bool
	}{
		{"quoted empty", c.rows[0][1], true},
		{"unquoted empty", c.rows[1][1], false},
		{"after multi-line field", c.rows[2][2], false},
		{"last line without newline", c.rows[3][1], true},
		{"trailing unquoted empty", c.rows[3][2], false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.cell.Valid != tt.valid || tt.cell.String != "" {
				t.Errorf("got %+v, want valid=%v empty string", tt.cell, tt.valid)
			}
		})
	}
	if c.rows[2][1].String != "two\nlines" {
		t.Errorf("unexpected multi-line value %q", c.rows[2][1].String)
	}
}

func TestStreamEmptyFile(t *testing.T) {
	api := &fakeAthena{location: "s3://staging/results/q-1.csv"}
	s := testSession(api, &fakeS3{})

	if _, err := s.Stream(context.Background(), &collector{}, "SELECT 1"); err == nil {
		t.Fatal("expected error for empty result file")
	}
}

func TestStreamWithoutObjectStore(t *testing.T) {
	s := testSession(&fakeAthena{}, nil)

	if _, err := s.Stream(context.Background(), &collector{}, "SELECT 1"); err == nil {
		t.Fatal("expected error without an object store client")
	}
}

func TestParseS3URI(t *testing.T) {
	tests := []struct {
		uri         string
		bucket, key string
		wantErr     bool
	}{
		{uri: "s3://bucket/path/to/q.csv", bucket: "bucket", key: "path/to/q.csv"},
		{uri: "s3://bucket/q.csv", bucket: "bucket", key: "q.csv"},
		{uri: "s3://bucket", wantErr: true},
		{uri: "s3://bucket/", wantErr: true},
		{uri: "https://bucket/q.csv", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, key, err := ParseS3URI(tt.uri)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseS3URI(%q) error = %v, wantErr %v", tt.uri, err, tt.wantErr)
			}
			if bucket != tt.bucket || key != tt.key {
				t.Errorf("ParseS3URI(%q) = %q, %q", tt.uri, bucket, key)
			}
		})
	}
}

func TestResultEmit(t *testing.T) {
	res := &Result{
		Columns: []Column{{Name: "a"}, {Name: "b"}},
		Rows: [][]sql.NullString{
			{{String: "1", Valid: true}, {}},
			{{String: "2", Valid: true}, {String: "x", Valid: true}},
		},
	}

	c := &collector{}
	n, err := res.Emit(c)
	if err != nil {
		t.Fatalf("Emit() error = %v", err)
	}
	if n != 2 || len(c.rows) != 2 {
		t.Errorf("expected 2 rows, got %d", n)
	}
	if strings.Join(c.header, ",") != "a,b" {
		t.Errorf("unexpected header %v", c.header)
	}
}

func TestResultValuesMissingColumn(t *testing.T) {
	res := &Result{Columns: []Column{{Name: "a"}}}
	if _, err := res.Values("b"); err == nil {
		t.Fatal("expected error for missing column")
	}
}
