// Package warehouse runs SQL against the study's Athena workgroup and hands
// back tabular results.
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/athena"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/nextgensh/mdh-export/internal/config"
)

// ErrQueryFailed is returned when a query ends in the FAILED or CANCELLED state.
var ErrQueryFailed = errors.New("query did not succeed")

// API is the subset of the Athena client used by Session.
type API interface {
	StartQueryExecutionWithContext(aws.Context, *athena.StartQueryExecutionInput, ...request.Option) (*athena.StartQueryExecutionOutput, error)
	GetQueryExecutionWithContext(aws.Context, *athena.GetQueryExecutionInput, ...request.Option) (*athena.GetQueryExecutionOutput, error)
	GetQueryResultsPagesWithContext(aws.Context, *athena.GetQueryResultsInput, func(*athena.GetQueryResultsOutput, bool) bool, ...request.Option) error
	StopQueryExecutionWithContext(aws.Context, *athena.StopQueryExecutionInput, ...request.Option) (*athena.StopQueryExecutionOutput, error)
}

// ObjectGetter is the subset of the S3 client used to stream result files.
type ObjectGetter interface {
	GetObjectWithContext(aws.Context, *s3.GetObjectInput, ...request.Option) (*s3.GetObjectOutput, error)
}

// Options controls where and how queries run.
type Options struct {
	Schema         string
	WorkGroup      string
	OutputLocation string
	PollInterval   time.Duration
	PageSize       int64
}

// QueryError describes a query that reached a terminal state other than SUCCEEDED.
type QueryError struct {
	ID     string
	State  string
	Reason string
}

func (e *QueryError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("query %s %s: %s", e.ID, e.State, e.Reason)
	}
	return fmt.Sprintf("query %s %s", e.ID, e.State)
}

func (e *QueryError) Unwrap() error { return ErrQueryFailed }

// Session is the single connection to the query service. It is not safe for
// concurrent use; queries run one after another.
type Session struct {
	api     API
	objects ObjectGetter
	opts    Options
	logger  *slog.Logger
}

// New creates a session over existing clients.
func New(api API, objects ObjectGetter, opts Options, logger *slog.Logger) *Session {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 1000
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{api: api, objects: objects, opts: opts, logger: logger}
}

// Open creates a session from static credentials in cfg.
func Open(cfg *config.Config, logger *slog.Logger) (*Session, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(cfg.Region),
		Credentials: credentials.NewStaticCredentials(
			cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken,
		),
	})
	if err != nil {
		return nil, fmt.Errorf("creating aws session: %w", err)
	}

	return New(athena.New(sess), s3.New(sess), Options{
		Schema:         cfg.Schema,
		WorkGroup:      cfg.WorkGroup,
		OutputLocation: cfg.StagingDir,
		PollInterval:   cfg.PollInterval,
		PageSize:       cfg.PageSize,
	}, logger), nil
}

// execute starts query with params bound to its placeholders and blocks until
// the query reaches a terminal state.
func (s *Session) execute(ctx context.Context, query string, params []string) (*athena.QueryExecution, error) {
	input := &athena.StartQueryExecutionInput{
		QueryString: aws.String(query),
		QueryExecutionContext: &athena.QueryExecutionContext{
			Database: aws.String(s.opts.Schema),
		},
		ResultConfiguration: &athena.ResultConfiguration{
			OutputLocation: aws.String(s.opts.OutputLocation),
		},
		WorkGroup: aws.String(s.opts.WorkGroup),
	}
	if len(params) > 0 {
		input.ExecutionParameters = aws.StringSlice(params)
	}

	out, err := s.api.StartQueryExecutionWithContext(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("starting query: %w", err)
	}
	id := aws.StringValue(out.QueryExecutionId)
	s.logger.Debug("query started", "query_id", id)

	return s.wait(ctx, id)
}

func (s *Session) wait(ctx context.Context, id string) (*athena.QueryExecution, error) {
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		out, err := s.api.GetQueryExecutionWithContext(ctx, &athena.GetQueryExecutionInput{
			QueryExecutionId: aws.String(id),
		})
		if err != nil {
			if ctx.Err() != nil {
				s.stop(id)
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("checking query %s: %w", id, err)
		}

		qe := out.QueryExecution
		state := ""
		reason := ""
		if qe != nil && qe.Status != nil {
			state = aws.StringValue(qe.Status.State)
			reason = aws.StringValue(qe.Status.StateChangeReason)
		}

		switch state {
		case athena.QueryExecutionStateSucceeded:
			s.logger.Debug("query succeeded", "query_id", id)
			return qe, nil
		case athena.QueryExecutionStateFailed, athena.QueryExecutionStateCancelled:
			return nil, &QueryError{ID: id, State: state, Reason: reason}
		}

		select {
		case <-ctx.Done():
			s.stop(id)
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// stop asks the service to cancel an abandoned query.
func (s *Session) stop(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := s.api.StopQueryExecutionWithContext(ctx, &athena.StopQueryExecutionInput{
		QueryExecutionId: aws.String(id),
	}); err != nil {
		s.logger.Warn("could not stop query", "query_id", id, "error", err)
		return
	}
	s.logger.Info("stopped query", "query_id", id)
}
