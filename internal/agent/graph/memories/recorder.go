package memories

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/Chative-core-poc-v1/text2sql/internal/agent/model"
	logx "github.com/Chative-core-poc-v1/text2sql/pkg/logger"
)

// Recorder writes episodic memory off the turn's critical path.
type Recorder struct {
	writer  model.MemoryWriter
	timeout time.Duration
	wg      sync.WaitGroup
	now     func() time.Time
}

// NewRecorder returns a recorder over writer. A nil writer makes Record a no-op.
func NewRecorder(writer model.MemoryWriter, timeout time.Duration) *Recorder {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Recorder{writer: writer, timeout: timeout, now: time.Now}
}

// Record schedules the episode write and returns immediately. The write uses a
// fresh context so it survives the end of the turn that produced it.
func (r *Recorder) Record(userID string, ep model.QueryEpisode) {
	if r == nil || r.writer == nil {
		return
	}
	if ep.Timestamp == "" {
		ep.Timestamp = r.now().UTC().Format(time.RFC3339)
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := r.writer.SaveEpisode(ctx, userID, ep); err != nil {
			logx.Warn().Err(err).Str("user_id", userID).Msg("failed to record query episode")
			return
		}
		logx.Debug().Str("user_id", userID).Str("query_type", ep.QueryType).Msg("query episode recorded")
	}()
}

// Wait blocks until every scheduled write has finished.
func (r *Recorder) Wait() {
	if r == nil {
		return
	}
	r.wg.Wait()
}

var (
	tableRef  = regexp.MustCompile(`(?i)\b(?:from|join)\s+([a-zA-Z_][\w.]*)`)
	aggregate = regexp.MustCompile(`(?i)\b(count|sum|avg|min|max)\s*\(`)
)

// Episode builds an episode for a successful execution.
func Episode(question, sql string, success bool) model.QueryEpisode {
	return model.QueryEpisode{
		UserQuery:    question,
		GeneratedSQL: sql,
		Success:      success,
		TablesUsed:   TablesUsed(sql),
		QueryType:    QueryType(sql),
	}
}

// TablesUsed lists table names following FROM or JOIN, in order of first use.
func TablesUsed(sql string) []string {
	var tables []string
	seen := map[string]bool{}
	for _, m := range tableRef.FindAllStringSubmatch(sql, -1) {
		name := strings.ToLower(m[1])
		if seen[name] {
			continue
		}
		seen[name] = true
		tables = append(tables, name)
	}
	return tables
}

// QueryType is a coarse label for the shape of a query.
func QueryType(sql string) string {
	upper := strings.ToUpper(sql)
	switch {
	case strings.Contains(upper, " JOIN "):
		return "join"
	case aggregate.MatchString(sql) || strings.Contains(upper, "GROUP BY"):
		return "aggregation"
	case strings.Contains(upper, " WHERE "):
		return "filter"
	default:
		return "select"
	}
}
