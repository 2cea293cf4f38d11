package storage

import (
	"fmt"
	"strings"
)

// listQuery assembles the run listing for both dialects; placeholder
// renders the n-th bind parameter
type listQuery struct {
	placeholder func(n int) string
	where       []string
	args        []any
}

// add appends a condition whose %s verbs are replaced with placeholders
func (q *listQuery) add(cond string, args ...any) {
	ph := make([]any, len(args))
	for i, a := range args {
		q.args = append(q.args, a)
		ph[i] = q.placeholder(len(q.args))
	}
	q.where = append(q.where, fmt.Sprintf(cond, ph...))
}

func buildListRuns(placeholder func(int) string, filter RunFilter, pagination PaginationParams) (string, []any) {
	q := &listQuery{placeholder: placeholder}
	if filter.Contract != "" {
		q.add("contract = %s", filter.Contract)
	}
	if filter.ChainID != 0 {
		q.add("EXISTS (SELECT 1 FROM chain_results c WHERE c.run_id = runs.id AND c.chain_id = %s)", int64(filter.ChainID))
	}
	if filter.Success != nil {
		q.add("success = %s", *filter.Success)
	}
	if pagination.Cursor != "" {
		q.add("(started_at, id) < (SELECT started_at, id FROM runs WHERE id = %s)", pagination.Cursor)
	}

	var b strings.Builder
	b.WriteString(`SELECT id, contract, salt, predicted_address, signer, started_at, finished_at, success, address_consistent FROM runs`)
	if len(q.where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(q.where, " AND "))
	}
	q.args = append(q.args, pagination.limit()+1)
	fmt.Fprintf(&b, " ORDER BY started_at DESC, id DESC LIMIT %s", placeholder(len(q.args)))
	return b.String(), q.args
}

// paginate trims the extra row fetched to detect a following page
func paginate(runs []Run, pagination PaginationParams) *PaginatedResult[Run] {
	limit := pagination.limit()
	res := &PaginatedResult[Run]{Data: runs}
	if len(runs) > limit {
		res.Data = runs[:limit]
		res.HasMore = true
		res.NextCursor = res.Data[limit-1].ID
	}
	if res.Data == nil {
		res.Data = []Run{}
	}
	return res
}
