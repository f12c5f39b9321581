package archive

import (
	"context"

	"github.com/stcorp/muninn/pkg/dbbackend"
	"github.com/stcorp/muninn/pkg/expr"
	"github.com/stcorp/muninn/pkg/muninnerr"
)

// Search parses and analyzes query (the same step ParseQuery performs),
// runs it against the catalogue and returns the matching rows.
func (a *Archive) Search(ctx context.Context, query string, orderBy []dbbackend.OrderTerm, limit int, projection []string) ([]dbbackend.Row, error) {
	where, err := a.parseWhere(query)
	if err != nil {
		return nil, err
	}
	rows, err := a.db.Search(ctx, where, orderBy, limit, projection)
	if err != nil {
		return nil, muninnerr.NewBackendError("archive.search", err)
	}
	return rows, nil
}

// Count returns the number of products matching query.
func (a *Archive) Count(ctx context.Context, query string) (int64, error) {
	where, err := a.parseWhere(query)
	if err != nil {
		return 0, err
	}
	n, err := a.db.Count(ctx, where)
	if err != nil {
		return 0, muninnerr.NewBackendError("archive.count", err)
	}
	return n, nil
}

// Summary runs an aggregate/group-by query over the catalogue.
func (a *Archive) Summary(ctx context.Context, query string, aggregates []dbbackend.Aggregate, groupBy []dbbackend.GroupByTerm, groupByTag bool, having string, orderBy []dbbackend.OrderTerm) ([]dbbackend.SummaryRow, error) {
	where, err := a.parseWhere(query)
	if err != nil {
		return nil, err
	}
	var havingNode expr.Node
	if having != "" {
		node, err := a.parseHaving(having)
		if err != nil {
			return nil, err
		}
		havingNode = node
	}
	rows, err := a.db.Summary(ctx, where, aggregates, groupBy, groupByTag, havingNode, orderBy)
	if err != nil {
		return nil, muninnerr.NewBackendError("archive.summary", err)
	}
	return rows, nil
}
