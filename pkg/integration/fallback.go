package integration

import (
	"context"
	"fmt"
	"strings"

	"github.com/BrianMills2718/OSINT-sub001/pkg/models"
)

// ExecuteWithFallback tries an adapter's declared search strategies in
// order, stopping at the first success with non-empty items. Strategies
// whose required parameter is absent from params are skipped. If every
// strategy yields an empty or failed result, the composite error lists
// each attempt.
func ExecuteWithFallback(ctx context.Context, adapter Integration, params *models.QueryParams, limit int) *models.QueryResult {
	meta := adapter.Metadata()
	sp, ok := adapter.(StrategyProvider)
	if !ok || len(meta.SearchStrategies) == 0 {
		return adapter.ExecuteSearch(ctx, params, limit)
	}
	methods := sp.StrategyMethods()

	var attempts []string
	for _, st := range meta.SearchStrategies {
		if st.RequiredParam != "" && !params.HasField(st.RequiredParam) {
			attempts = append(attempts, fmt.Sprintf("%s: skipped (missing param %q)", st.MethodName, st.RequiredParam))
			continue
		}
		fn, found := methods[st.MethodName]
		if !found {
			// Registration validation makes this unreachable; guard anyway.
			attempts = append(attempts, fmt.Sprintf("%s: not resolvable", st.MethodName))
			continue
		}

		qr, err := fn(ctx, params, limit)
		switch {
		case err != nil:
			attempts = append(attempts, fmt.Sprintf("%s: %v", st.MethodName, err))
		case qr == nil:
			attempts = append(attempts, fmt.Sprintf("%s: nil result", st.MethodName))
		case !qr.Success:
			msg := "failed"
			if qr.Error != nil {
				msg = qr.Error.Message
			}
			attempts = append(attempts, fmt.Sprintf("%s: %s", st.MethodName, msg))
		case len(qr.Items) == 0:
			attempts = append(attempts, fmt.Sprintf("%s: no results", st.MethodName))
		default:
			return qr
		}

		if ctx.Err() != nil {
			return models.FailedResult(meta, models.ClassifyError(meta.ID, ctx.Err()))
		}
	}

	return models.FailedResult(meta, models.NewSourceError(
		models.ErrKindUpstream5xx, meta.ID,
		"all search strategies exhausted: %s", strings.Join(attempts, "; ")))
}
