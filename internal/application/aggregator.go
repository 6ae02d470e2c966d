package application

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"lightctl/internal/domain"
)

// SuccessPolicy decides when a control request as a whole counts as successful.
type SuccessPolicy string

const (
	// PolicyAny succeeds when at least one matched device succeeded.
	PolicyAny SuccessPolicy = "any"
	// PolicyAll succeeds only when every matched device succeeded.
	PolicyAll SuccessPolicy = "all"
)

func ParseSuccessPolicy(s string) (SuccessPolicy, error) {
	switch SuccessPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyAny:
		return PolicyAny, nil
	case PolicyAll:
		return PolicyAll, nil
	default:
		return "", fmt.Errorf("unknown success policy %q", s)
	}
}

// Aggregate orders results by dispatch position and summarizes them.
func Aggregate(results []domain.DeviceResult, filter string, policy SuccessPolicy, now time.Time) domain.ControlResponse {
	ordered := make([]domain.DeviceResult, len(results))
	copy(ordered, results)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Seq < ordered[j].Seq })

	resp := domain.ControlResponse{
		Results:   ordered,
		Timestamp: domain.Timestamp(now),
	}

	total := len(ordered)
	if total == 0 {
		if strings.TrimSpace(filter) == "" {
			resp.Message = "No devices available"
		} else {
			resp.Message = fmt.Sprintf("No devices matched %q", filter)
		}
		return resp
	}

	succeeded := 0
	for _, r := range ordered {
		if r.Success {
			succeeded++
		}
	}

	resp.Message = fmt.Sprintf("Controlled %d/%d devices successfully", succeeded, total)
	switch policy {
	case PolicyAll:
		resp.Success = succeeded == total
	default:
		resp.Success = succeeded > 0
	}
	return resp
}
