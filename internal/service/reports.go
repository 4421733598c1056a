package service

import (
	"context"
	"strings"
	"time"

	"salonpos/backend/internal/domain"
)

func (s *Service) DailyReport(ctx context.Context, storeID string, date string) (domain.DailyReport, error) {
	st, err := s.resolveStore(ctx, storeID)
	if err != nil {
		return domain.DailyReport{}, err
	}
	from, to, err := s.dayRange(date, st.Location())
	if err != nil {
		return domain.DailyReport{}, err
	}

	report, err := s.repo.GetDailyReport(ctx, st.ID, from, to)
	if err != nil {
		return domain.DailyReport{}, err
	}
	report.StoreID = st.ID
	report.Date = from.Format(time.DateOnly)
	if report.ByPayment == nil {
		report.ByPayment = []domain.DailyReportPayment{}
	}
	return report, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, storeID string, date string, limit int) ([]domain.AuditLog, error) {
	storeID = s.storeID(storeID)
	if limit < 1 {
		limit = 100
	}

	var from, to time.Time
	if strings.TrimSpace(date) == "" {
		to = s.now().Add(time.Second)
		from = to.Add(-24 * time.Hour)
	} else {
		parsed, err := time.Parse(time.DateOnly, strings.TrimSpace(date))
		if err != nil {
			return nil, invalidf("date must be YYYY-MM-DD")
		}
		from = parsed.UTC()
		to = from.Add(24 * time.Hour)
	}

	return s.repo.ListAuditLogs(ctx, storeID, from, to, limit)
}
