package httpapi

import (
	"bytes"
	"encoding/csv"
	"strconv"

	"salonpos/backend/internal/domain"
)

func dailyReportToCSV(report domain.DailyReport) ([]byte, error) {
	rows := [][]string{
		{"section", "key", "value"},
		{"summary", "date", report.Date},
		{"summary", "store_id", report.StoreID},
		{"summary", "transactions", strconv.FormatInt(report.Transactions, 10)},
		{"summary", "gross_sales", report.GrossSales.StringFixed(2)},
		{"summary", "discount", report.Discount.StringFixed(2)},
		{"summary", "redemption", report.Redemption.StringFixed(2)},
		{"summary", "tax", report.Tax.StringFixed(2)},
		{"summary", "net_sales", report.NetSales.StringFixed(2)},
		{"summary", "service_sales", report.ServiceSales.StringFixed(2)},
		{"summary", "product_sales", report.ProductSales.StringFixed(2)},
		{"loyalty", "points_earned", strconv.FormatInt(report.PointsEarned, 10)},
		{"loyalty", "points_redeemed", strconv.FormatInt(report.PointsRedeemed, 10)},
	}
	for _, payment := range report.ByPayment {
		rows = append(rows,
			[]string{"payment", payment.PaymentMethod + "_transactions", strconv.FormatInt(payment.Transactions, 10)},
			[]string{"payment", payment.PaymentMethod + "_total", payment.Total.StringFixed(2)},
		)
	}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
