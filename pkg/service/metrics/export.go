package metrics

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/amirasaad/settlement/pkg/domain/metrics"
	"github.com/xuri/excelize/v2"
)

const (
	platformSheet = "Platform"
	tenantSheet   = "Tenants"
)

var exportHeadings = []string{
	"Day", "Tenant", "Gross GMV", "Orders", "Active Buyers", "Active Sellers",
	"Commission Revenue", "Boost Revenue", "Take Rate", "Escrow Float",
	"Payout Volume", "Payouts", "Chargeback Amount", "Chargebacks",
	"Receivable Outstanding", "Critical Alerts",
}

func exportRow(m *metrics.Daily) []any {
	return []any{
		m.Day.Format(time.DateOnly), m.TenantID, m.GrossGmv.InexactFloat64(), m.OrderCount,
		m.ActiveBuyers, m.ActiveSellers, m.CommissionRevenue.InexactFloat64(),
		m.BoostRevenue.InexactFloat64(), m.TakeRate.InexactFloat64(), m.EscrowFloat.InexactFloat64(),
		m.PayoutVolume.InexactFloat64(), m.PayoutCount, m.ChargebackAmount.InexactFloat64(),
		m.ChargebackCount, m.ReceivableOutstanding.InexactFloat64(), m.CriticalAlerts,
	}
}

// ExportXLSX writes the stored rollups of [from, to) as a workbook with a
// Platform sheet and, for the given tenants, a Tenants sheet.
func (s *Service) ExportXLSX(ctx context.Context, from, to time.Time, w io.Writer, tenants ...string) error {
	platform, err := s.uow.Metrics().ListPlatform(ctx, from, to)
	if err != nil {
		return err
	}
	var perTenant []*metrics.Daily
	for _, t := range tenants {
		rows, err := s.uow.Metrics().ListTenant(ctx, t, from, to)
		if err != nil {
			return err
		}
		perTenant = append(perTenant, rows...)
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Error("close workbook", "error", err)
		}
	}()
	if err := f.SetSheetName("Sheet1", platformSheet); err != nil {
		return err
	}
	if err := writeSheet(f, platformSheet, platform); err != nil {
		return err
	}
	if len(tenants) > 0 {
		if _, err := f.NewSheet(tenantSheet); err != nil {
			return err
		}
		if err := writeSheet(f, tenantSheet, perTenant); err != nil {
			return err
		}
	}
	_, err = f.WriteTo(w)
	return err
}

func writeSheet(f *excelize.File, sheet string, rows []*metrics.Daily) error {
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, "A1", &exportHeadings); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(exportHeadings), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
		return err
	}
	for i, m := range rows {
		values := exportRow(m)
		if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", i+2), &values); err != nil {
			return err
		}
	}
	return nil
}
