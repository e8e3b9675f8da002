package report

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/lifedrop/lifedrop-api/internal/model"
	"github.com/lifedrop/lifedrop-api/internal/store"
)

const monthsShown = 6

// Row is one emergency with the number of donors contacted for it.
type Row struct {
	model.EmergencyRequest
	DonorCount int `json:"donor_count"`
}

type MonthCount struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

// History summarises a hospital's emergencies. The totals ignore the
// status and urgency filters; Rows honours them.
type History struct {
	Total        int          `json:"total"`
	Open         int          `json:"open"`
	InProgress   int          `json:"in_progress"`
	Completed    int          `json:"completed"`
	ResponseRate int          `json:"response_rate"`
	Monthly      []MonthCount `json:"monthly"`
	Rows         []Row        `json:"rows"`
}

type Service struct {
	store *store.Store
}

func NewService(st *store.Store) *Service {
	return &Service{store: st}
}

func (s *Service) History(ctx context.Context, hospitalID string, filter model.EmergencyFilter) *History {
	donors := make(map[string]int)
	for _, d := range s.store.Donations() {
		donors[d.EmergencyID]++
	}

	h := &History{Rows: make([]Row, 0), Monthly: make([]MonthCount, 0)}
	months := make(map[string]int)
	for _, e := range s.store.Emergencies() {
		if e.CreatedBy != hospitalID {
			continue
		}
		h.Total++
		switch e.Status {
		case model.EmergencyStatusOpen:
			h.Open++
		case model.EmergencyStatusInProgress:
			h.InProgress++
		case model.EmergencyStatusCompleted:
			h.Completed++
		}
		months[e.CreatedAt.UTC().Format("2006-01")]++

		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		if filter.Urgency != "" && e.UrgencyLevel != filter.Urgency {
			continue
		}
		h.Rows = append(h.Rows, Row{EmergencyRequest: e, DonorCount: donors[e.ID]})
	}

	if h.Total > 0 {
		h.ResponseRate = int(math.Round(float64(h.InProgress+h.Completed) / float64(h.Total) * 100))
	}

	keys := make([]string, 0, len(months))
	for k := range months {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > monthsShown {
		keys = keys[len(keys)-monthsShown:]
	}
	for _, k := range keys {
		h.Monthly = append(h.Monthly, MonthCount{Month: k, Count: months[k]})
	}

	sort.SliceStable(h.Rows, func(i, j int) bool {
		return h.Rows[i].CreatedAt.After(h.Rows[j].CreatedAt)
	})
	return h
}

var exportHeader = []interface{}{
	"ID", "Created", "Patient", "Blood Type", "Units", "Urgency", "Status", "City", "Address", "Contact", "Donors Contacted",
}

// ExportXLSX renders the filtered history rows as a spreadsheet.
func (s *Service) ExportXLSX(ctx context.Context, hospitalID string, filter model.EmergencyFilter) ([]byte, error) {
	h := s.History(ctx, hospitalID, filter)

	f := excelize.NewFile()
	defer f.Close()

	sheet := "Emergencies"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to drop default sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#FDE2E2"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}
	if err := f.SetSheetRow(sheet, "A1", &exportHeader); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(exportHeader), 1)
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return nil, fmt.Errorf("failed to style header: %w", err)
	}

	for i, r := range h.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := []interface{}{
			r.ID,
			r.CreatedAt.UTC().Format(time.RFC3339),
			r.PatientName,
			string(r.BloodTypeNeeded),
			r.UnitsNeeded,
			string(r.UrgencyLevel),
			string(r.Status),
			r.City,
			r.Address,
			r.ContactNumber,
			r.DonorCount,
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("failed to freeze header: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
