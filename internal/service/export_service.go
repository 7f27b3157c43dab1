package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/noah-isme/perception-api/internal/models"
	"github.com/noah-isme/perception-api/internal/repository"
)

const (
	resultsSheet = "Results"
	totalsSheet  = "Totals"
)

// ExportService renders evaluated papers as spreadsheets.
type ExportService interface {
	ExportResults(ctx context.Context, principal Principal, paperID uint) ([]byte, string, error)
}

type exportService struct {
	papers      repository.PaperRepository
	submissions repository.SubmissionRepository
	logger      zerolog.Logger
}

// NewExportService constructs the results exporter.
func NewExportService(papers repository.PaperRepository, submissions repository.SubmissionRepository, logger zerolog.Logger) ExportService {
	return &exportService{
		papers:      papers,
		submissions: submissions,
		logger:      logger.With().Str("component", "export_service").Logger(),
	}
}

// ExportResults returns the XLSX workbook and a suggested file name.
func (s *exportService) ExportResults(ctx context.Context, principal Principal, paperID uint) ([]byte, string, error) {
	paper, err := ownedPaper(ctx, s.papers, principal, paperID)
	if err != nil {
		return nil, "", err
	}
	if !paper.Evaluated {
		return nil, "", ErrPaperNotEvaluated
	}

	submissions, err := s.submissions.ListByPaper(ctx, paperID)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	for _, sheet := range []string{resultsSheet, totalsSheet} {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, "", fmt.Errorf("failed to create Excel sheet: %w", err)
		}
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, "", fmt.Errorf("failed to drop default sheet: %w", err)
	}
	index, err := f.GetSheetIndex(resultsSheet)
	if err != nil {
		return nil, "", err
	}
	f.SetActiveSheet(index)

	headers := []string{"Student", "Question", "Prompt", "Answer", "Clarity", "Relevance", "Accuracy", "Completeness", "Average", "Feedback"}
	if err := writeRow(f, resultsSheet, 1, toCells(headers)); err != nil {
		return nil, "", err
	}

	row := 2
	for _, submission := range submissions {
		for _, question := range paper.Questions {
			answer, _ := submission.AnswerFor(question.Order)
			values := []interface{}{
				submission.StudentEmail,
				question.Order,
				question.Prompt,
				answer.Answer,
				answer.Score.Clarity,
				answer.Score.Relevance,
				answer.Score.Accuracy,
				answer.Score.Completeness,
				answer.Score.Average,
				answer.Feedback,
			}
			if err := writeRow(f, resultsSheet, row, values); err != nil {
				return nil, "", err
			}
			row++
		}
	}

	if err := writeRow(f, totalsSheet, 1, toCells([]string{"Student", "Finalized", "Total Score", "Max Score"})); err != nil {
		return nil, "", err
	}
	for i, submission := range submissions {
		values := []interface{}{submission.StudentEmail, submission.Finalized, submission.TotalScore, paper.MaxScore()}
		if err := writeRow(f, totalsSheet, i+2, values); err != nil {
			return nil, "", err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", fmt.Errorf("failed to write Excel file: %w", err)
	}

	s.logger.Info().Uint("paper_id", paperID).Int("submissions", len(submissions)).Msg("results exported")
	return buf.Bytes(), resultsFileName(paper), nil
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	for col, value := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, value); err != nil {
			return fmt.Errorf("failed to write cell %s: %w", cell, err)
		}
	}
	return nil
}

func toCells(values []string) []interface{} {
	cells := make([]interface{}, 0, len(values))
	for _, value := range values {
		cells = append(cells, value)
	}
	return cells
}

func resultsFileName(paper models.Paper) string {
	return fmt.Sprintf("paper-%d-results.xlsx", paper.ID)
}
