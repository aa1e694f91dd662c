package pdf

import (
	"context"
	"io"
)

type Provider interface {
	GenerateProgressReport(ctx context.Context, data ReportData) (io.Reader, error)
}

type ReportData struct {
	ProjectName string
	Address     string
	Status      string
	Progress    int
	GeneratedAt string
	Period      string

	Entries []ReportEntry

	OpenRequests   int
	AwardedBids    int
	OrdersInFlight int
}

type ReportEntry struct {
	Date     string
	Phase    string
	Title    string
	Progress string
}

type NoOpProvider struct{}

func (p *NoOpProvider) GenerateProgressReport(ctx context.Context, data ReportData) (io.Reader, error) {
	return nil, nil
}
