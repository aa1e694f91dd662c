package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

func (p *PDFProvider) GenerateProgressReport(ctx context.Context, data ReportData) (io.Reader, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(12, "Progress report", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	m.AddRow(24,
		col.New(6).Add(
			text.New(data.ProjectName, props.Text{Style: fontstyle.Bold}),
			text.New(data.Address, props.Text{Top: 5}),
			text.New("Status: "+data.Status, props.Text{Top: 10}),
		),
		col.New(6).Add(
			text.New("Generated: "+data.GeneratedAt, props.Text{Top: 0}),
			text.New("Period: "+data.Period, props.Text{Top: 5}),
			text.New(fmt.Sprintf("Overall progress: %d%%", data.Progress), props.Text{Top: 10, Style: fontstyle.Bold}),
		),
	)

	m.AddRow(12,
		text.NewCol(4, fmt.Sprintf("Open service requests: %d", data.OpenRequests), props.Text{Size: 9}),
		text.NewCol(4, fmt.Sprintf("Awarded bids: %d", data.AwardedBids), props.Text{Size: 9}),
		text.NewCol(4, fmt.Sprintf("Orders in flight: %d", data.OrdersInFlight), props.Text{Size: 9}),
	)

	m.AddRow(10,
		text.NewCol(2, "Date", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, "Phase", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(5, "Entry", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Progress", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	for _, entry := range data.Entries {
		m.AddRow(10,
			text.NewCol(2, entry.Date, props.Text{Size: 9}),
			text.NewCol(3, entry.Phase, props.Text{Size: 9}),
			text.NewCol(5, entry.Title, props.Text{Size: 9}),
			text.NewCol(2, entry.Progress, props.Text{Size: 9, Align: align.Right}),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(doc.GetBytes()), nil
}
