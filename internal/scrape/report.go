package scrape

import (
	"fmt"
	"strconv"
	"time"

	"github.com/Sternrassler/merchant-catalog-export/pkg/compat"
	"github.com/Sternrassler/merchant-catalog-export/pkg/images"
	"github.com/Sternrassler/merchant-catalog-export/pkg/pagination"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// FetchError records a paging loop that ended early.
type FetchError struct {
	Class string
	Err   error
}

// Report summarizes one run.
type Report struct {
	RunID    string
	Started  time.Time
	Duration time.Duration

	Compatibility pagination.Summary
	Relationships pagination.Summary
	Products      pagination.Summary
	FetchErrors   []FetchError

	Index compat.Stats

	ProductsTotal     int
	WithCompatibility int
	SkippedProducts   int

	ImagesEnabled bool
	Images        images.Stats

	CSVPath     string
	CSVWritten  bool
	Interrupted bool
}

func (r *Report) addFetchError(class string, err error) {
	r.FetchErrors = append(r.FetchErrors, FetchError{Class: class, Err: err})
}

// WithoutCompatibility returns the number of products left without a compatibility string.
func (r *Report) WithoutCompatibility() int {
	return r.ProductsTotal - r.WithCompatibility
}

// Coverage returns the share of products with compatibility, in percent.
func (r *Report) Coverage() float64 {
	if r.ProductsTotal == 0 {
		return 0
	}
	return float64(r.WithCompatibility) / float64(r.ProductsTotal) * 100
}

// Partial reports whether any listing ended on an error or the run was interrupted.
func (r *Report) Partial() bool {
	return len(r.FetchErrors) > 0 || r.Interrupted
}

// Table renders the report as a two-column table.
func (r *Report) Table() string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Metric", "Value"})

	add := func(name string, value any) {
		tw.AppendRow(table.Row{name, value})
	}

	add("Compatibility records", fmt.Sprintf("%d (%d pages)", r.Compatibility.Records, r.Compatibility.Pages))
	add("Product links", fmt.Sprintf("%d (%d pages)", r.Relationships.Records, r.Relationships.Pages))
	add("Links resolved", r.Index.Linked)
	add("Links dropped", r.Index.Dropped)
	add("Indexed products", r.Index.Products)
	tw.AppendSeparator()

	add("Products", fmt.Sprintf("%d (%d pages)", r.ProductsTotal, r.Products.Pages))
	add("With compatibility", r.WithCompatibility)
	add("Without compatibility", r.WithoutCompatibility())
	add("Coverage", strconv.FormatFloat(r.Coverage(), 'f', 1, 64)+"%")
	if r.SkippedProducts > 0 {
		add("Skipped records", r.SkippedProducts)
	}
	tw.AppendSeparator()

	if r.ImagesEnabled {
		add("Images downloaded", r.Images.Downloaded)
		add("Images already present", r.Images.Exists)
		add("Images rejected", r.Images.Rejected)
		add("Images failed", r.Images.Failed)
		if r.Images.Skipped > 0 {
			add("Images skipped", r.Images.Skipped)
		}
	} else {
		add("Images", "disabled")
	}
	tw.AppendSeparator()

	for _, fe := range r.FetchErrors {
		add("Incomplete "+fe.Class, fe.Err.Error())
	}
	if r.Interrupted {
		add("Interrupted", "yes")
	}
	if r.CSVWritten {
		add("CSV", r.CSVPath)
	} else {
		add("CSV", "not written")
	}
	add("Duration", r.Duration.Round(time.Second).String())

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft},
		{Number: 2, Align: text.AlignRight, WidthMax: 80},
	})

	return tw.Render()
}
