// Package chart prepares the monthly revenue bar chart of the dashboard.
package chart

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/tour-booking-dashboard/internal/domain"
	"github.com/robertarktes/tour-booking-dashboard/internal/notice"
	"github.com/robertarktes/tour-booking-dashboard/internal/observability"
	"golang.org/x/sync/errgroup"
)

const labelPrefix = "Tháng "

var (
	background = []string{
		"rgba(255, 99, 132, 0.2)",
		"rgba(54, 162, 235, 0.2)",
		"rgba(255, 206, 86, 0.2)",
		"rgba(75, 192, 192, 0.2)",
		"rgba(153, 102, 255, 0.2)",
		"rgba(255, 159, 64, 0.2)",
		"rgba(201, 203, 207, 0.2)",
		"rgba(0, 162, 71, 0.2)",
		"rgba(82, 0, 36, 0.2)",
		"rgba(82, 164, 36, 0.2)",
		"rgba(255, 158, 146, 0.2)",
		"rgba(123, 39, 56, 0.2)",
	}
	border = []string{
		"rgba(255, 99, 132, 1)",
		"rgba(54, 162, 235, 1)",
		"rgba(255, 206, 86, 1)",
		"rgba(75, 192, 192, 1)",
		"rgba(153, 102, 255, 1)",
		"rgba(255, 159, 64, 1)",
		"rgba(201, 203, 207, 1)",
		"rgba(0, 162, 71, 1)",
		"rgba(82, 0, 36, 1)",
		"rgba(82, 164, 36, 1)",
		"rgba(255, 158, 146, 1)",
		"rgba(123, 39, 56, 1)",
	}
)

// StatsFetcher is the statistics collaborator.
type StatsFetcher interface {
	MonthlyRevenue(ctx context.Context, year int) ([]domain.StatisticalPoint, error)
	YearsWithData(ctx context.Context) ([]int, error)
}

// Data is what the bar chart renderer consumes. Labels, Values and the two
// colour slices are parallel.
type Data struct {
	Year        int       `json:"year"`
	Labels      []string  `json:"labels"`
	Values      []float64 `json:"values"`
	Background  []string  `json:"backgroundColor"`
	Border      []string  `json:"borderColor"`
	BeginAtZero bool      `json:"beginAtZero"`
	Years       []int     `json:"years"`
}

// Build turns a year's points into chart series, keeping the order the
// points arrived in.
func Build(year int, points []domain.StatisticalPoint) Data {
	d := Data{
		Year:        year,
		Labels:      make([]string, 0, len(points)),
		Values:      make([]float64, 0, len(points)),
		Background:  make([]string, 0, len(points)),
		Border:      make([]string, 0, len(points)),
		BeginAtZero: true,
	}
	for i, p := range points {
		d.Labels = append(d.Labels, labelPrefix+strconv.Itoa(p.Month))
		d.Values = append(d.Values, p.Amount.InexactFloat64())
		d.Background = append(d.Background, background[i%len(background)])
		d.Border = append(d.Border, border[i%len(border)])
	}
	return d
}

// Chart holds the chart state of one dashboard view.
type Chart struct {
	fetcher StatsFetcher
	notices *notice.Board
	logger  observability.Logger

	mu   sync.Mutex
	data Data
	gen  uint64
}

func New(fetcher StatsFetcher, year int, notices *notice.Board, logger observability.Logger) *Chart {
	return &Chart{
		fetcher: fetcher,
		notices: notices,
		logger:  logger,
		data:    Data{Year: year, BeginAtZero: true},
	}
}

func (c *Chart) Data() Data {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data
}

func (c *Chart) Year() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data.Year
}

// Load fetches the selected year's series and the list of years with data.
// Either fetch may fail on its own; the other still lands.
func (c *Chart) Load(ctx context.Context) error {
	c.mu.Lock()
	year, gen := c.data.Year, c.gen
	c.mu.Unlock()

	var (
		points    []domain.StatisticalPoint
		years     []int
		pointsErr error
		yearsErr  error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		points, pointsErr = c.fetcher.MonthlyRevenue(gctx, year)
		return nil
	})
	g.Go(func() error {
		years, yearsErr = c.fetcher.YearsWithData(gctx)
		return nil
	})
	_ = g.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return nil
	}
	if pointsErr == nil {
		built := Build(year, points)
		built.Years = c.data.Years
		c.data = built
	}
	if yearsErr == nil {
		c.data.Years = years
	}
	return errors.CombineErrors(c.report("monthly statistics", pointsErr), c.report("year coverage", yearsErr))
}

// SetYear drops the current series and reloads everything for year.
func (c *Chart) SetYear(ctx context.Context, year int) error {
	if year <= 0 {
		return errors.Wrapf(domain.ErrInvalidInput, "year %d", year)
	}
	c.mu.Lock()
	c.gen++
	c.data = Data{Year: year, BeginAtZero: true}
	c.mu.Unlock()
	return c.Load(ctx)
}

func (c *Chart) report(what string, err error) error {
	if err == nil {
		return nil
	}
	c.notices.Push(notice.StatusError(err, time.Now()))
	observability.FetchErrors.WithLabelValues("statistics").Inc()
	c.logger.WithField("fetch", what).Error(err)
	return errors.Wrap(err, what)
}
