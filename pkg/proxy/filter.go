package proxy

import (
	"context"
	"net/http"
	"time"

	"github.com/LeeDigitalWorks/zapgate/pkg/s3api/s3err"
)

// Data carries one inbound request through the filter chain.
type Data struct {
	Ctx       context.Context
	Req       *http.Request
	RequestID string
	ClientIP  string

	// Body is the buffered inbound body, set by BodyFilter.
	Body *Body

	// Decision is set by PolicyFilter.
	Decision Decision
}

func NewData(ctx context.Context, req *http.Request) *Data {
	return &Data{
		Ctx: ctx,
		Req: req,
	}
}

// Close releases the buffered body.
func (d *Data) Close() {
	if d.Body != nil {
		d.Body.Close()
		d.Body = nil
	}
}

type Response interface {
	IsEnd() bool
}

type Next struct{}

func (n Next) IsEnd() bool {
	return false
}

type End struct{}

func (e End) IsEnd() bool {
	return true
}

type Filter interface {
	Run(d *Data) (Response, error)
	Type() string
}

type Chain struct {
	filters []Filter
}

func NewChain() *Chain {
	return &Chain{
		filters: make([]Filter, 0),
	}
}

func (c *Chain) AddFilter(f Filter) {
	c.filters = append(c.filters, f)
}

// Run executes the filters in order until one fails or ends the chain. It
// returns the type of the filter that stopped it.
func (c *Chain) Run(d *Data) (string, error) {
	for _, filter := range c.filters {
		t := time.Now()
		resp, err := filter.Run(d)
		FilterRunDuration.WithLabelValues(filter.Type()).Observe(time.Since(t).Seconds())

		if d.Ctx.Err() != nil {
			return filter.Type(), d.Ctx.Err()
		}

		if err != nil {
			FilterErrorsTotal.WithLabelValues(filter.Type(), s3err.FromError(err).Code.String()).Inc()
			return filter.Type(), err
		}
		if resp.IsEnd() {
			return filter.Type(), nil
		}
	}
	return "", nil
}
