package strategy

// priceBuffer keeps a rolling window of recent samples (tick deltas,
// spreads) and exposes the few statistics the evaluators need.
type priceBuffer struct {
	max int
	buf []float64
}

func newPriceBuffer(max int) *priceBuffer {
	if max <= 0 {
		max = 16
	}
	return &priceBuffer{max: max}
}

func (p *priceBuffer) Add(v float64) {
	p.buf = append(p.buf, v)
	if len(p.buf) > p.max {
		p.buf = p.buf[len(p.buf)-p.max:]
	}
}

func (p *priceBuffer) Len() int {
	return len(p.buf)
}

func (p *priceBuffer) Last() float64 {
	if len(p.buf) == 0 {
		return 0
	}
	return p.buf[len(p.buf)-1]
}

// Mean is the average of the window, 0 when empty.
func (p *priceBuffer) Mean() float64 {
	if len(p.buf) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range p.buf {
		sum += v
	}
	return sum / float64(len(p.buf))
}
