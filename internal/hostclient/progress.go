package hostclient

import (
	"io"
	"time"

	"imxup/internal/services"
)

// progressReader counts bytes flowing to the host, reporting to the
// progress callback and polling the stop check at a bounded cadence so a
// fast transfer never produces a callback storm.
type progressReader struct {
	r          io.Reader
	total      int64
	done       int64
	interval   time.Duration
	lastReport time.Time
	progress   Progress
	shouldStop ShouldStop
	now        func() time.Time
}

func (c *Client) newProgressReader(r io.Reader, req UploadRequest) *progressReader {
	return &progressReader{
		r:          r,
		total:      req.Size,
		interval:   c.progressInterval,
		progress:   req.Progress,
		shouldStop: req.ShouldStop,
		now:        c.now,
	}
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.done += int64(n)
		if p.now().Sub(p.lastReport) >= p.interval {
			p.report()
			if p.shouldStop != nil && p.shouldStop() {
				return n, services.ErrCancelled
			}
		}
	}
	if err == io.EOF {
		p.report()
	}
	return n, err
}

func (p *progressReader) report() {
	p.lastReport = p.now()
	if p.progress != nil {
		p.progress(p.done, p.total)
	}
}
