package upload

import "io"

// progressReader reports upload percentage as the transport drains it.
// Reported values never decrease and are capped at 99; the final 100 is
// emitted by the caller once the server has accepted the upload, so a
// failed transfer never looks complete.
type progressReader struct {
	reader   io.Reader
	total    int64
	read     int64
	lastPct  int
	onChange func(percent int)
}

func newProgressReader(r io.Reader, total int64, onChange func(int)) *progressReader {
	return &progressReader{reader: r, total: total, lastPct: -1, onChange: onChange}
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.reader.Read(buf)
	if n > 0 {
		p.read += int64(n)
		p.report()
	}
	return n, err
}

func (p *progressReader) report() {
	if p.onChange == nil || p.total <= 0 {
		return
	}
	pct := int(p.read * 100 / p.total)
	if pct > 99 {
		pct = 99
	}
	if pct > p.lastPct {
		p.lastPct = pct
		p.onChange(pct)
	}
}
