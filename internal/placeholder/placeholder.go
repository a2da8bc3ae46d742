// Package placeholder synthesizes the small stand-in image served when a
// rendition is still not ready after the client exhausts its polling
// budget.
package placeholder

import (
	"bytes"
	"crypto/md5"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
)

const (
	side = 32
	half = side / 2
)

// Generate draws a deterministic four-quadrant placeholder whose colors are
// derived from a hash of the requested filename, so repeated requests for
// the same target look stable. Returns encoded PNG bytes.
func Generate(name string) ([]byte, error) {
	sum := md5.Sum([]byte(name))

	dc := gg.NewContext(side, side)
	for q := 0; q < 4; q++ {
		r, g, b := sum[q*3], sum[q*3+1], sum[q*3+2]
		dc.SetRGB255(int(r), int(g), int(b))
		dc.DrawRectangle(float64(q%2)*half, float64(q/2)*half, half, half)
		dc.Fill()
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, dc.Image(), imaging.PNG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
