package render

import (
	"encoding/json"
	"fmt"
	"math"
)

// QualityReport holds byte-space error metrics between a rendered image and
// a reference image.
type QualityReport struct {
	MSE             float64 `json:"mse"`               // mean squared error over all channels
	PSNR            float64 `json:"psnr_db"`           // peak signal-to-noise ratio; +Inf for identical images
	MaxChannelError int     `json:"max_channel_error"` // largest absolute per-channel byte difference
	Width           int     `json:"width"`
	Height          int     `json:"height"`
}

// CompareImages computes a QualityReport for img against ref. The images
// must have identical dimensions.
func CompareImages(img, ref *Image) (*QualityReport, error) {
	if img == nil || ref == nil {
		return nil, fmt.Errorf("nil image")
	}
	if img.Width != ref.Width || img.Height != ref.Height {
		return nil, fmt.Errorf("image dimensions %dx%d do not match reference %dx%d",
			img.Width, img.Height, ref.Width, ref.Height)
	}

	report := &QualityReport{Width: img.Width, Height: img.Height}

	var sumSq float64
	for i := range img.Pix {
		d := int(img.Pix[i]) - int(ref.Pix[i])
		if d < 0 {
			d = -d
		}
		if d > report.MaxChannelError {
			report.MaxChannelError = d
		}
		sumSq += float64(d) * float64(d)
	}
	report.MSE = sumSq / float64(len(img.Pix))

	if report.MSE == 0 {
		report.PSNR = math.Inf(1)
	} else {
		report.PSNR = 10 * math.Log10(255*255/report.MSE)
	}
	return report, nil
}

// ToJSON serializes the report for database storage. An infinite PSNR is
// not representable in JSON and is stored as the sentinel -1.
func (q *QualityReport) ToJSON() (string, error) {
	clone := *q
	if math.IsInf(clone.PSNR, 1) {
		clone.PSNR = -1
	}
	data, err := json.Marshal(&clone)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ParseQualityReport deserializes a report from JSON, restoring the
// infinite-PSNR sentinel.
func ParseQualityReport(jsonStr string) (*QualityReport, error) {
	var q QualityReport
	if err := json.Unmarshal([]byte(jsonStr), &q); err != nil {
		return nil, err
	}
	if q.PSNR == -1 {
		q.PSNR = math.Inf(1)
	}
	return &q, nil
}
