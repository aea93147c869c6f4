package models

// Surface names one of the two chart surfaces
type Surface string

const (
	SurfaceMain  Surface = "main"
	SurfacePopup Surface = "popup"
)

// TimeSeriesPoint is one point on a chart. Identity is Timestamp.
type TimeSeriesPoint struct {
	Timestamp  int64   `json:"timestamp"` // epoch ms
	Value      float64 `json:"value"`
	Label      string  `json:"label"`
	Source     string  `json:"source"`
	StatusCode int     `json:"statusCode,omitempty"` // display only
}

// ChartFrame is what a surface renders from
type ChartFrame struct {
	Surface     Surface   `json:"surface"`
	MonitorUUID string    `json:"monitorUuid,omitempty"`
	Version     uint64    `json:"version"`
	Labels      []string  `json:"labels"`
	Values      []float64 `json:"values"`
	StatusCodes []int     `json:"statusCodes,omitempty"`
	Timestamps  []int64   `json:"timestamps"`
	Sources     []string  `json:"sources"`
}

// Len returns the number of points in the frame
func (f ChartFrame) Len() int {
	return len(f.Timestamps)
}
