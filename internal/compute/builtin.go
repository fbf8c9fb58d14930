package compute

import (
	"context"
	"fmt"
	"math"

	"github.com/seantiz/yieldlab/internal/model"
)

// Names of the built-in computations.
const (
	SumRows                     = "sum_rows"
	FlagRange                   = "flag_range"
	FlagUnresponsive            = "flag_unresponsive"
	AirDensityAdjustedWindSpeed = "air_density_adjusted_wind_speed"
)

// defaultUnresponsiveThreshold is the run length at which repeated readings
// are flagged when no threshold parameter is supplied.
const defaultUnresponsiveThreshold = 3

// maxUnresponsiveThreshold keeps the threshold within int range on every platform.
const maxUnresponsiveThreshold = math.MaxInt32

// RegisterBuiltins adds the built-in computations to r.
func RegisterBuiltins(r *Registry) {
	r.Register(SumRows, "Sum of the dataset's rows field (a count or an array of numbers).", sumRows)
	r.Register(FlagRange, "Count SCADA readings of a column outside [lower, upper].", flagRange)
	r.Register(FlagUnresponsive, "Count SCADA readings of a column stuck at one value for at least threshold samples.", flagUnresponsive)
	r.Register(AirDensityAdjustedWindSpeed, "Normalize wind speeds by air density relative to the series mean.", airDensityAdjustedWindSpeed)
}

func sumRows(ctx context.Context, payload any, _ model.Params) (model.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	obj, err := asObject(payload, "payload")
	if err != nil {
		return nil, err
	}
	rows, ok := obj["rows"]
	if !ok {
		return nil, fmt.Errorf("payload has no rows field")
	}

	if n, err := asNumber(rows, "rows"); err == nil {
		return model.Result{"sum": n}, nil
	}
	series, err := asSeries(rows, "rows")
	if err != nil {
		return nil, err
	}
	var sum float64
	for _, v := range series {
		sum += v
	}
	return model.Result{"sum": sum}, nil
}

func flagRange(ctx context.Context, payload any, params model.Params) (model.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	column, err := stringParam(params, "column")
	if err != nil {
		return nil, err
	}
	lower, err := numberParam(params, "lower", nil)
	if err != nil {
		return nil, err
	}
	upper, err := numberParam(params, "upper", nil)
	if err != nil {
		return nil, err
	}
	if lower > upper {
		return nil, fmt.Errorf("lower bound %g exceeds upper bound %g", lower, upper)
	}
	series, err := scadaColumn(payload, column)
	if err != nil {
		return nil, err
	}

	flagged := 0
	for _, v := range series {
		if v < lower || v > upper {
			flagged++
		}
	}
	return model.Result{
		"flagged_data_points": flagged,
		"total_data_points":   len(series),
	}, nil
}

func flagUnresponsive(ctx context.Context, payload any, params model.Params) (model.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	column, err := stringParam(params, "column")
	if err != nil {
		return nil, err
	}
	def := float64(defaultUnresponsiveThreshold)
	threshold, err := numberParam(params, "threshold", &def)
	if err != nil {
		return nil, err
	}
	if threshold < 2 || threshold > maxUnresponsiveThreshold || threshold != math.Trunc(threshold) {
		return nil, fmt.Errorf("threshold must be an integer between 2 and %d, got %g", maxUnresponsiveThreshold, threshold)
	}
	runLength := int(threshold)
	series, err := scadaColumn(payload, column)
	if err != nil {
		return nil, err
	}

	flagged := 0
	for start := 0; start < len(series); {
		end := start + 1
		for end < len(series) && series[end] == series[start] {
			end++
		}
		if run := end - start; run >= runLength {
			flagged += run
		}
		start = end
	}
	return model.Result{
		"flagged_data_points": flagged,
		"total_data_points":   len(series),
	}, nil
}

func airDensityAdjustedWindSpeed(ctx context.Context, payload any, params model.Params) (model.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src := map[string]any(params)
	if _, ok := src["wind_speeds"]; !ok {
		obj, err := asObject(payload, "payload")
		if err != nil {
			return nil, err
		}
		src = obj
	}
	ws, err := asSeries(src["wind_speeds"], "wind_speeds")
	if err != nil {
		return nil, err
	}
	rho, err := asSeries(src["air_densities"], "air_densities")
	if err != nil {
		return nil, err
	}
	if len(ws) != len(rho) {
		return nil, fmt.Errorf("wind_speeds and air_densities must have the same length (%d != %d)", len(ws), len(rho))
	}
	if len(ws) == 0 {
		return nil, fmt.Errorf("wind_speeds must not be empty")
	}

	var rhoMean float64
	for _, r := range rho {
		rhoMean += r
	}
	rhoMean /= float64(len(rho))
	if rhoMean <= 0 {
		return nil, fmt.Errorf("mean air density must be positive, got %g", rhoMean)
	}

	adjusted := make([]float64, len(ws))
	var sum float64
	for i := range ws {
		adjusted[i] = ws[i] * math.Cbrt(rho[i]/rhoMean)
		sum += adjusted[i]
	}
	return model.Result{
		"adjusted_wind_speeds":     adjusted,
		"mean_air_density":         rhoMean,
		"mean_adjusted_wind_speed": sum / float64(len(adjusted)),
	}, nil
}
