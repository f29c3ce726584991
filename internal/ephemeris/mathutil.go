package ephemeris

import "github.com/creator4ever-bot/geodac/internal/angle"

func norm(x float64) float64 { return angle.Normalize360(x) }

func sinD(x float64) float64 { return angle.SinD(x) }

func cosD(x float64) float64 { return angle.CosD(x) }

func tanD(x float64) float64 { return angle.TanD(x) }

func atan2D(y, x float64) float64 { return angle.Atan2D(y, x) }
