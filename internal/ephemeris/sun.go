package ephemeris

// sunApparentLongitude returns the Sun's apparent geocentric longitude of
// date in degrees. Good to about 0.01° over several centuries.
func sunApparentLongitude(T float64) float64 {
	L0 := 280.46646 + 36000.76983*T + 0.0003032*T*T
	M := 357.52911 + 35999.05029*T - 0.0001537*T*T

	// Equation of center.
	C := (1.914602-0.004817*T-0.000014*T*T)*sinD(M) +
		(0.019993-0.000101*T)*sinD(2*M) +
		0.000289*sinD(3*M)

	omega := 125.04 - 1934.136*T
	return norm(L0 + C - 0.00569 - 0.00478*sinD(omega))
}
