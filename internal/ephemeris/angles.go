package ephemeris

// meanNode returns the longitude of the Moon's mean ascending node, degrees.
func meanNode(T float64) float64 {
	return norm(125.0445479 - 1934.1362891*T + 0.0020754*T*T +
		T*T*T/467441 - T*T*T*T/60616000)
}

// midheaven returns the ecliptic longitude culminating at local sidereal
// time ramc, with obliquity eps (degrees).
func midheaven(ramc, eps float64) float64 {
	return atan2D(sinD(ramc), cosD(ramc)*cosD(eps))
}

// ascendant returns the ecliptic longitude rising in the east for local
// sidereal time ramc at geographic latitude lat.
func ascendant(ramc, eps, lat float64) float64 {
	return atan2D(cosD(ramc), -(sinD(ramc)*cosD(eps) + tanD(lat)*sinD(eps)))
}
