// Package cellinfo parses the modem's serving-cell report and builds the
// request body for a cell-tower geolocation lookup.
package cellinfo

import (
	"errors"
	"strconv"
	"strings"
)

// ErrNoCPSIMarker is returned when a line carries no "+CPSI:" prefix.
var ErrNoCPSIMarker = errors.New("cellinfo: no +CPSI: marker in line")

// ErrMalformedCPSI is returned when the CPSI payload doesn't have enough
// comma-separated fields, or a required field is not parseable.
var ErrMalformedCPSI = errors.New("cellinfo: malformed CPSI line")

// Info is the serving cell identity used to geolocate the vehicle when GPS
// has no fix. IsOutdated is set once a geolocation lookup consumes it, so
// the cell-query -> geo-lookup pair is re-issued rather than reused stale.
type Info struct {
	MCC        int
	MNC        int
	LAC        int64
	CID        int64
	IsOutdated bool
}

// ParseCPSILine parses a modem CPSI response line of the form
//
//	+CPSI: LTE,Online,452-02,0x1817,156384564,155,...
//
// into an Info. Field 2 is "mcc-mnc", field 3 is the LAC/TAC as a
// hex-or-decimal integer literal, field 4 is the cell ID.
func ParseCPSILine(line string) (Info, error) {
	idx := strings.Index(line, "+CPSI:")
	if idx < 0 {
		return Info{}, ErrNoCPSIMarker
	}
	payload := strings.TrimSpace(line[idx+len("+CPSI:"):])
	parts := strings.Split(payload, ",")
	if len(parts) < 5 {
		return Info{}, ErrMalformedCPSI
	}

	var info Info

	mccmnc := strings.TrimSpace(parts[2])
	dash := strings.IndexByte(mccmnc, '-')
	if dash < 0 {
		return Info{}, ErrMalformedCPSI
	}
	mcc, err := strconv.Atoi(mccmnc[:dash])
	if err != nil {
		return Info{}, ErrMalformedCPSI
	}
	mnc, err := strconv.Atoi(mccmnc[dash+1:])
	if err != nil {
		return Info{}, ErrMalformedCPSI
	}
	info.MCC, info.MNC = mcc, mnc

	lac, err := strconv.ParseInt(strings.TrimSpace(parts[3]), 0, 64)
	if err != nil {
		return Info{}, ErrMalformedCPSI
	}
	info.LAC = lac

	cid, err := strconv.ParseInt(strings.TrimSpace(parts[4]), 10, 64)
	if err != nil {
		return Info{}, ErrMalformedCPSI
	}
	info.CID = cid

	if info.MCC <= 0 || info.LAC <= 0 || info.CID <= 0 {
		return Info{}, ErrMalformedCPSI
	}
	return info, nil
}

// BuildLocationAPIBody renders the location-API request JSON for this cell,
// authenticated with token (supplied by the caller from the credentials
// package, never hardcoded).
func (i Info) BuildLocationAPIBody(token string) []byte {
	var b strings.Builder
	b.WriteByte('{')
	b.WriteString(`"token":"`)
	b.WriteString(token)
	b.WriteString(`","radio":"lte","mcc":`)
	b.WriteString(strconv.Itoa(i.MCC))
	b.WriteString(`,"mnc":`)
	b.WriteString(strconv.Itoa(i.MNC))
	b.WriteString(`,"cells":[{"lac":`)
	b.WriteString(strconv.FormatInt(i.LAC, 10))
	b.WriteString(`,"cid":`)
	b.WriteString(strconv.FormatInt(i.CID, 10))
	b.WriteString(`,"psc":0}],"address":1}`)
	return []byte(b.String())
}
