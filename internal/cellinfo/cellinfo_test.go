package cellinfo

import (
	"strings"
	"testing"
)

func TestParseCPSILineHappyPath(t *testing.T) {
	line := "+CPSI: LTE,Online,452-02,0x1817,156384564,155,-95,-10,1,2,3"
	got, err := ParseCPSILine(line)
	if err != nil {
		t.Fatalf("ParseCPSILine: %v", err)
	}
	want := Info{MCC: 452, MNC: 2, LAC: 0x1817, CID: 156384564}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestParseCPSILineNoMarker(t *testing.T) {
	if _, err := ParseCPSILine("OK"); err != ErrNoCPSIMarker {
		t.Errorf("err = %v, want ErrNoCPSIMarker", err)
	}
}

func TestParseCPSILineTooFewFields(t *testing.T) {
	if _, err := ParseCPSILine("+CPSI: LTE,Online"); err != ErrMalformedCPSI {
		t.Errorf("err = %v, want ErrMalformedCPSI", err)
	}
}

func TestParseCPSILineBadMccMnc(t *testing.T) {
	if _, err := ParseCPSILine("+CPSI: LTE,Online,452_02,0x1817,156384564"); err != ErrMalformedCPSI {
		t.Errorf("err = %v, want ErrMalformedCPSI", err)
	}
}

func TestParseCPSILineZeroFieldsRejected(t *testing.T) {
	if _, err := ParseCPSILine("+CPSI: LTE,Online,0-0,0x0,0"); err != ErrMalformedCPSI {
		t.Errorf("err = %v, want ErrMalformedCPSI", err)
	}
}

func TestBuildLocationAPIBody(t *testing.T) {
	info := Info{MCC: 452, MNC: 2, LAC: 6167, CID: 156384564}
	body := string(info.BuildLocationAPIBody("tok-123"))
	for _, want := range []string{`"token":"tok-123"`, `"mcc":452`, `"mnc":2`, `"lac":6167`, `"cid":156384564`} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q: %s", want, body)
		}
	}
}
