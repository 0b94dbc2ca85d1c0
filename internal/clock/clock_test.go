package clock

import "testing"

func TestParseCCLK(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantMS  int64
		wantErr bool
	}{
		{
			name: "UTC+7 example from spec",
			raw:  `+CCLK: "24/11/28,07:35:44+28"`,
			// 2024-11-28 07:35:44 +07:00 -> 2024-11-28 00:35:44 UTC
			wantMS: msUTC(2024, 11, 28, 0, 35, 44),
		},
		{
			name:   "bare quoted, no prefix",
			raw:    `"24/11/28,07:35:44+28"`,
			wantMS: msUTC(2024, 11, 28, 0, 35, 44),
		},
		{
			name:   "zero offset",
			raw:    `+CCLK: "25/01/01,00:00:00+00"`,
			wantMS: msUTC(2025, 1, 1, 0, 0, 0),
		},
		{
			name:   "negative offset",
			raw:    `+CCLK: "25/01/01,00:00:00-20"`,
			// local 00:00 UTC-5:00 -> UTC 05:00
			wantMS: msUTC(2025, 1, 1, 5, 0, 0),
		},
		{
			name:    "too short",
			raw:     "garbage",
			wantErr: true,
		},
		{
			name:    "bad separators",
			raw:     `+CCLK: "2024/11/28 07:35:44+28"`,
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseCCLK(tc.raw)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseCCLK(%q) = %d, nil; want error", tc.raw, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCCLK(%q) unexpected error: %v", tc.raw, err)
			}
			if got != tc.wantMS {
				t.Errorf("ParseCCLK(%q) = %d, want %d", tc.raw, got, tc.wantMS)
			}
		})
	}
}

func TestSourceNotSyncedFails(t *testing.T) {
	tick := int64(0)
	s := NewSource(func() int64 { return tick })
	if s.Synced() {
		t.Fatal("new source reports synced")
	}
	if _, err := s.NowMS(); err != ErrNotSynced {
		t.Fatalf("NowMS() err = %v, want ErrNotSynced", err)
	}
}

func TestSourceExtrapolation(t *testing.T) {
	tick := int64(1_000)
	s := NewSource(func() int64 { return tick })

	if err := s.SyncFromModemClock(`+CCLK: "25/01/01,00:00:00+00"`); err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	base := msUTC(2025, 1, 1, 0, 0, 0)

	first, err := s.NowMS()
	if err != nil {
		t.Fatalf("NowMS: %v", err)
	}
	if first != base {
		t.Errorf("NowMS immediately after sync = %d, want %d", first, base)
	}

	tick += 5_000
	second, err := s.NowMS()
	if err != nil {
		t.Fatalf("NowMS: %v", err)
	}
	if second != base+5_000 {
		t.Errorf("NowMS after 5s tick = %d, want %d", second, base+5_000)
	}

	// Two consecutive reads differ by exactly the monotonic tick delta.
	tick += 1
	third, _ := s.NowMS()
	if third-second != 1 {
		t.Errorf("consecutive NowMS delta = %d, want 1", third-second)
	}
}

// msUTC is a small test helper computing Unix ms for a UTC civil time
// without depending on the time package's own timezone handling.
func msUTC(y, m, d, hh, mi, ss int) int64 {
	days := daysFromCivil(int64(y), int64(m), int64(d))
	sec := days*86400 + int64(hh)*3600 + int64(mi)*60 + int64(ss)
	return sec * 1000
}
