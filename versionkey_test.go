package omniarchive_test

import (
	"sort"
	"testing"
	"time"

	"github.com/grokify/omniarchive"
)

func TestNewVersionKey(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)

	tests := []struct {
		name     string
		logical  time.Time
		physical time.Time
		want     string
	}{
		{
			name:     "utc",
			logical:  time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			physical: time.Date(2024, 3, 2, 4, 5, 6, 0, time.UTC),
			want:     "report.20240301.20240302040506",
		},
		{
			name:     "own location",
			logical:  time.Date(2024, 3, 1, 23, 0, 0, 0, time.UTC).In(tokyo),
			physical: time.Date(2024, 3, 1, 23, 0, 0, 0, time.UTC).In(tokyo),
			want:     "report.20240302.20240302080000",
		},
		{
			name:     "single digit fields padded",
			logical:  time.Date(5, 1, 2, 0, 0, 0, 0, time.UTC),
			physical: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
			want:     "report.00050102.20240102030405",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, err := omniarchive.NewVersionKey("report", tt.logical, tt.physical)
			if err != nil {
				t.Fatalf("NewVersionKey failed: %v", err)
			}
			if got := k.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewVersionKeyErrors(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		prefix   string
		logical  time.Time
		physical time.Time
	}{
		{"empty prefix", "", now, now},
		{"dotted prefix", "a.b", now, now},
		{"zero logical", "report", time.Time{}, now},
		{"zero physical", "report", now, time.Time{}},
		{"five digit year", "report", time.Date(10000, 1, 1, 0, 0, 0, 0, time.UTC), now},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := omniarchive.NewVersionKey(tt.prefix, tt.logical, tt.physical)
			if !omniarchive.IsValidation(err) {
				t.Errorf("error = %v, want validation", err)
			}
		})
	}
}

func TestParseVersionKey(t *testing.T) {
	tests := []struct {
		fqon    string
		want    omniarchive.VersionKey
		wantErr bool
	}{
		{
			fqon: "report.20240301.20240302040506",
			want: omniarchive.VersionKey{Prefix: "report", LogicalDate: "20240301", PhysicalDate: "20240302040506"},
		},
		{
			fqon: "my-report_v2.20240301.20240302040506",
			want: omniarchive.VersionKey{Prefix: "my-report_v2", LogicalDate: "20240301", PhysicalDate: "20240302040506"},
		},
		{fqon: "report.props", wantErr: true},
		{fqon: "report", wantErr: true},
		{fqon: ".20240301.20240302040506", wantErr: true},
		{fqon: "report.2024031.20240302040506", wantErr: true},
		{fqon: "report.20240301.2024030204050", wantErr: true},
		{fqon: "report.2024030a.20240302040506", wantErr: true},
		{fqon: "report.20240301.20240302040506.extra", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.fqon, func(t *testing.T) {
			got, err := omniarchive.ParseVersionKey(tt.fqon)
			if tt.wantErr {
				if !omniarchive.IsValidation(err) {
					t.Errorf("error = %v, want validation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseVersionKey failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseVersionKey = %+v, want %+v", got, tt.want)
			}
			if got.String() != tt.fqon {
				t.Errorf("String() = %q, want %q", got.String(), tt.fqon)
			}
		})
	}
}

func TestVersionKeyOrdering(t *testing.T) {
	base := time.Date(2023, 12, 30, 22, 0, 0, 0, time.UTC)

	var want []string
	for i := 0; i < 6; i++ {
		logical := base.AddDate(0, 0, i)
		physical := logical.Add(time.Duration(i) * time.Hour)
		k, err := omniarchive.NewVersionKey("report", logical, physical)
		if err != nil {
			t.Fatalf("NewVersionKey failed: %v", err)
		}
		want = append(want, k.String())
	}

	// Same logical date, later physical date
	k, _ := omniarchive.NewVersionKey("report", base.AddDate(0, 0, 5), base.AddDate(0, 0, 6))
	want = append(want, k.String())

	got := append([]string(nil), want...)
	sort.Strings(got)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("lexicographic order %v differs from chronological order %v", got, want)
		}
	}
}

func TestValidatePrefix(t *testing.T) {
	tests := []struct {
		prefix string
		valid  bool
	}{
		{"report", true},
		{"daily-report_2", true},
		{"", false},
		{"a.b", false},
		{".", false},
	}
	for _, tt := range tests {
		err := omniarchive.ValidatePrefix(tt.prefix)
		if tt.valid && err != nil {
			t.Errorf("ValidatePrefix(%q) = %v, want nil", tt.prefix, err)
		}
		if !tt.valid && !omniarchive.IsValidation(err) {
			t.Errorf("ValidatePrefix(%q) = %v, want validation", tt.prefix, err)
		}
	}
}

func TestPropsKey(t *testing.T) {
	if got := omniarchive.PropsKey("report"); got != "report.props" {
		t.Errorf("PropsKey = %q, want %q", got, "report.props")
	}
}

func TestParseDates(t *testing.T) {
	loc := time.FixedZone("EST", -5*3600)

	ld, err := omniarchive.ParseLogicalDate("20240229", loc)
	if err != nil {
		t.Fatalf("ParseLogicalDate failed: %v", err)
	}
	if !ld.Equal(time.Date(2024, 2, 29, 0, 0, 0, 0, loc)) {
		t.Errorf("ParseLogicalDate = %v", ld)
	}

	pd, err := omniarchive.ParsePhysicalDate("20240229235959", loc)
	if err != nil {
		t.Fatalf("ParsePhysicalDate failed: %v", err)
	}
	if !pd.Equal(time.Date(2024, 2, 29, 23, 59, 59, 0, loc)) {
		t.Errorf("ParsePhysicalDate = %v", pd)
	}

	for _, s := range []string{"", "2024-02-29", "20230229", "2024022", "202402290"} {
		if _, err := omniarchive.ParseLogicalDate(s, loc); !omniarchive.IsValidation(err) {
			t.Errorf("ParseLogicalDate(%q) error = %v, want validation", s, err)
		}
	}
	for _, s := range []string{"", "20240229", "20240229246000", "2024022923595x"} {
		if _, err := omniarchive.ParsePhysicalDate(s, loc); !omniarchive.IsValidation(err) {
			t.Errorf("ParsePhysicalDate(%q) error = %v, want validation", s, err)
		}
	}
}

func TestVersionKeyTimes(t *testing.T) {
	k := omniarchive.VersionKey{Prefix: "report", LogicalDate: "20240301", PhysicalDate: "20240302040506"}

	lt, err := k.LogicalTime(time.UTC)
	if err != nil || !lt.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("LogicalTime = %v, %v", lt, err)
	}
	pt, err := k.PhysicalTime(time.UTC)
	if err != nil || !pt.Equal(time.Date(2024, 3, 2, 4, 5, 6, 0, time.UTC)) {
		t.Errorf("PhysicalTime = %v, %v", pt, err)
	}
}
