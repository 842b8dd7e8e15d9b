package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIdentifier(t *testing.T) {
	typ, value, err := ParseIdentifier("Overdrive ID/abc-123")
	require.NoError(t, err)
	assert.Equal(t, IdentifierOverdrive, typ)
	assert.Equal(t, "abc-123", value)

	for _, bad := range []string{"", "abc", "/abc", "Overdrive ID/"} {
		_, _, err := ParseIdentifier(bad)
		assert.Error(t, err, bad)
	}
}

func TestCoverageKeys(t *testing.T) {
	id := &Identifier{Type: IdentifierISBN, Value: "9780316769488"}
	assert.Equal(t, "ISBN/9780316769488", id.CoverageKey())
	assert.Equal(t, "ISBN:9780316769488", id.String())

	w := &Work{ID: 42}
	assert.Equal(t, "work/42", w.CoverageKey())
}

func TestLookupDataSource(t *testing.T) {
	ds, err := LookupDataSource(DataSourceOverdrive)
	require.NoError(t, err)
	assert.Equal(t, IdentifierOverdrive, ds.PrimaryIdentifierType)
	assert.True(t, ds.OffersLicenses)

	_, err = LookupDataSource("Nowhere")
	assert.Error(t, err)
}

func TestAgeRangeOverlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b AgeRange
		want bool
	}{
		{name: "open ranges", a: AgeRange{}, b: AgeRange{Min: 5, Max: 8}, want: true},
		{name: "disjoint", a: AgeRange{Min: 0, Max: 4}, b: AgeRange{Min: 5, Max: 8}, want: false},
		{name: "touching", a: AgeRange{Min: 8, Max: 12}, b: AgeRange{Min: 5, Max: 8}, want: true},
		{name: "open upper bound", a: AgeRange{Min: 14}, b: AgeRange{Min: 16, Max: 17}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Overlaps(tt.b))
		})
	}
}

func TestLicensePoolAvailable(t *testing.T) {
	assert.True(t, (&LicensePool{OpenAccess: true}).Available())
	assert.True(t, (&LicensePool{LicensesAvailable: 1}).Available())
	assert.False(t, (&LicensePool{LicensesOwned: 3}).Available())
}
