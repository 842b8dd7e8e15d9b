package model

import "fmt"

// Data source names.
const (
	DataSourceOverdrive = "Overdrive"
	DataSourceOneClick  = "RBdigital"
	DataSourceThreeM    = "Bibliotheca"
	DataSourceAxis360   = "Axis 360"
	DataSourceLibrary   = "Library staff"
)

// DataSource is an external provider of bibliographic or circulation data.
type DataSource struct {
	Name                  string
	PrimaryIdentifierType string
	OffersLicenses        bool
}

var dataSources = map[string]DataSource{
	DataSourceOverdrive: {Name: DataSourceOverdrive, PrimaryIdentifierType: IdentifierOverdrive, OffersLicenses: true},
	DataSourceOneClick:  {Name: DataSourceOneClick, PrimaryIdentifierType: IdentifierOneClick, OffersLicenses: true},
	DataSourceThreeM:    {Name: DataSourceThreeM, PrimaryIdentifierType: IdentifierThreeM, OffersLicenses: true},
	DataSourceAxis360:   {Name: DataSourceAxis360, PrimaryIdentifierType: IdentifierAxis360, OffersLicenses: true},
	DataSourceLibrary:   {Name: DataSourceLibrary},
}

// LookupDataSource finds a registered data source by name.
func LookupDataSource(name string) (DataSource, error) {
	ds, ok := dataSources[name]
	if !ok {
		return DataSource{}, fmt.Errorf("unknown data source %q", name)
	}
	return ds, nil
}
