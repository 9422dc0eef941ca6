// Package db creates the persistence driver for the store.
package db

import (
	"github.com/sorakado/offkai/internal/profile"
	"github.com/sorakado/offkai/store"
	"github.com/sorakado/offkai/store/db/jsonfile"
)

// NewDriver creates the JSON file driver from the profile's configured
// file paths.
func NewDriver(p *profile.Profile) (store.Driver, error) {
	return jsonfile.NewDriver(jsonfile.Config{
		EventsFile:    p.EventsFile,
		ResponsesFile: p.ResponsesFile,
		WaitlistFile:  p.WaitlistFile,
	})
}
