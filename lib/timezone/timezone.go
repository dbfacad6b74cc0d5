package timezone

import (
	"fmt"
	"time"

	// the tz database is not guaranteed to exist on the machines this runs on
	_ "time/tzdata"
)

// Stockholm is the zone the statistics API publishes its timestamps in.
const Stockholm = "Europe/Stockholm"

// Load resolves an IANA zone name, "" and "Local" resolve to time.Local.
func Load(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return loc, nil
}
