package params

import "os"

// InfluxDB export is optional; it is enabled when INSD_INFLUXDB_URL is set.
var (
	INFLUXDB_URL    = os.Getenv("INSD_INFLUXDB_URL")
	INFLUXDB_TOKEN  = os.Getenv("INSD_INFLUXDB_TOKEN")
	INFLUXDB_ORG    = os.Getenv("INSD_INFLUXDB_ORG")
	INFLUXDB_BUCKET = os.Getenv("INSD_INFLUXDB_BUCKET")
)

func InfluxEnabled() bool {
	return INFLUXDB_URL != ""
}
