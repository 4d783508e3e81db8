// Package influxdb provides InfluxDB connectivity for AdvisorPro.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, batched non-blocking writes and health monitoring.
//
// # Purpose
//
// Authentication activity is recorded as the auth_events time series so
// dashboards can chart logins, failed logins and refresh rejections per
// tenant without querying the relational audit trail.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteAuthEvent(influxdb.AuthEvent{Action: "LOGIN", TenantID: "ws-1"})
package influxdb
