// Package influxdb records feed activity as InfluxDB time series.
//
// Two measurements are written:
//
//	feed_events,topic=<topic>,kind=<bookmark|tag>,event=<event> count=1i[,name="..."]
//	subscription_state,topic=<topic>,state=<state> from="...",session_id="...",level=<n>i[,error="..."]
//
// Client implements both the supervisor sink and observer interfaces, so
// it is registered once for events and once for transitions.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	sup.AddSink("influxdb", client)
//	sup.AddObserver(client)
//
// Writes are non-blocking and batched according to batch_size and
// flush_interval. Write failures are delivered asynchronously to the
// SetOnError callback and keep HealthCheck failing for two flush intervals;
// connection and health check errors are returned.
package influxdb
