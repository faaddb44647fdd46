// Package influxdb records topology activity in InfluxDB.
//
// Every committed mutation becomes one point in the topology_changes
// measurement, tagged by area and action, so operators can chart how
// often and where the fibre plant is being edited. Writes are batched
// and non-blocking; failures surface through SetOnError.
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	svc.AddListener(client)
package influxdb
