// Package mqtt connects netdiag to an MQTT broker.
//
// The broker is an optional fan-out channel: every committed topology
// mutation is published on netdiag/topology/{area_id}/changed so that
// other netdiag instances, NOC dashboards and ticketing integrations can
// react without polling the API. Instance liveness is announced on
// netdiag/system/status, with a Last Will for unexpected disconnects.
//
// The client reconnects with exponential backoff and restores its
// subscriptions after each reconnect.
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	svc.AddListener(mqtt.NewChangePublisher(client, logger))
package mqtt
